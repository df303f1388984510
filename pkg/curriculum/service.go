package curriculum

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/access"
	"github.com/grouplan/grouplan/pkg/user"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*size far from overflowing.
	MaxPage = 1_000_000
)

var (
	ErrNotOwner           = fmt.Errorf("timetable belongs to another user: %w", apperr.ErrPermissionDenied)
	ErrNotVisible         = fmt.Errorf("class time is not public: %w", apperr.ErrPermissionDenied)
	ErrClassTimeNotUsable = fmt.Errorf("class time is neither owned nor saved by the user: %w", apperr.ErrPermissionDenied)
	ErrPageOutOfRange     = fmt.Errorf("page is out of range: %w", apperr.ErrInvalidArgument)
)

type ClassTimeInput struct {
	Name   string
	Ticks  []Tick
	Public bool
}

type GradeInput struct {
	Nickname      string
	ClassTimeUuid string
	// SemesterBegin and SemesterEnd are YYYY-MM-DD dates.
	SemesterBegin string
	SemesterEnd   string
}

type ClassInput struct {
	Name     string
	Teacher  string
	Location string
	// Weeks lists the teaching weeks the class takes place in. Empty means every week of the semester.
	Weeks []int
	Slot
}

// Placement is where a single class moves to.
type Placement struct {
	Week int
	Slot
}

type Page struct {
	Records []ClassTime
	Total   int
	Page    int
	Size    int
}

type Service interface {
	CreateClassTime(ctx context.Context, input ClassTimeInput) (ClassTime, error)
	EditClassTime(ctx context.Context, classTimeUuid string, input ClassTimeInput) (ClassTime, error)
	DeleteClassTime(ctx context.Context, classTimeUuid string) error
	GetClassTimeMarketList(ctx context.Context, page, size int) (Page, error)
	GetClassTimeMarket(ctx context.Context, classTimeUuid string) (ClassTime, error)

	AddMyClassTime(ctx context.Context, classTimeUuid string) error
	DeleteMyClassTime(ctx context.Context, classTimeUuid string) error
	GetMyClassTimeList(ctx context.Context, page, size int) (Page, error)
	GetMyClassTime(ctx context.Context, classTimeUuid string) (ClassTime, error)

	CreateClassGrade(ctx context.Context, input GradeInput) (ClassGrade, error)
	EditClassGrade(ctx context.Context, classGradeUuid string, input GradeInput) (ClassGrade, error)
	DeleteClassGrade(ctx context.Context, classGradeUuid string) error
	GetClassGrade(ctx context.Context, classGradeUuid string) (ClassGrade, error)
	GetClassGradeList(ctx context.Context) ([]ClassGrade, error)

	AddClass(ctx context.Context, classGradeUuid string, input ClassInput) ([]Class, error)
	MoveClass(ctx context.Context, classUuid string, to Placement) (Class, error)
	DeleteClass(ctx context.Context, classUuid string) error
	// MoveClasses moves every week's class with the given name at from to the slot to.
	MoveClasses(ctx context.Context, classGradeUuid, name string, from, to Slot) (int, error)
	DeleteClasses(ctx context.Context, classGradeUuid, name string, from Slot) (int, error)
	// GetLessons returns the classes of one week placed on the calendar. Week 0 returns every week.
	GetLessons(ctx context.Context, classGradeUuid string, week int) ([]Lesson, error)
}

type ServiceImpl struct {
	repo  Repository
	clock utils.Clock
}

func NewService(repo Repository, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, clock: clock}
}

func newUuid() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func currentActor(ctx context.Context) (access.Actor, error) {
	userUuid, err := user.CurrentUuid(ctx)
	if err != nil {
		return access.Actor{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return access.Actor{Uuid: userUuid}, nil
}

func validateClassTime(input ClassTimeInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrEmptyName
	}
	return ValidateTicks(input.Ticks)
}

// ownedClassTime loads a class time the actor authored.
func (s *ServiceImpl) ownedClassTime(ctx context.Context, classTimeUuid string) (access.Actor, ClassTime, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return access.Actor{}, ClassTime{}, err
	}
	ct, err := s.repo.GetClassTime(ctx, classTimeUuid)
	if err != nil {
		return access.Actor{}, ClassTime{}, err
	}
	if !access.CanManageTimetable(actor, ct.UserUuid) {
		log.Warnf("user %s may not manage class time %s", actor.Uuid, classTimeUuid)
		return access.Actor{}, ClassTime{}, ErrNotOwner
	}
	return actor, ct, nil
}

func (s *ServiceImpl) CreateClassTime(ctx context.Context, input ClassTimeInput) (ClassTime, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return ClassTime{}, err
	}
	if err := validateClassTime(input); err != nil {
		return ClassTime{}, err
	}
	now := s.clock.Now()
	ct := ClassTime{
		ClassTimeUuid: newUuid(),
		UserUuid:      actor.Uuid,
		Name:          strings.TrimSpace(input.Name),
		Ticks:         input.Ticks,
		Public:        input.Public,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	log.Debugf("creating class time %s with %d tick(s)", ct.ClassTimeUuid, len(ct.Ticks))
	if err := s.repo.CreateClassTime(ctx, ct); err != nil {
		return ClassTime{}, err
	}
	return ct, nil
}

// EditClassTime may change the number of ticks only while no class grade uses the class time.
func (s *ServiceImpl) EditClassTime(ctx context.Context, classTimeUuid string, input ClassTimeInput) (ClassTime, error) {
	_, ct, err := s.ownedClassTime(ctx, classTimeUuid)
	if err != nil {
		return ClassTime{}, err
	}
	if err := validateClassTime(input); err != nil {
		return ClassTime{}, err
	}
	if len(input.Ticks) != len(ct.Ticks) {
		used, err := s.repo.CountGradesUsing(ctx, classTimeUuid)
		if err != nil {
			return ClassTime{}, err
		}
		if used > 0 {
			return ClassTime{}, fmt.Errorf("%d grade(s): %w", used, ErrClassTimeInUse)
		}
	}

	ct.Name = strings.TrimSpace(input.Name)
	ct.Ticks = input.Ticks
	ct.Public = input.Public
	ct.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateClassTime(ctx, ct); err != nil {
		return ClassTime{}, err
	}
	return ct, nil
}

func (s *ServiceImpl) DeleteClassTime(ctx context.Context, classTimeUuid string) error {
	if _, _, err := s.ownedClassTime(ctx, classTimeUuid); err != nil {
		return err
	}
	used, err := s.repo.CountGradesUsing(ctx, classTimeUuid)
	if err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%d grade(s): %w", used, ErrClassTimeInUse)
	}
	log.Debugf("deleting class time %s", classTimeUuid)
	return s.repo.DeleteClassTime(ctx, classTimeUuid)
}

func (s *ServiceImpl) GetClassTimeMarketList(ctx context.Context, page, size int) (Page, error) {
	if _, err := currentActor(ctx); err != nil {
		return Page{}, err
	}
	page, size, err := clampPage(page, size)
	if err != nil {
		return Page{}, err
	}
	records, total, err := s.repo.ListPublicClassTimes(ctx, size, (page-1)*size)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: page, Size: size}, nil
}

// visibleClassTime loads a class time that is public or authored by the actor.
func (s *ServiceImpl) visibleClassTime(ctx context.Context, actor access.Actor, classTimeUuid string) (ClassTime, error) {
	ct, err := s.repo.GetClassTime(ctx, classTimeUuid)
	if err != nil {
		return ClassTime{}, err
	}
	if !ct.Public && !access.CanManageTimetable(actor, ct.UserUuid) {
		return ClassTime{}, ErrNotVisible
	}
	return ct, nil
}

func (s *ServiceImpl) GetClassTimeMarket(ctx context.Context, classTimeUuid string) (ClassTime, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return ClassTime{}, err
	}
	return s.visibleClassTime(ctx, actor, classTimeUuid)
}

func (s *ServiceImpl) AddMyClassTime(ctx context.Context, classTimeUuid string) error {
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.visibleClassTime(ctx, actor, classTimeUuid); err != nil {
		return err
	}
	return s.repo.SaveClassTime(ctx, actor.Uuid, classTimeUuid, s.clock.Now())
}

func (s *ServiceImpl) DeleteMyClassTime(ctx context.Context, classTimeUuid string) error {
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	removed, err := s.repo.UnsaveClassTime(ctx, actor.Uuid, classTimeUuid)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("class time %s: %w", classTimeUuid, ErrNotSaved)
	}
	return nil
}

func (s *ServiceImpl) GetMyClassTimeList(ctx context.Context, page, size int) (Page, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Page{}, err
	}
	page, size, err = clampPage(page, size)
	if err != nil {
		return Page{}, err
	}
	records, total, err := s.repo.ListSavedClassTimes(ctx, actor.Uuid, size, (page-1)*size)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: page, Size: size}, nil
}

func (s *ServiceImpl) GetMyClassTime(ctx context.Context, classTimeUuid string) (ClassTime, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return ClassTime{}, err
	}
	saved, err := s.repo.IsSaved(ctx, actor.Uuid, classTimeUuid)
	if err != nil {
		return ClassTime{}, err
	}
	if !saved {
		return ClassTime{}, fmt.Errorf("class time %s: %w", classTimeUuid, ErrNotSaved)
	}
	return s.repo.GetClassTime(ctx, classTimeUuid)
}

// usableClassTime loads a class time the actor authored or saved. Grades can only be built on those.
func (s *ServiceImpl) usableClassTime(ctx context.Context, actor access.Actor, classTimeUuid string) (ClassTime, error) {
	ct, err := s.repo.GetClassTime(ctx, classTimeUuid)
	if err != nil {
		return ClassTime{}, err
	}
	if access.CanManageTimetable(actor, ct.UserUuid) {
		return ct, nil
	}
	saved, err := s.repo.IsSaved(ctx, actor.Uuid, classTimeUuid)
	if err != nil {
		return ClassTime{}, err
	}
	if !saved {
		return ClassTime{}, ErrClassTimeNotUsable
	}
	return ct, nil
}

func (s *ServiceImpl) CreateClassGrade(ctx context.Context, input GradeInput) (ClassGrade, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return ClassGrade{}, err
	}
	if strings.TrimSpace(input.Nickname) == "" {
		return ClassGrade{}, ErrEmptyName
	}
	begin, end, err := ParseSemester(input.SemesterBegin, input.SemesterEnd)
	if err != nil {
		return ClassGrade{}, err
	}
	if _, err := s.usableClassTime(ctx, actor, input.ClassTimeUuid); err != nil {
		return ClassGrade{}, err
	}

	now := s.clock.Now()
	grade := ClassGrade{
		ClassGradeUuid: newUuid(),
		UserUuid:       actor.Uuid,
		ClassTimeUuid:  input.ClassTimeUuid,
		Nickname:       strings.TrimSpace(input.Nickname),
		SemesterBegin:  begin,
		SemesterEnd:    end,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	log.Debugf("creating class grade %s for %s", grade.ClassGradeUuid, actor.Uuid)
	if err := s.repo.CreateGrade(ctx, grade); err != nil {
		return ClassGrade{}, err
	}
	return grade, nil
}

// ownedGrade loads a class grade of the actor together with the ticks of its class time.
func (s *ServiceImpl) ownedGrade(ctx context.Context, classGradeUuid string) (access.Actor, ClassGrade, []Tick, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return access.Actor{}, ClassGrade{}, nil, err
	}
	grade, err := s.repo.GetGrade(ctx, classGradeUuid)
	if err != nil {
		return access.Actor{}, ClassGrade{}, nil, err
	}
	if !access.CanManageTimetable(actor, grade.UserUuid) {
		log.Warnf("user %s may not manage class grade %s", actor.Uuid, classGradeUuid)
		return access.Actor{}, ClassGrade{}, nil, ErrNotOwner
	}
	ct, err := s.repo.GetClassTime(ctx, grade.ClassTimeUuid)
	if err != nil {
		return access.Actor{}, ClassGrade{}, nil, err
	}
	return actor, grade, ct.Ticks, nil
}

// EditClassGrade rejects a new semester or class time that would leave existing classes outside the timetable.
func (s *ServiceImpl) EditClassGrade(ctx context.Context, classGradeUuid string, input GradeInput) (ClassGrade, error) {
	actor, grade, ticks, err := s.ownedGrade(ctx, classGradeUuid)
	if err != nil {
		return ClassGrade{}, err
	}
	if strings.TrimSpace(input.Nickname) == "" {
		return ClassGrade{}, ErrEmptyName
	}
	begin, end, err := ParseSemester(input.SemesterBegin, input.SemesterEnd)
	if err != nil {
		return ClassGrade{}, err
	}
	// keeping the current class time needs no saved entry
	if input.ClassTimeUuid != grade.ClassTimeUuid {
		ct, err := s.usableClassTime(ctx, actor, input.ClassTimeUuid)
		if err != nil {
			return ClassGrade{}, err
		}
		ticks = ct.Ticks
	}

	grade.Nickname = strings.TrimSpace(input.Nickname)
	grade.ClassTimeUuid = input.ClassTimeUuid
	grade.SemesterBegin = begin
	grade.SemesterEnd = end
	classes, err := s.repo.ListClasses(ctx, classGradeUuid)
	if err != nil {
		return ClassGrade{}, err
	}
	if !fits(classes, grade.Weeks(), len(ticks)) {
		return ClassGrade{}, ErrClassesDontFit
	}

	grade.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateGrade(ctx, grade); err != nil {
		return ClassGrade{}, err
	}
	return grade, nil
}

func (s *ServiceImpl) DeleteClassGrade(ctx context.Context, classGradeUuid string) error {
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	grade, err := s.repo.GetGrade(ctx, classGradeUuid)
	if err != nil {
		return err
	}
	if !access.CanManageTimetable(actor, grade.UserUuid) {
		return ErrNotOwner
	}
	log.Debugf("deleting class grade %s", classGradeUuid)
	return s.repo.DeleteGrade(ctx, classGradeUuid)
}

func (s *ServiceImpl) GetClassGrade(ctx context.Context, classGradeUuid string) (ClassGrade, error) {
	_, grade, _, err := s.ownedGrade(ctx, classGradeUuid)
	return grade, err
}

func (s *ServiceImpl) GetClassGradeList(ctx context.Context) ([]ClassGrade, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListGrades(ctx, actor.Uuid)
}

// AddClass creates one class per week. Every week is checked before anything is stored.
func (s *ServiceImpl) AddClass(ctx context.Context, classGradeUuid string, input ClassInput) ([]Class, error) {
	_, grade, ticks, err := s.ownedGrade(ctx, classGradeUuid)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrEmptyName
	}
	if err := input.Slot.validate(len(ticks)); err != nil {
		return nil, err
	}
	weeks := input.Weeks
	if len(weeks) == 0 {
		for week := 1; week <= grade.Weeks(); week++ {
			weeks = append(weeks, week)
		}
	}

	existing, err := s.repo.ListClasses(ctx, classGradeUuid)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	classes := make([]Class, 0, len(weeks))
	for _, week := range weeks {
		if week < 1 || week > grade.Weeks() {
			return nil, fmt.Errorf("week %d of %d: %w", week, grade.Weeks(), ErrInvalidSlot)
		}
		c := Class{
			ClassUuid:      newUuid(),
			ClassGradeUuid: classGradeUuid,
			Name:           strings.TrimSpace(input.Name),
			Teacher:        input.Teacher,
			Location:       input.Location,
			Week:           week,
			Slot:           input.Slot,
			CreatedAt:      now,
		}
		if other, clash := conflict(existing, c); clash {
			return nil, fmt.Errorf("%q in week %d: %w", other.Name, week, ErrClassConflict)
		}
		existing = append(existing, c)
		classes = append(classes, c)
	}

	log.Debugf("adding %d class(es) to grade %s", len(classes), classGradeUuid)
	if err := s.repo.CreateClasses(ctx, classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// ownedClass loads a class together with its grade and ticks, checking the grade belongs to the actor.
func (s *ServiceImpl) ownedClass(ctx context.Context, classUuid string) (Class, ClassGrade, []Tick, error) {
	if _, err := currentActor(ctx); err != nil {
		return Class{}, ClassGrade{}, nil, err
	}
	c, err := s.repo.GetClass(ctx, classUuid)
	if err != nil {
		return Class{}, ClassGrade{}, nil, err
	}
	_, grade, ticks, err := s.ownedGrade(ctx, c.ClassGradeUuid)
	if err != nil {
		return Class{}, ClassGrade{}, nil, err
	}
	return c, grade, ticks, nil
}

func (s *ServiceImpl) MoveClass(ctx context.Context, classUuid string, to Placement) (Class, error) {
	c, grade, ticks, err := s.ownedClass(ctx, classUuid)
	if err != nil {
		return Class{}, err
	}
	if to.Week < 1 || to.Week > grade.Weeks() {
		return Class{}, fmt.Errorf("week %d of %d: %w", to.Week, grade.Weeks(), ErrInvalidSlot)
	}
	if err := to.Slot.validate(len(ticks)); err != nil {
		return Class{}, err
	}
	existing, err := s.repo.ListClasses(ctx, c.ClassGradeUuid)
	if err != nil {
		return Class{}, err
	}
	c.Week = to.Week
	c.Slot = to.Slot
	if other, clash := conflict(existing, c); clash {
		return Class{}, fmt.Errorf("%q in week %d: %w", other.Name, c.Week, ErrClassConflict)
	}
	if err := s.repo.UpdateClasses(ctx, []Class{c}); err != nil {
		return Class{}, err
	}
	return c, nil
}

func (s *ServiceImpl) DeleteClass(ctx context.Context, classUuid string) error {
	if _, _, _, err := s.ownedClass(ctx, classUuid); err != nil {
		return err
	}
	return s.repo.DeleteClasses(ctx, []string{classUuid})
}

// matching splits the grade's classes into those named name at slot and the rest.
func (s *ServiceImpl) matching(ctx context.Context, classGradeUuid, name string, slot Slot) ([]Class, []Class, error) {
	classes, err := s.repo.ListClasses(ctx, classGradeUuid)
	if err != nil {
		return nil, nil, err
	}
	var matched, rest []Class
	for _, c := range classes {
		if c.Name == name && c.Slot == slot {
			matched = append(matched, c)
		} else {
			rest = append(rest, c)
		}
	}
	if len(matched) == 0 {
		return nil, nil, fmt.Errorf("%q on day %d ticks %d-%d: %w", name, slot.DayTick, slot.StartTick, slot.EndTick, ErrClassNotFound)
	}
	return matched, rest, nil
}

func (s *ServiceImpl) MoveClasses(ctx context.Context, classGradeUuid, name string, from, to Slot) (int, error) {
	_, _, ticks, err := s.ownedGrade(ctx, classGradeUuid)
	if err != nil {
		return 0, err
	}
	if err := to.validate(len(ticks)); err != nil {
		return 0, err
	}
	matched, rest, err := s.matching(ctx, classGradeUuid, strings.TrimSpace(name), from)
	if err != nil {
		return 0, err
	}
	for i := range matched {
		matched[i].Slot = to
		if other, clash := conflict(rest, matched[i]); clash {
			return 0, fmt.Errorf("%q in week %d: %w", other.Name, matched[i].Week, ErrClassConflict)
		}
	}
	log.Debugf("moving %d class(es) of grade %s", len(matched), classGradeUuid)
	if err := s.repo.UpdateClasses(ctx, matched); err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *ServiceImpl) DeleteClasses(ctx context.Context, classGradeUuid, name string, from Slot) (int, error) {
	if _, _, _, err := s.ownedGrade(ctx, classGradeUuid); err != nil {
		return 0, err
	}
	matched, _, err := s.matching(ctx, classGradeUuid, strings.TrimSpace(name), from)
	if err != nil {
		return 0, err
	}
	uuids := make([]string, 0, len(matched))
	for _, c := range matched {
		uuids = append(uuids, c.ClassUuid)
	}
	if err := s.repo.DeleteClasses(ctx, uuids); err != nil {
		return 0, err
	}
	return len(uuids), nil
}

func (s *ServiceImpl) GetLessons(ctx context.Context, classGradeUuid string, week int) ([]Lesson, error) {
	_, grade, ticks, err := s.ownedGrade(ctx, classGradeUuid)
	if err != nil {
		return nil, err
	}
	if week < 0 || week > grade.Weeks() {
		return nil, fmt.Errorf("week %d of %d: %w", week, grade.Weeks(), ErrInvalidSlot)
	}
	classes, err := s.repo.ListClasses(ctx, classGradeUuid)
	if err != nil {
		return nil, err
	}
	loc := s.clock.Now().Location()
	lessons := make([]Lesson, 0, len(classes))
	for _, c := range classes {
		if week != 0 && c.Week != week {
			continue
		}
		lessons = append(lessons, lessonOf(grade, ticks, c, loc))
	}
	return lessons, nil
}

func clampPage(page, size int) (int, int, error) {
	if page > MaxPage {
		return 0, 0, fmt.Errorf("page %d: %w", page, ErrPageOutOfRange)
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size, nil
}
