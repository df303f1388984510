package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/event_bus"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/access"
	"github.com/grouplan/grouplan/pkg/file"
	"github.com/grouplan/grouplan/pkg/group"
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
	ErrNotOwner        = fmt.Errorf("schedule belongs to another user: %w", apperr.ErrPermissionDenied)
	ErrNotGroupMember  = fmt.Errorf("user is not a member of the schedule's group: %w", apperr.ErrNotGroupMember)
	ErrNotGroupMaster  = fmt.Errorf("only the group master may delete group schedules: %w", apperr.ErrPermissionDenied)
	ErrUnknownResource = fmt.Errorf("resource is not attached to the schedule: %w", apperr.ErrInvalidArgument)
	ErrPageOutOfRange  = fmt.Errorf("page is out of range: %w", apperr.ErrInvalidArgument)
)

// Groups provides the group facts the access checks need.
type Groups interface {
	FindGroup(ctx context.Context, groupUuid string) (group.Group, error)
	HasMemberRow(ctx context.Context, groupUuid, userUuid string) (bool, error)
}

// Content holds the fields a caller sets directly.
type Content struct {
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Type        Type
	LoopType    int
	CustomLoop  string
	Tags        []string
	Priority    Priority
}

type AddInput struct {
	Content
	AddToGroup bool
	GroupUuid  string
	// Resources are encoded images uploaded through the file service.
	Resources []string
}

type EditInput struct {
	Content
	// GroupUuid nil moves the schedule to the acting user.
	GroupUuid *string
	// AddResources replace the stored resource list when not empty.
	AddResources    []string
	DeleteResources []string
}

type Page struct {
	Records []Schedule
	Total   int
	Page    int
	Size    int
}

type Service interface {
	AddSchedule(ctx context.Context, input AddInput) (Schedule, error)
	EditSchedule(ctx context.Context, scheduleUuid string, input EditInput) (Schedule, error)
	DeleteSchedule(ctx context.Context, scheduleUuid string) error
	GetSchedule(ctx context.Context, scheduleUuid string) (Schedule, error)
	GetScheduleList(ctx context.Context, page, size int, search string) (Page, error)
	// DeleteGroupSchedules removes every schedule of a group together with its images.
	DeleteGroupSchedules(ctx context.Context, groupUuid string) (int, error)
}

type ServiceImpl struct {
	repo   Repository
	groups Groups
	files  file.Service
	clock  utils.Clock
}

func NewService(repo Repository, groups Groups, files file.Service, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	service := &ServiceImpl{repo: repo, groups: groups, files: files, clock: clock}
	event_bus.SubscribeTyped[event_bus.GroupDeleted](
		eventBus,
		event_bus.GroupDeletedEvent,
		func(e event_bus.EventT[event_bus.GroupDeleted]) error {
			log.Debugf("received group deleted event: %v", e.Data)
			count, err := service.DeleteGroupSchedules(e.Context(), e.Data.GroupUuid)
			if err != nil {
				log.Errorf("failed to delete schedules of group %s: %v", e.Data.GroupUuid, err)
				return err
			}
			log.Debugf("deleted %d schedule(s) of group %s", count, e.Data.GroupUuid)
			return nil
		},
	)
	return service
}

func newScheduleUuid() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func currentActor(ctx context.Context) (access.Actor, error) {
	userUuid, err := user.CurrentUuid(ctx)
	if err != nil {
		return access.Actor{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return access.Actor{Uuid: userUuid}, nil
}

// loadGroupFacts returns the group and whether actor has a membership row in it.
func (s *ServiceImpl) loadGroupFacts(ctx context.Context, groupUuid string, actor access.Actor) (group.Group, bool, error) {
	g, err := s.groups.FindGroup(ctx, groupUuid)
	if err != nil {
		return group.Group{}, false, err
	}
	hasRow, err := s.groups.HasMemberRow(ctx, groupUuid, actor.Uuid)
	if err != nil {
		return group.Group{}, false, err
	}
	return g, hasRow, nil
}

// attachableGroup checks that actor may put schedules into groupUuid.
func (s *ServiceImpl) attachableGroup(ctx context.Context, groupUuid string, actor access.Actor) (group.Group, error) {
	g, hasRow, err := s.loadGroupFacts(ctx, groupUuid, actor)
	if err != nil {
		return group.Group{}, err
	}
	if err := access.AddScheduleDenial(actor, g.Master, g.UserAbleAdd, hasRow); err != nil {
		log.Warnf("user %s may not add schedules to group %s: %v", actor.Uuid, groupUuid, err)
		return group.Group{}, err
	}
	return g, nil
}

func (s *ServiceImpl) AddSchedule(ctx context.Context, input AddInput) (Schedule, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Schedule{}, err
	}

	now := s.clock.Now()
	schedule := Schedule{ScheduleUuid: newScheduleUuid(), CreatedAt: now, UpdatedAt: now}
	if input.AddToGroup {
		g, err := s.attachableGroup(ctx, input.GroupUuid, actor)
		if err != nil {
			return Schedule{}, err
		}
		schedule.GroupUuid = ptr(g.GroupUuid)
	}
	if err := validateContent(input.Content); err != nil {
		return Schedule{}, err
	}
	applyContent(&schedule, input.Content)

	resources, err := s.uploadAll(ctx, input.Resources)
	if err != nil {
		return Schedule{}, err
	}
	schedule.Resources = resources

	if schedule.GroupUuid == nil {
		schedule.UserUuid = ptr(actor.Uuid)
	}

	log.Debugf("adding schedule %s owned by %s", schedule.ScheduleUuid, schedule.Owner())
	if err := s.repo.Create(ctx, schedule); err != nil {
		s.deleteAll(ctx, resources)
		return Schedule{}, err
	}
	return schedule, nil
}

func (s *ServiceImpl) EditSchedule(ctx context.Context, scheduleUuid string, input EditInput) (Schedule, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Schedule{}, err
	}
	schedule, err := s.repo.Get(ctx, scheduleUuid)
	if err != nil {
		return Schedule{}, err
	}

	if schedule.IsPersonal() {
		if !access.CanManagePersonalSchedule(actor, *schedule.UserUuid) {
			return Schedule{}, ErrNotOwner
		}
	} else {
		g, hasRow, err := s.loadGroupFacts(ctx, *schedule.GroupUuid, actor)
		if err != nil {
			return Schedule{}, err
		}
		if !access.CanEditGroupSchedule(actor, g.Master, hasRow) {
			return Schedule{}, ErrNotGroupMember
		}
	}
	if err := validateContent(input.Content); err != nil {
		return Schedule{}, err
	}
	for _, ref := range input.DeleteResources {
		if !slices.Contains(schedule.Resources, ref) {
			return Schedule{}, fmt.Errorf("%s: %w", ref, ErrUnknownResource)
		}
	}

	switch {
	case input.GroupUuid == nil:
		schedule.UserUuid = ptr(actor.Uuid)
		schedule.GroupUuid = nil
	case schedule.GroupUuid != nil && *schedule.GroupUuid == *input.GroupUuid:
		// stays in its group
	default:
		g, err := s.attachableGroup(ctx, *input.GroupUuid, actor)
		if err != nil {
			return Schedule{}, err
		}
		schedule.UserUuid = nil
		schedule.GroupUuid = ptr(g.GroupUuid)
	}

	previous := schedule.Resources
	resources := slices.DeleteFunc(slices.Clone(previous), func(ref string) bool {
		return slices.Contains(input.DeleteResources, ref)
	})
	var uploaded []string
	if len(input.AddResources) > 0 {
		uploaded, err = s.uploadAll(ctx, input.AddResources)
		if err != nil {
			return Schedule{}, err
		}
		resources = uploaded
	}
	schedule.Resources = resources

	applyContent(&schedule, input.Content)
	schedule.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, schedule); err != nil {
		s.deleteAll(ctx, uploaded)
		return Schedule{}, err
	}

	// images leave the disk only once the row no longer references them
	s.deleteAll(ctx, slices.DeleteFunc(slices.Clone(previous), func(ref string) bool {
		return slices.Contains(resources, ref)
	}))
	return schedule, nil
}

func (s *ServiceImpl) DeleteSchedule(ctx context.Context, scheduleUuid string) error {
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	schedule, err := s.repo.Get(ctx, scheduleUuid)
	if err != nil {
		return err
	}

	if schedule.IsPersonal() {
		if !access.CanManagePersonalSchedule(actor, *schedule.UserUuid) {
			return ErrNotOwner
		}
	} else {
		g, err := s.groups.FindGroup(ctx, *schedule.GroupUuid)
		if err != nil {
			return err
		}
		if !access.CanDeleteGroupSchedule(actor, g.Master) {
			log.Warnf("user %s may not delete schedule %s of group %s", actor.Uuid, scheduleUuid, g.GroupUuid)
			return ErrNotGroupMaster
		}
	}

	if err := s.repo.Delete(ctx, scheduleUuid); err != nil {
		return err
	}
	s.deleteAll(ctx, schedule.Resources)
	return nil
}

func (s *ServiceImpl) GetSchedule(ctx context.Context, scheduleUuid string) (Schedule, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Schedule{}, err
	}
	schedule, err := s.repo.Get(ctx, scheduleUuid)
	if err != nil {
		return Schedule{}, err
	}

	if schedule.IsPersonal() {
		if !access.CanManagePersonalSchedule(actor, *schedule.UserUuid) {
			return Schedule{}, ErrNotOwner
		}
		return schedule, nil
	}
	g, hasRow, err := s.loadGroupFacts(ctx, *schedule.GroupUuid, actor)
	if err != nil {
		return Schedule{}, err
	}
	if !access.CanReadGroupSchedule(actor, g.Master, hasRow) {
		return Schedule{}, ErrNotGroupMember
	}
	return schedule, nil
}

func (s *ServiceImpl) GetScheduleList(ctx context.Context, page, size int, search string) (Page, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Page{}, err
	}
	page, size, err = clampPage(page, size)
	if err != nil {
		return Page{}, err
	}

	filter := Filter{UserUuid: actor.Uuid, Search: strings.TrimSpace(search)}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	filter.Limit = size
	filter.Offset = (page - 1) * size
	records, err := s.repo.Find(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: page, Size: size}, nil
}

func (s *ServiceImpl) DeleteGroupSchedules(ctx context.Context, groupUuid string) (int, error) {
	schedules, err := s.repo.Find(ctx, Filter{GroupUuids: []string{groupUuid}})
	if err != nil {
		return 0, err
	}
	for i, schedule := range schedules {
		if err := s.repo.Delete(ctx, schedule.ScheduleUuid); err != nil && !errors.Is(err, ErrScheduleNotFound) {
			return i, err
		}
		s.deleteAll(ctx, schedule.Resources)
	}
	return len(schedules), nil
}

// uploadAll uploads every resource in order. When one fails, the images already stored are removed again.
func (s *ServiceImpl) uploadAll(ctx context.Context, resources []string) ([]string, error) {
	refs := make([]string, 0, len(resources))
	for _, resource := range resources {
		ref, err := s.files.UploadImage(ctx, resource)
		if err != nil {
			s.deleteAll(ctx, refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// deleteAll removes stored images best-effort. It runs after the owning row is gone or no longer
// references them, or while unwinding a failed write.
func (s *ServiceImpl) deleteAll(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.files.DeleteImage(ctx, ref); err != nil {
			log.Warnf("failed to remove image %s: %v", ref, err)
		}
	}
}

func validateContent(c Content) error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return validate(c.Type, c.Priority)
}

func applyContent(s *Schedule, c Content) {
	s.Name = strings.TrimSpace(c.Name)
	s.Description = c.Description
	s.StartTime = c.StartTime
	s.EndTime = c.EndTime
	s.Type = c.Type
	s.LoopType = c.LoopType
	s.CustomLoop = c.CustomLoop
	s.Tags = slices.Clone(nonNil(c.Tags))
	s.Priority = c.Priority
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
