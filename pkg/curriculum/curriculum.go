// Package curriculum keeps course timetables. A class time describes the lesson slots of a day and can be
// shared on the market; a class grade is one user's semester timetable built on a class time; classes fill
// its slots week by week.
package curriculum

import (
	"fmt"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	daysInWeek  = 7
)

var (
	ErrClassTimeNotFound  = fmt.Errorf("class time not found: %w", apperr.ErrNotFound)
	ErrClassGradeNotFound = fmt.Errorf("class grade not found: %w", apperr.ErrNotFound)
	ErrClassNotFound      = fmt.Errorf("class not found: %w", apperr.ErrNotFound)
	ErrNotSaved           = fmt.Errorf("class time is not in the user's list: %w", apperr.ErrNotFound)

	ErrEmptyName       = fmt.Errorf("name is empty: %w", apperr.ErrInvalidArgument)
	ErrInvalidTicks    = fmt.Errorf("invalid lesson ticks: %w", apperr.ErrInvalidArgument)
	ErrInvalidSemester = fmt.Errorf("invalid semester: %w", apperr.ErrInvalidArgument)
	ErrInvalidSlot     = fmt.Errorf("invalid class slot: %w", apperr.ErrInvalidArgument)
	ErrClassConflict   = fmt.Errorf("class overlaps another class: %w", apperr.ErrInvalidArgument)
	ErrClassTimeInUse  = fmt.Errorf("class time is used by a class grade: %w", apperr.ErrInvalidArgument)
	ErrClassesDontFit  = fmt.Errorf("existing classes do not fit the new timetable: %w", apperr.ErrInvalidArgument)
)

// Tick is one lesson of a day as wall-clock times, e.g. 08:00 to 08:45.
type Tick struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (t Tick) bounds() (int, int, error) {
	start, err := time.Parse(clockLayout, t.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("start %q: %w", t.Start, ErrInvalidTicks)
	}
	end, err := time.Parse(clockLayout, t.End)
	if err != nil {
		return 0, 0, fmt.Errorf("end %q: %w", t.End, ErrInvalidTicks)
	}
	return start.Hour()*60 + start.Minute(), end.Hour()*60 + end.Minute(), nil
}

// ValidateTicks requires at least one tick, each ending after it starts, and no tick starting before the
// previous one ends.
func ValidateTicks(ticks []Tick) error {
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks: %w", ErrInvalidTicks)
	}
	previousEnd := -1
	for i, tick := range ticks {
		start, end, err := tick.bounds()
		if err != nil {
			return err
		}
		if end <= start {
			return fmt.Errorf("tick %d ends before it starts: %w", i+1, ErrInvalidTicks)
		}
		if start < previousEnd {
			return fmt.Errorf("tick %d overlaps tick %d: %w", i+1, i, ErrInvalidTicks)
		}
		previousEnd = end
	}
	return nil
}

// ClassTime is a lesson layout. Public ones are listed on the market.
type ClassTime struct {
	ClassTimeUuid string
	UserUuid      string
	Name          string
	Ticks         []Tick
	Public        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClassGrade is a semester timetable. Semester dates are calendar days at UTC midnight.
type ClassGrade struct {
	ClassGradeUuid string
	UserUuid       string
	ClassTimeUuid  string
	Nickname       string
	SemesterBegin  time.Time
	SemesterEnd    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// firstMonday is the Monday of the week the semester begins in. Week 1 starts there.
func (g ClassGrade) firstMonday() time.Time {
	sinceMonday := (int(g.SemesterBegin.Weekday()) + 6) % daysInWeek
	return g.SemesterBegin.AddDate(0, 0, -sinceMonday)
}

// Weeks is the number of teaching weeks, counting partial weeks at either end.
func (g ClassGrade) Weeks() int {
	days := int(g.SemesterEnd.Sub(g.firstMonday()).Hours() / 24)
	return days/daysInWeek + 1
}

// Day returns the calendar day of dayTick (1 = Monday) in the given week.
func (g ClassGrade) Day(week, dayTick int) time.Time {
	return g.firstMonday().AddDate(0, 0, (week-1)*daysInWeek+dayTick-1)
}

// ParseSemester parses both dates and checks that the semester does not end before it begins.
func ParseSemester(begin, end string) (time.Time, time.Time, error) {
	b, err := time.Parse(dateLayout, begin)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("begin %q: %w", begin, ErrInvalidSemester)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end %q: %w", end, ErrInvalidSemester)
	}
	if e.Before(b) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s before %s: %w", end, begin, ErrInvalidSemester)
	}
	return b, e, nil
}

// Slot is the place of a class inside a week: a weekday and a closed range of ticks.
type Slot struct {
	DayTick   int
	StartTick int
	EndTick   int
}

func (s Slot) validate(tickCount int) error {
	if s.DayTick < 1 || s.DayTick > daysInWeek {
		return fmt.Errorf("day %d: %w", s.DayTick, ErrInvalidSlot)
	}
	if s.StartTick < 1 || s.EndTick < s.StartTick || s.EndTick > tickCount {
		return fmt.Errorf("ticks %d-%d of %d: %w", s.StartTick, s.EndTick, tickCount, ErrInvalidSlot)
	}
	return nil
}

func (s Slot) overlaps(o Slot) bool {
	return s.DayTick == o.DayTick && s.StartTick <= o.EndTick && o.StartTick <= s.EndTick
}

// Class is one lesson block of a class grade in a single week.
type Class struct {
	ClassUuid      string
	ClassGradeUuid string
	Name           string
	Teacher        string
	Location       string
	Week           int
	Slot
	CreatedAt time.Time
}

// Lesson is a class placed on the calendar.
type Lesson struct {
	Class
	Start time.Time
	End   time.Time
}

// lessonOf resolves the wall-clock bounds of c in loc. The ticks must have been validated.
func lessonOf(grade ClassGrade, ticks []Tick, c Class, loc *time.Location) Lesson {
	day := grade.Day(c.Week, c.DayTick)
	start, _, _ := ticks[c.StartTick-1].bounds()
	_, end, _ := ticks[c.EndTick-1].bounds()
	at := func(minutes int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
	}
	return Lesson{Class: c, Start: at(start), End: at(end)}
}

// fits reports whether every class still has a valid week and slot under the given layout.
func fits(classes []Class, weeks, tickCount int) bool {
	for _, c := range classes {
		if c.Week < 1 || c.Week > weeks || c.Slot.validate(tickCount) != nil {
			return false
		}
	}
	return true
}

// conflict returns the first class in existing that overlaps c in the same week.
func conflict(existing []Class, c Class) (Class, bool) {
	for _, other := range existing {
		if other.ClassUuid != c.ClassUuid && other.Week == c.Week && other.overlaps(c.Slot) {
			return other, true
		}
	}
	return Class{}, false
}
