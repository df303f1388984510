package agenda

import (
	"fmt"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/pkg/schedule"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidPeriod = fmt.Errorf("unknown period: %w", apperr.ErrInvalidArgument)
	ErrInvalidDate   = fmt.Errorf("invalid date: %w", apperr.ErrInvalidArgument)
	ErrInvalidRange  = fmt.Errorf("end date is before start date: %w", apperr.ErrInvalidArgument)
	// ErrCorruptPriority is returned when a stored schedule carries a priority outside the known levels.
	ErrCorruptPriority = fmt.Errorf("schedule has an unknown priority: %w", apperr.ErrInvalidArgument)
)

type Period int

const (
	PeriodYear Period = iota
	PeriodMonth
	PeriodWeek
	PeriodToday
)

func ParsePeriod(s string) (Period, error) {
	switch s {
	case "year":
		return PeriodYear, nil
	case "month":
		return PeriodMonth, nil
	case "week":
		return PeriodWeek, nil
	case "today":
		return PeriodToday, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidPeriod)
	}
}

func (p Period) String() string {
	switch p {
	case PeriodYear:
		return "year"
	case PeriodMonth:
		return "month"
	case PeriodWeek:
		return "week"
	case PeriodToday:
		return "today"
	default:
		return fmt.Sprintf("Period(%d)", int(p))
	}
}

// Window is a closed time interval. Both ends are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Window computes the period containing now, in now's location.
func (p Period) Window(now time.Time) (Window, error) {
	loc := now.Location()
	y, m, d := now.Date()
	switch p {
	case PeriodYear:
		return Window{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, time.December, 31, 23, 59, 59, 0, loc),
		}, nil
	case PeriodMonth:
		return Window{
			Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
			// day 0 of the next month is the last day of this one
			End: time.Date(y, m+1, 0, 23, 59, 59, 0, loc),
		}, nil
	case PeriodWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return Window{
			Start: time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc),
			End:   time.Date(y, m, d-sinceMonday+6, 23, 59, 59, 0, loc),
		}, nil
	case PeriodToday:
		return Window{
			Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
			End:   time.Date(y, m, d, 23, 59, 59, 0, loc),
		}, nil
	default:
		return Window{}, fmt.Errorf("%d: %w", int(p), ErrInvalidPeriod)
	}
}

// DayWindow turns two YYYY-MM-DD dates into a window from the start of the first day to the end of the last.
func DayWindow(startDate, endDate string, loc *time.Location) (Window, error) {
	start, err := time.ParseInLocation(dateLayout, startDate, loc)
	if err != nil {
		return Window{}, fmt.Errorf("start %q: %w", startDate, ErrInvalidDate)
	}
	end, err := time.ParseInLocation(dateLayout, endDate, loc)
	if err != nil {
		return Window{}, fmt.Errorf("end %q: %w", endDate, ErrInvalidDate)
	}
	if end.Before(start) {
		return Window{}, ErrInvalidRange
	}
	y, m, d := end.Date()
	return Window{
		Start: start,
		End:   time.Date(y, m, d, 23, 59, 59, 0, loc),
	}, nil
}

type PriorityBuckets struct {
	Important []schedule.Schedule
	Normal    []schedule.Schedule
	General   []schedule.Schedule
	Low       []schedule.Schedule
}

func (b PriorityBuckets) Len() int {
	return len(b.Important) + len(b.Normal) + len(b.General) + len(b.Low)
}

// Partition places every schedule in exactly one bucket, keeping input order within a bucket.
func Partition(schedules []schedule.Schedule) (PriorityBuckets, error) {
	buckets := PriorityBuckets{
		Important: []schedule.Schedule{},
		Normal:    []schedule.Schedule{},
		General:   []schedule.Schedule{},
		Low:       []schedule.Schedule{},
	}
	for _, s := range schedules {
		switch s.Priority {
		case schedule.PriorityImportant:
			buckets.Important = append(buckets.Important, s)
		case schedule.PriorityNormal:
			buckets.Normal = append(buckets.Normal, s)
		case schedule.PriorityGeneral:
			buckets.General = append(buckets.General, s)
		case schedule.PriorityLow:
			buckets.Low = append(buckets.Low, s)
		default:
			return PriorityBuckets{}, fmt.Errorf("schedule %s priority %d: %w", s.ScheduleUuid, int(s.Priority), ErrCorruptPriority)
		}
	}
	return buckets, nil
}

// Dedup drops schedules that are fully equal to one seen earlier.
// Two rows with the same uuid but different content are both kept.
func Dedup(schedules []schedule.Schedule) []schedule.Schedule {
	result := make([]schedule.Schedule, 0, len(schedules))
	seen := make(map[string][]schedule.Schedule, len(schedules))
	for _, s := range schedules {
		duplicate := false
		for _, prev := range seen[s.ScheduleUuid] {
			if prev.Equal(s) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		seen[s.ScheduleUuid] = append(seen[s.ScheduleUuid], s)
		result = append(result, s)
	}
	return result
}
