package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
)

// Type decides which time predicate applies to a schedule when aggregating.
type Type int

const (
	// TypeRanged is a timed event that must lie fully inside the window.
	TypeRanged Type = 0
	// TypeUndated is a backlog item, always included.
	TypeUndated Type = 1
	// TypeOpenEnded runs from its start time on, with no upper bound.
	TypeOpenEnded Type = 2
)

// Types lists every schedule type in query order.
var Types = []Type{TypeRanged, TypeOpenEnded, TypeUndated}

func (t Type) Valid() bool {
	return t == TypeRanged || t == TypeUndated || t == TypeOpenEnded
}

type Priority int

const (
	PriorityLow       Priority = 1
	PriorityGeneral   Priority = 2
	PriorityNormal    Priority = 3
	PriorityImportant Priority = 4
)

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityImportant
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityGeneral:
		return "general"
	case PriorityNormal:
		return "normal"
	case PriorityImportant:
		return "important"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

var (
	ErrScheduleNotFound = fmt.Errorf("schedule not found: %w", apperr.ErrNotFound)
	ErrInvalidType      = fmt.Errorf("unknown schedule type: %w", apperr.ErrInvalidArgument)
	ErrInvalidPriority  = fmt.Errorf("unknown schedule priority: %w", apperr.ErrInvalidArgument)
	ErrEmptyName        = fmt.Errorf("schedule name is empty: %w", apperr.ErrInvalidArgument)
)

// Schedule is owned by exactly one of a user or a group.
type Schedule struct {
	ScheduleUuid string
	UserUuid     *string
	GroupUuid    *string
	Name         string
	Description  string
	StartTime    time.Time
	EndTime      time.Time
	Type         Type
	LoopType     int
	CustomLoop   string
	Tags         []string
	Priority     Priority
	Resources    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s Schedule) IsPersonal() bool {
	return s.UserUuid != nil
}

// Owner returns the owning user or group uuid.
func (s Schedule) Owner() string {
	if s.UserUuid != nil {
		return *s.UserUuid
	}
	if s.GroupUuid != nil {
		return *s.GroupUuid
	}
	return ""
}

// Equal compares every field. Time values are compared as instants.
func (s Schedule) Equal(o Schedule) bool {
	return s.ScheduleUuid == o.ScheduleUuid &&
		equalPtr(s.UserUuid, o.UserUuid) &&
		equalPtr(s.GroupUuid, o.GroupUuid) &&
		s.Name == o.Name &&
		s.Description == o.Description &&
		s.StartTime.Equal(o.StartTime) &&
		s.EndTime.Equal(o.EndTime) &&
		s.Type == o.Type &&
		s.LoopType == o.LoopType &&
		s.CustomLoop == o.CustomLoop &&
		slices.Equal(s.Tags, o.Tags) &&
		s.Priority == o.Priority &&
		slices.Equal(s.Resources, o.Resources) &&
		s.CreatedAt.Equal(o.CreatedAt) &&
		s.UpdatedAt.Equal(o.UpdatedAt)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func validate(t Type, p Priority) error {
	if !t.Valid() {
		return fmt.Errorf("%d: %w", int(t), ErrInvalidType)
	}
	if !p.Valid() {
		return fmt.Errorf("%d: %w", int(p), ErrInvalidPriority)
	}
	return nil
}

func ptr(s string) *string {
	return &s
}
