package agenda

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/metrics"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/access"
	"github.com/grouplan/grouplan/pkg/group"
	"github.com/grouplan/grouplan/pkg/schedule"
	"github.com/grouplan/grouplan/pkg/user"
	log "github.com/sirupsen/logrus"
)

const productId = "-//grouplan//agenda//EN"

var ErrNotGroupMember = fmt.Errorf("user is not a member of the group: %w", apperr.ErrNotGroupMember)

// Schedules is the read side of the schedule repository.
type Schedules interface {
	Find(ctx context.Context, filter schedule.Filter) ([]schedule.Schedule, error)
}

type Groups interface {
	FindGroup(ctx context.Context, groupUuid string) (group.Group, error)
	HasMemberRow(ctx context.Context, groupUuid, userUuid string) (bool, error)
	ReachableGroups(ctx context.Context, userUuid string) ([]string, error)
}

type Service interface {
	GetSchedulePriorityList(ctx context.Context, period Period) (PriorityBuckets, error)
	// GetScheduleListMaybeGroup returns only groupUuid's schedules when it is set,
	// otherwise the actor's personal and reachable group schedules.
	GetScheduleListMaybeGroup(ctx context.Context, groupUuid *string, startDate, endDate string) ([]schedule.Schedule, error)
	ExportICS(ctx context.Context, startDate, endDate string) (string, error)
}

type ServiceImpl struct {
	schedules Schedules
	groups    Groups
	clock     utils.Clock
	metrics   metrics.MetricsCollector
}

func NewService(schedules Schedules, groups Groups, clock utils.Clock, collector metrics.MetricsCollector) *ServiceImpl {
	return &ServiceImpl{
		schedules: schedules,
		groups:    groups,
		clock:     clock,
		metrics:   collector,
	}
}

func (s *ServiceImpl) GetSchedulePriorityList(ctx context.Context, period Period) (PriorityBuckets, error) {
	window, err := period.Window(s.clock.Now())
	if err != nil {
		return PriorityBuckets{}, err
	}
	log.Debugf("aggregating %s window %s - %s", period, window.Start, window.End)

	schedules, err := s.visibleSchedules(ctx, window)
	if err != nil {
		return PriorityBuckets{}, err
	}
	buckets, err := Partition(schedules)
	if err != nil {
		log.Errorf("failed to partition schedules: %v", err)
		return PriorityBuckets{}, err
	}
	s.record("priority", buckets.Len())
	return buckets, nil
}

func (s *ServiceImpl) GetScheduleListMaybeGroup(ctx context.Context, groupUuid *string, startDate, endDate string) ([]schedule.Schedule, error) {
	window, err := DayWindow(startDate, endDate, s.clock.Now().Location())
	if err != nil {
		return nil, err
	}
	if groupUuid == nil {
		schedules, err := s.visibleSchedules(ctx, window)
		if err != nil {
			return nil, err
		}
		s.record("range", len(schedules))
		return schedules, nil
	}

	actor, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.groups.FindGroup(ctx, *groupUuid)
	if err != nil {
		return nil, err
	}
	hasRow, err := s.groups.HasMemberRow(ctx, g.GroupUuid, actor.Uuid)
	if err != nil {
		return nil, err
	}
	if !access.IsMember(actor, g.Master, hasRow) {
		log.Warnf("user %s requested agenda of group %s without membership", actor.Uuid, g.GroupUuid)
		return nil, ErrNotGroupMember
	}

	schedules, err := s.windowed(ctx, schedule.Filter{GroupUuids: []string{g.GroupUuid}}, window)
	if err != nil {
		return nil, err
	}
	s.record("group", len(schedules))
	return schedules, nil
}

// ExportICS renders the actor's personal and group schedules in the date range as an iCalendar document.
// Undated schedules have no place on a calendar and are left out.
func (s *ServiceImpl) ExportICS(ctx context.Context, startDate, endDate string) (string, error) {
	schedules, err := s.GetScheduleListMaybeGroup(ctx, nil, startDate, endDate)
	if err != nil {
		return "", err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productId)
	for _, sc := range schedules {
		if sc.Type == schedule.TypeUndated {
			continue
		}
		event := cal.AddEvent(sc.ScheduleUuid)
		event.SetSummary(sc.Name)
		if sc.Description != "" {
			event.SetDescription(sc.Description)
		}
		event.SetDtStampTime(sc.UpdatedAt)
		event.SetCreatedTime(sc.CreatedAt)
		event.SetModifiedAt(sc.UpdatedAt)
		event.SetStartAt(sc.StartTime)
		if sc.Type == schedule.TypeRanged {
			event.SetEndAt(sc.EndTime)
		}
		for _, tag := range sc.Tags {
			event.AddProperty(ical.ComponentPropertyCategories, tag)
		}
		event.SetProperty(ical.ComponentPropertyPriority, strconv.Itoa(icalPriority(sc.Priority)))
	}
	return cal.Serialize(), nil
}

// icalPriority maps to RFC 5545 priorities where 1 is the highest and 9 the lowest.
func icalPriority(p schedule.Priority) int {
	switch p {
	case schedule.PriorityImportant:
		return 1
	case schedule.PriorityNormal:
		return 3
	case schedule.PriorityGeneral:
		return 5
	case schedule.PriorityLow:
		return 9
	default:
		return 0
	}
}

// visibleSchedules returns the actor's personal schedules and those of every group the actor can reach.
func (s *ServiceImpl) visibleSchedules(ctx context.Context, window Window) ([]schedule.Schedule, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	groupUuids, err := s.groups.ReachableGroups(ctx, actor.Uuid)
	if err != nil {
		return nil, fmt.Errorf("failed to load reachable groups: %w", err)
	}
	if len(groupUuids) == 0 {
		// matches no group
		groupUuids = []string{uuid.Nil.String()}
	}
	return s.windowed(ctx, schedule.Filter{UserUuid: actor.Uuid, GroupUuids: groupUuids}, window)
}

// windowed runs one query per schedule type with that type's time predicate and merges the results.
func (s *ServiceImpl) windowed(ctx context.Context, owners schedule.Filter, window Window) ([]schedule.Schedule, error) {
	var all []schedule.Schedule
	for _, t := range schedule.Types {
		filter := owners
		filter.Types = []schedule.Type{t}
		switch t {
		case schedule.TypeRanged:
			filter.StartFrom = window.Start
			filter.EndUntil = window.End
		case schedule.TypeOpenEnded:
			filter.StartFrom = window.Start
		case schedule.TypeUndated:
			// always included
		}
		found, err := s.schedules.Find(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to find type %d schedules: %w", int(t), err)
		}
		all = append(all, found...)
	}

	result := Dedup(all)
	slices.SortStableFunc(result, func(a, b schedule.Schedule) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ScheduleUuid, b.ScheduleUuid)
	})
	return result, nil
}

func (s *ServiceImpl) record(mode string, count int) {
	if s.metrics != nil {
		s.metrics.RecordAggregation(mode, count)
	}
}

func currentActor(ctx context.Context) (access.Actor, error) {
	userUuid, err := user.CurrentUuid(ctx)
	if err != nil {
		return access.Actor{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return access.Actor{Uuid: userUuid}, nil
}
