package schedule

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type RepositoryStub struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{schedules: make(map[string]Schedule)}
}

func cloneSchedule(s Schedule) Schedule {
	if s.UserUuid != nil {
		s.UserUuid = ptr(*s.UserUuid)
	}
	if s.GroupUuid != nil {
		s.GroupUuid = ptr(*s.GroupUuid)
	}
	s.Tags = slices.Clone(nonNil(s.Tags))
	s.Resources = slices.Clone(nonNil(s.Resources))
	return s
}

func (r *RepositoryStub) Create(ctx context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ScheduleUuid] = cloneSchedule(s)
	return nil
}

func (r *RepositoryStub) Get(ctx context.Context, scheduleUuid string) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[scheduleUuid]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return cloneSchedule(s), nil
}

func (r *RepositoryStub) Update(ctx context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.schedules[s.ScheduleUuid]
	if !ok {
		return ErrScheduleNotFound
	}
	s.CreatedAt = existing.CreatedAt
	r.schedules[s.ScheduleUuid] = cloneSchedule(s)
	return nil
}

func (r *RepositoryStub) Delete(ctx context.Context, scheduleUuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[scheduleUuid]; !ok {
		return ErrScheduleNotFound
	}
	delete(r.schedules, scheduleUuid)
	return nil
}

func (r *RepositoryStub) matching(filter Filter) []Schedule {
	matched := make([]Schedule, 0)
	for _, s := range r.schedules {
		if filter.Matches(s) {
			matched = append(matched, cloneSchedule(s))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ScheduleUuid < b.ScheduleUuid
	})
	return matched
}

func (r *RepositoryStub) Find(ctx context.Context, filter Filter) ([]Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.matching(filter)
	if filter.Limit <= 0 {
		return matched, nil
	}
	start := min(filter.Offset, len(matched))
	end := min(start+filter.Limit, len(matched))
	return matched[start:end], nil
}

func (r *RepositoryStub) Count(ctx context.Context, filter Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matching(filter)), nil
}
