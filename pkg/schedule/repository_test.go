package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/grouplan/grouplan/internal/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepositoryTest(t *testing.T) (*RepositoryImpl, context.Context) {
	pool := test_utils.TestWithDB(t)
	return NewRepository(pool), context.Background()
}

func newTestSchedule(owner *string, groupUuid *string, scheduleType Type, priority Priority, start time.Time) Schedule {
	at := time.Now().UTC().Truncate(time.Millisecond)
	return Schedule{
		ScheduleUuid: newScheduleUuid(),
		UserUuid:     owner,
		GroupUuid:    groupUuid,
		Name:         "schedule",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Type:         scheduleType,
		Tags:         []string{"b", "a"},
		Priority:     priority,
		Resources:    []string{},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestRepositoryImpl_CRUD(t *testing.T) {
	repo, ctx := setupRepositoryTest(t)
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	s := newTestSchedule(ptr("u1"), nil, TypeRanged, PriorityImportant, start)

	// when
	require.NoError(t, repo.Create(ctx, s))
	fetched, err := repo.Get(ctx, s.ScheduleUuid)

	// then
	require.NoError(t, err)
	assert.Equal(t, s.Tags, fetched.Tags)
	assert.Equal(t, PriorityImportant, fetched.Priority)
	assert.True(t, s.StartTime.Equal(fetched.StartTime))
	assert.Nil(t, fetched.GroupUuid)

	// move to a group
	fetched.UserUuid = nil
	fetched.GroupUuid = ptr("g1")
	fetched.Resources = []string{"img.png"}
	require.NoError(t, repo.Update(ctx, fetched))
	updated, err := repo.Get(ctx, s.ScheduleUuid)
	require.NoError(t, err)
	assert.Equal(t, "g1", *updated.GroupUuid)
	assert.Nil(t, updated.UserUuid)
	assert.Equal(t, []string{"img.png"}, updated.Resources)

	require.NoError(t, repo.Delete(ctx, s.ScheduleUuid))
	_, err = repo.Get(ctx, s.ScheduleUuid)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, s.ScheduleUuid), ErrScheduleNotFound)
}

func TestRepositoryImpl_RejectsDoubleOwner(t *testing.T) {
	repo, ctx := setupRepositoryTest(t)
	s := newTestSchedule(ptr("u1"), ptr("g1"), TypeRanged, PriorityLow, time.Now())

	assert.Error(t, repo.Create(ctx, s))
}

func TestRepositoryImpl_FindAgreesWithFilterMatches(t *testing.T) {
	repo, ctx := setupRepositoryTest(t)
	ws := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	schedules := []Schedule{
		newTestSchedule(ptr("u1"), nil, TypeRanged, PriorityNormal, ws.Add(2*time.Hour)),
		newTestSchedule(ptr("u1"), nil, TypeOpenEnded, PriorityLow, ws.Add(48*time.Hour)),
		newTestSchedule(nil, ptr("g1"), TypeUndated, PriorityImportant, ws.Add(-48*time.Hour)),
		newTestSchedule(nil, ptr("g2"), TypeRanged, PriorityGeneral, ws.Add(3*time.Hour)),
		newTestSchedule(ptr("u2"), nil, TypeRanged, PriorityNormal, ws.Add(4*time.Hour)),
	}
	schedules[3].Name = "Board review"
	for _, s := range schedules {
		require.NoError(t, repo.Create(ctx, s))
	}

	filters := map[string]Filter{
		"owner union":  {UserUuid: "u1", GroupUuids: []string{"g1"}},
		"ranged day":   {UserUuid: "u1", GroupUuids: []string{"g1", "g2"}, Types: []Type{TypeRanged}, StartFrom: ws, EndUntil: ws.Add(24 * time.Hour)},
		"open ended":   {UserUuid: "u1", Types: []Type{TypeOpenEnded}, StartFrom: ws},
		"search":       {GroupUuids: []string{"g2"}, Search: "board"},
		"sentinel set": {GroupUuids: []string{"00000000-0000-0000-0000-000000000000"}},
	}
	for name, filter := range filters {
		t.Run(name, func(t *testing.T) {
			found, err := repo.Find(ctx, filter)
			require.NoError(t, err)
			count, err := repo.Count(ctx, filter)
			require.NoError(t, err)

			var expected []string
			for _, s := range schedules {
				if filter.Matches(s) {
					expected = append(expected, s.ScheduleUuid)
				}
			}
			var got []string
			for i, s := range found {
				got = append(got, s.ScheduleUuid)
				if i > 0 {
					assert.LessOrEqual(t, found[i-1].Priority, s.Priority, "ordered by priority")
				}
			}
			assert.ElementsMatch(t, expected, got)
			assert.Equal(t, len(expected), count)
		})
	}
}
