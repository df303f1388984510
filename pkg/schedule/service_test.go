package schedule

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/event_bus"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/file"
	"github.com/grouplan/grouplan/pkg/group"
	"github.com/grouplan/grouplan/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	master  = "u-master"
	member  = "u-member"
	outside = "u-outside"
)

var (
	now      = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	pngImage = base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'})
)

type testEnv struct {
	service *ServiceImpl
	repo    *RepositoryStub
	groups  *group.ServiceImpl
	files   *file.LocalStore
	clock   *utils.MockClock
}

func setupServiceTest(t *testing.T) testEnv {
	t.Helper()
	users := user.NewUserService(user.NewStubUserRepository(
		user.User{Uuid: master, Username: "master"},
		user.User{Uuid: member, Username: "member"},
		user.User{Uuid: outside, Username: "outside"},
	), "")
	bus := event_bus.NewEventBus()
	clock := utils.NewMockClock(now)
	groups := group.NewService(group.NewRepositoryStub(), users, bus, clock)
	files, err := file.NewLocalStore(config.Storage{ImageDir: filepath.Join(t.TempDir(), "images"), MaxImageBytes: 1 << 20})
	require.NoError(t, err)
	repo := NewRepositoryStub()
	return testEnv{
		service: NewService(repo, groups, files, bus, clock),
		repo:    repo,
		groups:  groups,
		files:   files,
		clock:   clock,
	}
}

func as(userUuid string) context.Context {
	return user.WithUser(context.Background(), user.User{Uuid: userUuid})
}

// createGroup creates a group mastered by master with member as its only member row.
func (e testEnv) createGroup(t *testing.T, userAbleAdd bool) group.Group {
	t.Helper()
	g, err := e.groups.CreateGroup(as(master), "team", userAbleAdd, nil)
	require.NoError(t, err)
	require.NoError(t, e.groups.AddGroupMember(as(master), g.GroupUuid, member))
	return g
}

func content(name string) Content {
	return Content{
		Name:      name,
		StartTime: now,
		EndTime:   now.Add(time.Hour),
		Type:      TypeRanged,
		Tags:      []string{"work"},
		Priority:  PriorityNormal,
	}
}

func assertSingleOwner(t *testing.T, s Schedule) {
	t.Helper()
	assert.True(t, (s.UserUuid == nil) != (s.GroupUuid == nil), "exactly one owner must be set")
}

func TestService_AddSchedule(t *testing.T) {
	env := setupServiceTest(t)

	t.Run("should create personal schedule", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("personal")})

		require.NoError(t, err)
		assertSingleOwner(t, s)
		assert.Equal(t, member, *s.UserUuid)
		assert.Equal(t, now, s.CreatedAt)
		stored, err := env.repo.Get(context.Background(), s.ScheduleUuid)
		require.NoError(t, err)
		assert.True(t, s.Equal(stored))
	})

	t.Run("should let member add to open group", func(t *testing.T) {
		g := env.createGroup(t, true)

		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("shared"), AddToGroup: true, GroupUuid: g.GroupUuid})

		require.NoError(t, err)
		assertSingleOwner(t, s)
		assert.Equal(t, g.GroupUuid, *s.GroupUuid)
	})

	t.Run("should deny member when group does not allow adding", func(t *testing.T) {
		g := env.createGroup(t, false)

		_, err := env.service.AddSchedule(as(member), AddInput{Content: content("shared"), AddToGroup: true, GroupUuid: g.GroupUuid})

		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("should let master add even when group does not allow adding", func(t *testing.T) {
		g := env.createGroup(t, false)
		_, err := env.service.AddSchedule(as(master), AddInput{Content: content("shared"), AddToGroup: true, GroupUuid: g.GroupUuid})
		assert.NoError(t, err)
	})

	t.Run("should report outsider as not a member", func(t *testing.T) {
		g := env.createGroup(t, true)
		_, err := env.service.AddSchedule(as(outside), AddInput{Content: content("shared"), AddToGroup: true, GroupUuid: g.GroupUuid})
		assert.ErrorIs(t, err, apperr.ErrNotGroupMember)
	})

	t.Run("should report missing group", func(t *testing.T) {
		_, err := env.service.AddSchedule(as(member), AddInput{Content: content("x"), AddToGroup: true, GroupUuid: "missing"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should report missing group before invalid content", func(t *testing.T) {
		c := content("bad")
		c.Priority = 7
		_, err := env.service.AddSchedule(as(member), AddInput{Content: c, AddToGroup: true, GroupUuid: "missing"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should reject unknown priority and type", func(t *testing.T) {
		c := content("bad")
		c.Priority = 7
		_, err := env.service.AddSchedule(as(member), AddInput{Content: c})
		assert.ErrorIs(t, err, ErrInvalidPriority)

		c = content("bad")
		c.Type = 5
		_, err = env.service.AddSchedule(as(member), AddInput{Content: c})
		assert.ErrorIs(t, err, ErrInvalidType)
	})

	t.Run("should upload resources", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("with image"), Resources: []string{pngImage}})

		require.NoError(t, err)
		require.Len(t, s.Resources, 1)
		assert.FileExists(t, env.files.Path(s.Resources[0]))
	})

	t.Run("should propagate upload failure and save nothing", func(t *testing.T) {
		before, _ := env.repo.Count(context.Background(), Filter{UserUuid: outside})

		_, err := env.service.AddSchedule(as(outside), AddInput{Content: content("broken"), Resources: []string{pngImage, "not base64!"}})

		assert.ErrorIs(t, err, file.ErrInvalidEncoding)
		after, _ := env.repo.Count(context.Background(), Filter{UserUuid: outside})
		assert.Equal(t, before, after)
	})
}

func TestService_EditSchedule(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, true)

	t.Run("should deny editing another user's personal schedule", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine")})
		require.NoError(t, err)

		_, err = env.service.EditSchedule(as(outside), s.ScheduleUuid, EditInput{Content: content("theirs")})

		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("should report missing schedule", func(t *testing.T) {
		_, err := env.service.EditSchedule(as(member), "missing", EditInput{Content: content("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should let member edit group schedule and keep it in the group", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(master), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid})
		require.NoError(t, err)
		env.clock.SetNow(now.Add(time.Hour))

		edited, err := env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("renamed"), GroupUuid: &g.GroupUuid})

		require.NoError(t, err)
		assertSingleOwner(t, edited)
		assert.Equal(t, g.GroupUuid, *edited.GroupUuid)
		assert.Equal(t, "renamed", edited.Name)
		assert.Equal(t, now.Add(time.Hour), edited.UpdatedAt)
	})

	t.Run("should deny outsider editing group schedule", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(master), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid})
		require.NoError(t, err)

		_, err = env.service.EditSchedule(as(outside), s.ScheduleUuid, EditInput{Content: content("x"), GroupUuid: &g.GroupUuid})

		assert.ErrorIs(t, err, apperr.ErrNotGroupMember)
	})

	t.Run("should detach to personal when group is omitted", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(master), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid})
		require.NoError(t, err)

		edited, err := env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("detached")})

		require.NoError(t, err)
		assertSingleOwner(t, edited)
		assert.Equal(t, member, *edited.UserUuid)
		assert.Nil(t, edited.GroupUuid)
	})

	t.Run("should move personal schedule into a group after permission check", func(t *testing.T) {
		closed := env.createGroup(t, false)
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine")})
		require.NoError(t, err)

		_, err = env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("mine"), GroupUuid: &closed.GroupUuid})
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

		moved, err := env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("mine"), GroupUuid: &g.GroupUuid})
		require.NoError(t, err)
		assertSingleOwner(t, moved)
		assert.Equal(t, g.GroupUuid, *moved.GroupUuid)
	})

	t.Run("should delete listed resources and replace with added ones", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("images"), Resources: []string{pngImage, pngImage}})
		require.NoError(t, err)
		removed, kept := s.Resources[0], s.Resources[1]

		edited, err := env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("images"), DeleteResources: []string{removed}})
		require.NoError(t, err)
		assert.Equal(t, []string{kept}, edited.Resources)
		assert.NoFileExists(t, env.files.Path(removed))

		edited, err = env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{Content: content("images"), AddResources: []string{pngImage}})
		require.NoError(t, err)
		require.Len(t, edited.Resources, 1)
		assert.NotEqual(t, kept, edited.Resources[0], "added resources replace the list")
		assert.NoFileExists(t, env.files.Path(kept), "replaced images are removed")
	})

	t.Run("should refuse to delete images of another schedule", func(t *testing.T) {
		victim, err := env.service.AddSchedule(as(master), AddInput{Content: content("victim"), Resources: []string{pngImage}})
		require.NoError(t, err)
		own, err := env.service.AddSchedule(as(outside), AddInput{Content: content("own")})
		require.NoError(t, err)

		_, err = env.service.EditSchedule(as(outside), own.ScheduleUuid, EditInput{Content: content("own"), DeleteResources: victim.Resources})

		assert.ErrorIs(t, err, ErrUnknownResource)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		assert.FileExists(t, env.files.Path(victim.Resources[0]))
		stored, err := env.repo.Get(context.Background(), victim.ScheduleUuid)
		require.NoError(t, err)
		assert.Equal(t, victim.Resources, stored.Resources)
	})

	t.Run("should keep images when an upload fails", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("images"), Resources: []string{pngImage}})
		require.NoError(t, err)
		ref := s.Resources[0]

		_, err = env.service.EditSchedule(as(member), s.ScheduleUuid, EditInput{
			Content:         content("images"),
			DeleteResources: []string{ref},
			AddResources:    []string{"not base64!"},
		})

		assert.ErrorIs(t, err, file.ErrInvalidEncoding)
		assert.FileExists(t, env.files.Path(ref))
		stored, err := env.repo.Get(context.Background(), s.ScheduleUuid)
		require.NoError(t, err)
		assert.Equal(t, []string{ref}, stored.Resources)
	})
}

type failingUpdateRepo struct {
	*RepositoryStub
}

func (r failingUpdateRepo) Update(context.Context, Schedule) error {
	return errors.New("connection reset")
}

func TestService_EditSchedule_UpdateFailureKeepsImages(t *testing.T) {
	env := setupServiceTest(t)
	s, err := env.service.AddSchedule(as(member), AddInput{Content: content("images"), Resources: []string{pngImage}})
	require.NoError(t, err)
	ref := s.Resources[0]
	service := NewService(failingUpdateRepo{env.repo}, env.groups, env.files, event_bus.NewEventBus(), env.clock)

	// when
	_, err = service.EditSchedule(as(member), s.ScheduleUuid, EditInput{
		Content:         content("images"),
		DeleteResources: []string{ref},
		AddResources:    []string{pngImage},
	})

	// then
	require.Error(t, err)
	assert.FileExists(t, env.files.Path(ref))
	entries, err := os.ReadDir(filepath.Dir(env.files.Path(ref)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the uploaded replacement is rolled back")
}

func TestService_DeleteSchedule(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, true)

	t.Run("should let only master delete group schedule", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid})
		require.NoError(t, err)

		err = env.service.DeleteSchedule(as(member), s.ScheduleUuid)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

		require.NoError(t, env.service.DeleteSchedule(as(master), s.ScheduleUuid))
		_, err = env.repo.Get(context.Background(), s.ScheduleUuid)
		assert.ErrorIs(t, err, ErrScheduleNotFound)
	})

	t.Run("should delete personal schedule with its images", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine"), Resources: []string{pngImage}})
		require.NoError(t, err)

		require.Error(t, env.service.DeleteSchedule(as(outside), s.ScheduleUuid))
		require.NoError(t, env.service.DeleteSchedule(as(member), s.ScheduleUuid))
		assert.NoFileExists(t, env.files.Path(s.Resources[0]))
	})

	t.Run("should report missing schedule", func(t *testing.T) {
		assert.ErrorIs(t, env.service.DeleteSchedule(as(member), "missing"), apperr.ErrNotFound)
	})

	t.Run("should succeed when an image cannot be removed", func(t *testing.T) {
		s, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine"), Resources: []string{pngImage}})
		require.NoError(t, err)
		service := NewService(env.repo, env.groups, failingDeleteStore{env.files}, event_bus.NewEventBus(), env.clock)

		require.NoError(t, service.DeleteSchedule(as(member), s.ScheduleUuid))

		_, err = env.repo.Get(context.Background(), s.ScheduleUuid)
		assert.ErrorIs(t, err, ErrScheduleNotFound)
	})
}

type failingDeleteStore struct {
	*file.LocalStore
}

func (s failingDeleteStore) DeleteImage(context.Context, string) error {
	return errors.New("read-only file system")
}

func TestService_GetSchedule(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, true)
	personal, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine")})
	require.NoError(t, err)
	shared, err := env.service.AddSchedule(as(member), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid})
	require.NoError(t, err)

	_, err = env.service.GetSchedule(as(member), personal.ScheduleUuid)
	assert.NoError(t, err)
	_, err = env.service.GetSchedule(as(outside), personal.ScheduleUuid)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = env.service.GetSchedule(as(master), shared.ScheduleUuid)
	assert.NoError(t, err, "master reads without a membership row")
	_, err = env.service.GetSchedule(as(outside), shared.ScheduleUuid)
	assert.ErrorIs(t, err, apperr.ErrNotGroupMember)
	_, err = env.service.GetSchedule(as(outside), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_GetScheduleList(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, true)
	for _, name := range []string{"Gym", "Dentist", "Groceries"} {
		_, err := env.service.AddSchedule(as(member), AddInput{Content: content(name)})
		require.NoError(t, err)
	}
	_, err := env.service.AddSchedule(as(member), AddInput{Content: content("Group thing"), AddToGroup: true, GroupUuid: g.GroupUuid})
	require.NoError(t, err)

	page, err := env.service.GetScheduleList(as(member), 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total, "only personal schedules are listed")

	page, err = env.service.GetScheduleList(as(member), 1, 10, "gr")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Groceries", page.Records[0].Name)

	page, err = env.service.GetScheduleList(as(member), 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, 3, page.Total)

	_, err = env.service.GetScheduleList(as(member), math.MaxInt, 10, "")
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	page, err = env.service.GetScheduleList(as(member), MaxPage, MaxPageSize, "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestService_GroupDeletionCascades(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, true)
	shared, err := env.service.AddSchedule(as(member), AddInput{Content: content("group"), AddToGroup: true, GroupUuid: g.GroupUuid, Resources: []string{pngImage}})
	require.NoError(t, err)
	personal, err := env.service.AddSchedule(as(member), AddInput{Content: content("mine")})
	require.NoError(t, err)

	require.NoError(t, env.groups.DeleteGroup(as(master), g.GroupUuid))

	_, err = env.repo.Get(context.Background(), shared.ScheduleUuid)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoFileExists(t, env.files.Path(shared.Resources[0]))
	_, err = env.repo.Get(context.Background(), personal.ScheduleUuid)
	assert.NoError(t, err)
}
