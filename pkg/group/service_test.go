package group

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/event_bus"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "u-alice"
	bob   = "u-bob"
	carol = "u-carol"
	admin = "u-admin"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	service *ServiceImpl
	repo    *RepositoryStub
	bus     *event_bus.EventBus
	clock   *utils.MockClock
}

func setupServiceTest(t *testing.T) testEnv {
	t.Helper()
	users := user.NewUserService(user.NewStubUserRepository(
		user.User{Uuid: alice, Username: "alice", Role: user.RoleUser},
		user.User{Uuid: bob, Username: "bob", Role: user.RoleUser},
		user.User{Uuid: carol, Username: "carol", Role: user.RoleUser},
		user.User{Uuid: admin, Username: "admin", Role: user.RoleAdmin},
	), "")
	repo := NewRepositoryStub()
	bus := event_bus.NewEventBus()
	clock := utils.NewMockClock(now)
	return testEnv{
		service: NewService(repo, users, bus, clock),
		repo:    repo,
		bus:     bus,
		clock:   clock,
	}
}

func as(userUuid string) context.Context {
	return user.WithUser(context.Background(), user.User{Uuid: userUuid})
}

func (e testEnv) createGroup(t *testing.T, master string, userAbleAdd bool, members ...string) Group {
	t.Helper()
	g, err := e.service.CreateGroup(as(master), "group of "+master, userAbleAdd, nil)
	require.NoError(t, err)
	if len(members) > 0 {
		require.NoError(t, e.service.AddGroupMembers(as(master), g.GroupUuid, members))
	}
	return g
}

func TestService_CreateAndGetGroup_KeepsTagOrder(t *testing.T) {
	env := setupServiceTest(t)

	// when
	created, err := env.service.CreateGroup(as(alice), "Study", true, []string{"a", "b"})
	require.NoError(t, err)
	fetched, err := env.service.GetGroup(as(alice), created.GroupUuid)

	// then
	require.NoError(t, err)
	assert.Equal(t, "Study", fetched.Name)
	assert.True(t, fetched.UserAbleAdd)
	assert.Equal(t, []string{"a", "b"}, fetched.Tags)
	assert.Equal(t, alice, fetched.Master)
	assert.Len(t, fetched.GroupUuid, 32)
	assert.NotContains(t, fetched.GroupUuid, "-")
	assert.Equal(t, now, fetched.CreatedAt)
}

func TestService_CreateGroup(t *testing.T) {
	env := setupServiceTest(t)

	t.Run("should store empty tag list when none given", func(t *testing.T) {
		g, err := env.service.CreateGroup(as(alice), "No tags", false, nil)
		require.NoError(t, err)
		assert.NotNil(t, g.Tags)
		assert.Empty(t, g.Tags)
	})

	t.Run("should reject blank name", func(t *testing.T) {
		_, err := env.service.CreateGroup(as(alice), "   ", false, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("should fail without user in context", func(t *testing.T) {
		_, err := env.service.CreateGroup(context.Background(), "x", false, nil)
		assert.ErrorIs(t, err, user.ErrNoUser)
	})
}

func TestService_EditGroup(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, alice, false, bob)

	t.Run("should let master edit", func(t *testing.T) {
		env.clock.SetNow(now.Add(time.Hour))
		edited, err := env.service.EditGroup(as(alice), g.GroupUuid, "Renamed", true, []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", edited.Name)
		assert.Equal(t, now.Add(time.Hour), edited.UpdatedAt)
	})

	t.Run("should let admin edit", func(t *testing.T) {
		_, err := env.service.EditGroup(as(admin), g.GroupUuid, "By admin", true, nil)
		assert.NoError(t, err)
	})

	t.Run("should deny member that is not master", func(t *testing.T) {
		_, err := env.service.EditGroup(as(bob), g.GroupUuid, "Hijack", true, nil)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("should report missing group before permission", func(t *testing.T) {
		_, err := env.service.EditGroup(as(carol), "missing", "x", true, nil)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestService_DeleteGroup(t *testing.T) {
	env := setupServiceTest(t)

	t.Run("should fail for missing group", func(t *testing.T) {
		err := env.service.DeleteGroup(as(alice), "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should delete group and members and publish event", func(t *testing.T) {
		g := env.createGroup(t, alice, true, bob)
		var published []event_bus.GroupDeleted
		unsubscribe := event_bus.SubscribeTyped(env.bus, event_bus.GroupDeletedEvent, func(e event_bus.EventT[event_bus.GroupDeleted]) error {
			published = append(published, e.Data)
			return nil
		})
		defer unsubscribe()

		err := env.service.DeleteGroup(as(alice), g.GroupUuid)

		require.NoError(t, err)
		_, err = env.repo.Get(context.Background(), g.GroupUuid)
		assert.ErrorIs(t, err, ErrGroupNotFound)
		hasRow, _ := env.repo.HasMember(context.Background(), g.GroupUuid, bob)
		assert.False(t, hasRow)
		assert.Equal(t, []event_bus.GroupDeleted{{GroupUuid: g.GroupUuid, Master: alice, DeletedBy: alice}}, published)
	})

	t.Run("should return subscriber failure", func(t *testing.T) {
		g := env.createGroup(t, alice, true)
		unsubscribe := env.bus.Subscribe(event_bus.GroupDeletedEvent, func(e event_bus.Event) error {
			return errors.New("cascade failed")
		})
		defer unsubscribe()

		err := env.service.DeleteGroup(as(alice), g.GroupUuid)

		assert.ErrorContains(t, err, "cascade failed")
	})

	t.Run("should deny plain member", func(t *testing.T) {
		g := env.createGroup(t, alice, true, bob)
		err := env.service.DeleteGroup(as(bob), g.GroupUuid)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})
}

func TestService_TransferMaster(t *testing.T) {
	env := setupServiceTest(t)

	t.Run("should swap master and membership rows", func(t *testing.T) {
		g := env.createGroup(t, alice, false, bob)

		updated, err := env.service.TransferMaster(as(alice), g.GroupUuid, bob)

		require.NoError(t, err)
		assert.Equal(t, bob, updated.Master)
		bobRow, _ := env.repo.HasMember(context.Background(), g.GroupUuid, bob)
		aliceRow, _ := env.repo.HasMember(context.Background(), g.GroupUuid, alice)
		assert.False(t, bobRow, "new master keeps no membership row")
		assert.True(t, aliceRow, "previous master stays as member")
	})

	t.Run("should reject unknown user", func(t *testing.T) {
		g := env.createGroup(t, alice, false)
		_, err := env.service.TransferMaster(as(alice), g.GroupUuid, "ghost")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should be a no-op for current master", func(t *testing.T) {
		g := env.createGroup(t, alice, false)
		updated, err := env.service.TransferMaster(as(alice), g.GroupUuid, alice)
		require.NoError(t, err)
		assert.Equal(t, alice, updated.Master)
		members, _ := env.repo.ListMembers(context.Background(), g.GroupUuid)
		assert.Empty(t, members)
	})

	t.Run("should deny non manager", func(t *testing.T) {
		g := env.createGroup(t, alice, false, bob)
		_, err := env.service.TransferMaster(as(bob), g.GroupUuid, bob)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})
}

func TestService_GetGroupList(t *testing.T) {
	env := setupServiceTest(t)
	owned := env.createGroup(t, alice, false)
	env.clock.SetNow(now.Add(time.Minute))
	joined, err := env.service.CreateGroup(as(bob), "Chess club", true, []string{"Board", "games"})
	require.NoError(t, err)
	require.NoError(t, env.service.AddGroupMember(as(bob), joined.GroupUuid, alice))
	env.createGroup(t, carol, false)

	uuids := func(p Page) []string {
		out := make([]string, 0, len(p.Records))
		for _, g := range p.Records {
			out = append(out, g.GroupUuid)
		}
		return out
	}

	t.Run("master relation", func(t *testing.T) {
		p, err := env.service.GetGroupList(as(alice), RelationMaster, 1, 10, "")
		require.NoError(t, err)
		assert.Equal(t, []string{owned.GroupUuid}, uuids(p))
		assert.Equal(t, 1, p.Total)
	})

	t.Run("join relation excludes mastered groups", func(t *testing.T) {
		p, err := env.service.GetGroupList(as(alice), RelationJoin, 1, 10, "")
		require.NoError(t, err)
		assert.Equal(t, []string{joined.GroupUuid}, uuids(p))
	})

	t.Run("all relation is master plus join", func(t *testing.T) {
		p, err := env.service.GetGroupList(as(alice), RelationAll, 1, 10, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{owned.GroupUuid, joined.GroupUuid}, uuids(p))
		assert.Equal(t, 2, p.Total)
	})

	t.Run("search matches tags case insensitively", func(t *testing.T) {
		p, err := env.service.GetGroupList(as(alice), RelationAll, 1, 10, "BOARD")
		require.NoError(t, err)
		assert.Equal(t, []string{joined.GroupUuid}, uuids(p))
	})

	t.Run("pages are one based and size is clamped", func(t *testing.T) {
		p, err := env.service.GetGroupList(as(alice), RelationAll, 2, 1, "")
		require.NoError(t, err)
		assert.Len(t, p.Records, 1)
		assert.Equal(t, 2, p.Total)
		assert.Equal(t, 2, p.Page)

		p, err = env.service.GetGroupList(as(alice), RelationAll, 0, 1000, "")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, MaxPageSize, p.Size)
	})

	t.Run("page beyond the limit is rejected", func(t *testing.T) {
		_, err := env.service.GetGroupList(as(alice), RelationAll, math.MaxInt, 10, "")
		assert.ErrorIs(t, err, ErrPageOutOfRange)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

		p, err := env.service.GetGroupList(as(alice), RelationAll, MaxPage, MaxPageSize, "")
		require.NoError(t, err)
		assert.Empty(t, p.Records)
	})

	t.Run("unknown relation", func(t *testing.T) {
		_, err := env.service.GetGroupList(as(alice), Relation(42), 1, 10, "")
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})
}

func TestParseRelation(t *testing.T) {
	r, err := ParseRelation("join")
	require.NoError(t, err)
	assert.Equal(t, RelationJoin, r)

	_, err = ParseRelation("bogus")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestService_GetGroup_Visibility(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, alice, false, bob)

	_, err := env.service.GetGroup(as(bob), g.GroupUuid)
	assert.NoError(t, err)
	_, err = env.service.GetGroup(as(admin), g.GroupUuid)
	assert.NoError(t, err)
	_, err = env.service.GetGroup(as(carol), g.GroupUuid)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	_, err = env.service.GetGroup(as(carol), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_AddGroupMembers(t *testing.T) {
	env := setupServiceTest(t)

	t.Run("should reject empty list before anything else", func(t *testing.T) {
		err := env.service.AddGroupMembers(as(alice), "missing", nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("should abort whole batch on unknown user", func(t *testing.T) {
		g := env.createGroup(t, alice, false)

		err := env.service.AddGroupMembers(as(alice), g.GroupUuid, []string{bob, "ghost", carol})

		assert.ErrorIs(t, err, apperr.ErrNotFound)
		members, _ := env.repo.ListMembers(context.Background(), g.GroupUuid)
		assert.Empty(t, members)
	})

	t.Run("should reject master as member", func(t *testing.T) {
		g := env.createGroup(t, alice, false)
		err := env.service.AddGroupMember(as(alice), g.GroupUuid, alice)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("should deny plain member", func(t *testing.T) {
		g := env.createGroup(t, alice, false, bob)
		err := env.service.AddGroupMember(as(bob), g.GroupUuid, carol)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("should store active rows once", func(t *testing.T) {
		g := env.createGroup(t, alice, false)

		err := env.service.AddGroupMembers(as(alice), g.GroupUuid, []string{bob, carol, bob})

		require.NoError(t, err)
		members, _ := env.repo.ListMembers(context.Background(), g.GroupUuid)
		require.Len(t, members, 2)
		for _, m := range members {
			assert.Equal(t, MemberActive, m.Status)
		}
	})
}

func TestService_DeleteGroupMember(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, alice, false, bob)

	t.Run("should fail for user without membership row", func(t *testing.T) {
		err := env.service.DeleteGroupMember(as(alice), g.GroupUuid, carol)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("should remove member", func(t *testing.T) {
		require.NoError(t, env.service.DeleteGroupMember(as(alice), g.GroupUuid, bob))
		isMember, err := env.service.IsMember(context.Background(), g.GroupUuid, bob)
		require.NoError(t, err)
		assert.False(t, isMember)
	})
}

func TestService_MembershipFacts(t *testing.T) {
	env := setupServiceTest(t)
	g := env.createGroup(t, alice, false, bob)
	other := env.createGroup(t, carol, false)

	isMember, err := env.service.IsMember(context.Background(), g.GroupUuid, alice)
	require.NoError(t, err)
	assert.True(t, isMember, "master is a member")

	hasRow, err := env.service.HasMemberRow(context.Background(), g.GroupUuid, alice)
	require.NoError(t, err)
	assert.False(t, hasRow)

	reachable, err := env.service.ReachableGroups(context.Background(), carol)
	require.NoError(t, err)
	assert.Equal(t, []string{other.GroupUuid}, reachable)

	members, err := env.service.ListMembers(as(bob), g.GroupUuid)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, alice, members[0].UserUuid)
	assert.Equal(t, bob, members[1].UserUuid)
}
