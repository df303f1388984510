package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/event_bus"
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
	ErrNotManager      = fmt.Errorf("only the group master or an admin may manage the group: %w", apperr.ErrPermissionDenied)
	ErrNotReader       = fmt.Errorf("group is not visible to the user: %w", apperr.ErrPermissionDenied)
	ErrEmptyName       = fmt.Errorf("group name is empty: %w", apperr.ErrInvalidArgument)
	ErrEmptyMemberList = fmt.Errorf("member list is empty: %w", apperr.ErrInvalidArgument)
	ErrMasterAsMember  = fmt.Errorf("the group master cannot be added as a member: %w", apperr.ErrInvalidArgument)
	ErrPageOutOfRange  = fmt.Errorf("page is out of range: %w", apperr.ErrInvalidArgument)
)

// Users is what the group service needs to know about users.
type Users interface {
	access.RoleChecker
	Exists(ctx context.Context, uuid string) (bool, error)
}

type Page struct {
	Records []Group
	Total   int
	Page    int
	Size    int
}

type Service interface {
	CreateGroup(ctx context.Context, name string, userAbleAdd bool, tags []string) (Group, error)
	EditGroup(ctx context.Context, groupUuid string, name string, userAbleAdd bool, tags []string) (Group, error)
	DeleteGroup(ctx context.Context, groupUuid string) error
	TransferMaster(ctx context.Context, groupUuid string, newMaster string) (Group, error)
	GetGroupList(ctx context.Context, relation Relation, page, size int, search string) (Page, error)
	GetGroup(ctx context.Context, groupUuid string) (Group, error)
	AddGroupMember(ctx context.Context, groupUuid string, memberUuid string) error
	AddGroupMembers(ctx context.Context, groupUuid string, memberUuids []string) error
	DeleteGroupMember(ctx context.Context, groupUuid string, memberUuid string) error
	ListMembers(ctx context.Context, groupUuid string) ([]Member, error)

	// FindGroup loads a group without any access check.
	FindGroup(ctx context.Context, groupUuid string) (Group, error)
	// HasMemberRow reports whether a membership row exists. Masters have none.
	HasMemberRow(ctx context.Context, groupUuid, userUuid string) (bool, error)
	// IsMember is true for the master and for every user with a membership row.
	IsMember(ctx context.Context, groupUuid, userUuid string) (bool, error)
	ReachableGroups(ctx context.Context, userUuid string) ([]string, error)
}

type ServiceImpl struct {
	repo     Repository
	users    Users
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewService(repo Repository, users Users, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, users: users, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) currentActor(ctx context.Context) (access.Actor, error) {
	userUuid, err := user.CurrentUuid(ctx)
	if err != nil {
		return access.Actor{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return access.ResolveActor(ctx, s.users, userUuid)
}

// loadManaged loads the group and checks that the actor may manage it.
func (s *ServiceImpl) loadManaged(ctx context.Context, groupUuid string) (access.Actor, Group, error) {
	actor, err := s.currentActor(ctx)
	if err != nil {
		return access.Actor{}, Group{}, err
	}
	group, err := s.repo.Get(ctx, groupUuid)
	if err != nil {
		return access.Actor{}, Group{}, err
	}
	if !access.CanManageGroup(actor, group.Master) {
		log.Warnf("user %s may not manage group %s", actor.Uuid, groupUuid)
		return access.Actor{}, Group{}, ErrNotManager
	}
	return actor, group, nil
}

func (s *ServiceImpl) CreateGroup(ctx context.Context, name string, userAbleAdd bool, tags []string) (Group, error) {
	actor, err := s.currentActor(ctx)
	if err != nil {
		return Group{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, ErrEmptyName
	}

	now := s.clock.Now()
	group := Group{
		GroupUuid:   NewGroupUuid(),
		Name:        name,
		Master:      actor.Uuid,
		UserAbleAdd: userAbleAdd,
		Tags:        normalizeTags(tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	log.Debugf("creating group %s for user %s", group.GroupUuid, actor.Uuid)
	if err := s.repo.Create(ctx, group); err != nil {
		return Group{}, err
	}
	return group, nil
}

func (s *ServiceImpl) EditGroup(ctx context.Context, groupUuid string, name string, userAbleAdd bool, tags []string) (Group, error) {
	_, group, err := s.loadManaged(ctx, groupUuid)
	if err != nil {
		return Group{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, ErrEmptyName
	}

	group.Name = name
	group.UserAbleAdd = userAbleAdd
	group.Tags = normalizeTags(tags)
	group.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, group); err != nil {
		return Group{}, err
	}
	return group, nil
}

func (s *ServiceImpl) DeleteGroup(ctx context.Context, groupUuid string) error {
	actor, group, err := s.loadManaged(ctx, groupUuid)
	if err != nil {
		return err
	}
	log.Debugf("deleting group %s by user %s", groupUuid, actor.Uuid)
	if err := s.repo.Delete(ctx, groupUuid); err != nil {
		return err
	}

	// The group row is already gone when subscribers run. A failed cascade leaves orphaned schedules that
	// no query can reach, and the error is returned so the caller sees it.
	err = s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.GroupDeletedEvent, event_bus.GroupDeleted{
		GroupUuid: groupUuid,
		Master:    group.Master,
		DeletedBy: actor.Uuid,
	}))
	if err != nil {
		log.Errorf("failed to publish group deleted event: %v", err)
		return err
	}
	return nil
}

func (s *ServiceImpl) TransferMaster(ctx context.Context, groupUuid string, newMaster string) (Group, error) {
	_, group, err := s.loadManaged(ctx, groupUuid)
	if err != nil {
		return Group{}, err
	}
	if err := s.requireUser(ctx, newMaster); err != nil {
		return Group{}, err
	}
	if newMaster == group.Master {
		return group, nil
	}

	log.Debugf("transferring group %s from %s to %s", groupUuid, group.Master, newMaster)
	now := s.clock.Now()
	if err := s.repo.TransferMaster(ctx, groupUuid, group.Master, newMaster, now); err != nil {
		return Group{}, err
	}
	group.Master = newMaster
	group.UpdatedAt = now
	return group, nil
}

func (s *ServiceImpl) GetGroupList(ctx context.Context, relation Relation, page, size int, search string) (Page, error) {
	actor, err := s.currentActor(ctx)
	if err != nil {
		return Page{}, err
	}
	page, size, err = clampPage(page, size)
	if err != nil {
		return Page{}, err
	}

	groups, total, err := s.repo.List(ctx, ListQuery{
		UserUuid: actor.Uuid,
		Relation: relation,
		Search:   strings.TrimSpace(search),
		Limit:    size,
		Offset:   (page - 1) * size,
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Records: groups, Total: total, Page: page, Size: size}, nil
}

func (s *ServiceImpl) GetGroup(ctx context.Context, groupUuid string) (Group, error) {
	actor, err := s.currentActor(ctx)
	if err != nil {
		return Group{}, err
	}
	group, err := s.repo.Get(ctx, groupUuid)
	if err != nil {
		return Group{}, err
	}
	hasRow, err := s.repo.HasMember(ctx, groupUuid, actor.Uuid)
	if err != nil {
		return Group{}, err
	}
	if !access.CanReadGroup(actor, group.Master, hasRow) {
		return Group{}, ErrNotReader
	}
	return group, nil
}

func (s *ServiceImpl) AddGroupMember(ctx context.Context, groupUuid string, memberUuid string) error {
	return s.addMembers(ctx, groupUuid, []string{memberUuid})
}

func (s *ServiceImpl) AddGroupMembers(ctx context.Context, groupUuid string, memberUuids []string) error {
	if len(memberUuids) == 0 {
		return ErrEmptyMemberList
	}
	return s.addMembers(ctx, groupUuid, memberUuids)
}

// addMembers validates every target before the single save, so a failure persists nothing.
func (s *ServiceImpl) addMembers(ctx context.Context, groupUuid string, memberUuids []string) error {
	_, group, err := s.loadManaged(ctx, groupUuid)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	seen := make(map[string]bool, len(memberUuids))
	members := make([]Member, 0, len(memberUuids))
	for _, memberUuid := range memberUuids {
		if err := s.requireUser(ctx, memberUuid); err != nil {
			return err
		}
		if memberUuid == group.Master {
			return ErrMasterAsMember
		}
		if seen[memberUuid] {
			continue
		}
		seen[memberUuid] = true
		members = append(members, Member{GroupUuid: groupUuid, UserUuid: memberUuid, Status: MemberActive, CreatedAt: now})
	}
	log.Debugf("adding %d member(s) to group %s", len(members), groupUuid)
	return s.repo.AddMembers(ctx, members)
}

func (s *ServiceImpl) DeleteGroupMember(ctx context.Context, groupUuid string, memberUuid string) error {
	if _, _, err := s.loadManaged(ctx, groupUuid); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteMember(ctx, groupUuid, memberUuid)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %s in group %s: %w", memberUuid, groupUuid, ErrMemberNotFound)
	}
	return nil
}

// ListMembers returns the master as the first entry followed by the membership rows.
func (s *ServiceImpl) ListMembers(ctx context.Context, groupUuid string) ([]Member, error) {
	group, err := s.GetGroup(ctx, groupUuid)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMembers(ctx, groupUuid)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(rows)+1)
	members = append(members, Member{GroupUuid: groupUuid, UserUuid: group.Master, Status: MemberActive, CreatedAt: group.CreatedAt})
	return append(members, rows...), nil
}

func (s *ServiceImpl) FindGroup(ctx context.Context, groupUuid string) (Group, error) {
	return s.repo.Get(ctx, groupUuid)
}

func (s *ServiceImpl) HasMemberRow(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	return s.repo.HasMember(ctx, groupUuid, userUuid)
}

func (s *ServiceImpl) IsMember(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	group, err := s.repo.Get(ctx, groupUuid)
	if err != nil {
		return false, err
	}
	hasRow, err := s.repo.HasMember(ctx, groupUuid, userUuid)
	if err != nil {
		return false, err
	}
	return access.IsMember(access.Actor{Uuid: userUuid}, group.Master, hasRow), nil
}

func (s *ServiceImpl) ReachableGroups(ctx context.Context, userUuid string) ([]string, error) {
	return s.repo.ReachableGroupUuids(ctx, userUuid)
}

func (s *ServiceImpl) requireUser(ctx context.Context, userUuid string) error {
	exists, err := s.users.Exists(ctx, userUuid)
	if err != nil {
		return fmt.Errorf("failed to look up user %s: %w", userUuid, err)
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userUuid, user.ErrUserNotFound)
	}
	return nil
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
