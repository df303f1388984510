package group

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type memberKey struct {
	groupUuid string
	userUuid  string
}

type RepositoryStub struct {
	mu      sync.RWMutex
	groups  map[string]Group
	members map[memberKey]Member
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		groups:  make(map[string]Group),
		members: make(map[memberKey]Member),
	}
}

func cloneGroup(g Group) Group {
	g.Tags = slices.Clone(nonNil(g.Tags))
	return g
}

func (r *RepositoryStub) Create(ctx context.Context, group Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group.GroupUuid] = cloneGroup(group)
	return nil
}

func (r *RepositoryStub) Get(ctx context.Context, groupUuid string) (Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupUuid]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (r *RepositoryStub) Update(ctx context.Context, group Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.groups[group.GroupUuid]
	if !ok {
		return ErrGroupNotFound
	}
	existing.Name = group.Name
	existing.UserAbleAdd = group.UserAbleAdd
	existing.Tags = slices.Clone(nonNil(group.Tags))
	existing.UpdatedAt = group.UpdatedAt
	r.groups[group.GroupUuid] = existing
	return nil
}

func (r *RepositoryStub) Delete(ctx context.Context, groupUuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupUuid]; !ok {
		return ErrGroupNotFound
	}
	delete(r.groups, groupUuid)
	for key := range r.members {
		if key.groupUuid == groupUuid {
			delete(r.members, key)
		}
	}
	return nil
}

func (r *RepositoryStub) TransferMaster(ctx context.Context, groupUuid, previousMaster, newMaster string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupUuid]
	if !ok {
		return ErrGroupNotFound
	}
	g.Master = newMaster
	g.UpdatedAt = at
	r.groups[groupUuid] = g
	delete(r.members, memberKey{groupUuid, newMaster})
	key := memberKey{groupUuid, previousMaster}
	if _, exists := r.members[key]; !exists {
		r.members[key] = Member{GroupUuid: groupUuid, UserUuid: previousMaster, Status: MemberActive, CreatedAt: at}
	}
	return nil
}

func (r *RepositoryStub) List(ctx context.Context, q ListQuery) ([]Group, int, error) {
	if _, err := relationCondition(q.Relation); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Group, 0)
	for _, g := range r.groups {
		_, hasRow := r.members[memberKey{g.GroupUuid, q.UserUuid}]
		if q.Matches(g, hasRow) {
			matched = append(matched, cloneGroup(g))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].GroupUuid < matched[j].GroupUuid
	})

	total := len(matched)
	start := min(q.Offset, total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

func (r *RepositoryStub) HasMember(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[memberKey{groupUuid, userUuid}]
	return ok, nil
}

func (r *RepositoryStub) AddMembers(ctx context.Context, members []Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range members {
		key := memberKey{m.GroupUuid, m.UserUuid}
		if _, exists := r.members[key]; !exists {
			r.members[key] = m
		}
	}
	return nil
}

func (r *RepositoryStub) DeleteMember(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey{groupUuid, userUuid}
	if _, ok := r.members[key]; !ok {
		return false, nil
	}
	delete(r.members, key)
	return true, nil
}

func (r *RepositoryStub) ListMembers(ctx context.Context, groupUuid string) ([]Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]Member, 0)
	for key, m := range r.members {
		if key.groupUuid == groupUuid {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].UserUuid < members[j].UserUuid
	})
	return members, nil
}

func (r *RepositoryStub) ReachableGroupUuids(ctx context.Context, userUuid string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uuids := make([]string, 0)
	for _, g := range r.groups {
		_, hasRow := r.members[memberKey{g.GroupUuid, userUuid}]
		if hasRow || g.Master == userUuid {
			uuids = append(uuids, g.GroupUuid)
		}
	}
	sort.Strings(uuids)
	return uuids, nil
}
