// Package access decides who may read or change groups and schedules. Every function is pure: callers
// load the ownership and membership facts first and map a false answer onto an error kind.
package access

import (
	"context"
	"fmt"

	"github.com/grouplan/grouplan/internal/apperr"
)

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	Uuid    string
	IsAdmin bool
}

// RoleChecker resolves the admin flag of a user.
type RoleChecker interface {
	IsAdmin(ctx context.Context, userUuid string) (bool, error)
}

// ResolveActor builds the Actor for userUuid using roles.
func ResolveActor(ctx context.Context, roles RoleChecker, userUuid string) (Actor, error) {
	admin, err := roles.IsAdmin(ctx, userUuid)
	if err != nil {
		return Actor{}, fmt.Errorf("failed to resolve role: %w", err)
	}
	return Actor{Uuid: userUuid, IsAdmin: admin}, nil
}

// IsMember is the membership relation used everywhere: the master is a member without a row.
func IsMember(actor Actor, master string, hasRow bool) bool {
	return actor.Uuid == master || hasRow
}

// CanManageGroup covers edit, delete, master transfer and member management.
func CanManageGroup(actor Actor, master string) bool {
	return actor.Uuid == master || actor.IsAdmin
}

func CanReadGroup(actor Actor, master string, hasRow bool) bool {
	return IsMember(actor, master, hasRow) || actor.IsAdmin
}

func CanAddScheduleToGroup(actor Actor, master string, userAbleAdd bool, hasRow bool) bool {
	return AddScheduleDenial(actor, master, userAbleAdd, hasRow) == nil
}

// AddScheduleDenial explains why actor may not attach a schedule to the group, or returns nil.
// The group-wide switch is checked before membership.
func AddScheduleDenial(actor Actor, master string, userAbleAdd bool, hasRow bool) error {
	if actor.Uuid == master {
		return nil
	}
	if !userAbleAdd {
		return fmt.Errorf("group does not allow members to add schedules: %w", apperr.ErrPermissionDenied)
	}
	if !hasRow {
		return apperr.ErrNotGroupMember
	}
	return nil
}

func CanManagePersonalSchedule(actor Actor, owner string) bool {
	return actor.Uuid == owner
}

// Group schedules use two tiers: any member may read and edit, only the master may delete.

func CanReadGroupSchedule(actor Actor, master string, hasRow bool) bool {
	return IsMember(actor, master, hasRow)
}

func CanEditGroupSchedule(actor Actor, master string, hasRow bool) bool {
	return IsMember(actor, master, hasRow)
}

func CanDeleteGroupSchedule(actor Actor, master string) bool {
	return actor.Uuid == master
}

// CanManageTimetable covers class times, class grades and their classes. They are private to their author.
func CanManageTimetable(actor Actor, owner string) bool {
	return actor.Uuid == owner
}
