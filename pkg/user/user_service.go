package user

import (
	"context"
	"errors"
	"fmt"
)

type Service interface {
	GetCurrentUser(ctx context.Context) (User, error)
	GetUser(ctx context.Context, uuid string) (User, error)
	Exists(ctx context.Context, uuid string) (bool, error)
	IsAdmin(ctx context.Context, uuid string) (bool, error)
}

type UserServiceImpl struct {
	repo      Repo
	adminUuid string
}

// NewUserService builds the user lookups. adminUuid, when set, names the bootstrap administrator
// that is treated as admin whatever its stored role.
func NewUserService(repo Repo, adminUuid string) *UserServiceImpl {
	return &UserServiceImpl{repo: repo, adminUuid: adminUuid}
}

func (u *UserServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	uuid, err := CurrentUuid(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return u.GetUser(ctx, uuid)
}

func (u *UserServiceImpl) GetUser(ctx context.Context, uuid string) (User, error) {
	user, err := u.repo.GetUser(ctx, uuid)
	if err != nil {
		return User{}, err
	}
	if u.adminUuid != "" && user.Uuid == u.adminUuid {
		user.Role = RoleAdmin
	}
	return user, nil
}

func (u *UserServiceImpl) Exists(ctx context.Context, uuid string) (bool, error) {
	_, err := u.repo.GetUser(ctx, uuid)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsAdmin is the role lookup consumed by the access checks. Unknown users are not admins.
func (u *UserServiceImpl) IsAdmin(ctx context.Context, uuid string) (bool, error) {
	if u.adminUuid != "" && uuid == u.adminUuid {
		return true, nil
	}
	role, err := u.repo.GetRole(ctx, uuid)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user role: %w", err)
	}
	return role == RoleAdmin, nil
}
