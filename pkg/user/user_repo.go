package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrUserNotFound = fmt.Errorf("user not found: %w", apperr.ErrNotFound)

type Repo interface {
	GetUser(ctx context.Context, uuid string) (User, error)
	GetRole(ctx context.Context, uuid string) (Role, error)
}

type UserRepoImpl struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepoImpl {
	return &UserRepoImpl{db: db}
}

func (u *UserRepoImpl) GetUser(ctx context.Context, uuid string) (User, error) {
	query := `SELECT uuid, username, role FROM users WHERE uuid = $1`
	var user User
	err := u.db.QueryRow(ctx, query, uuid).Scan(&user.Uuid, &user.Username, &user.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Debugf("user %s not found", uuid)
		return User{}, ErrUserNotFound
	} else if err != nil {
		log.Errorf("failed to get user: %v", err)
		return User{}, err
	}
	return user, nil
}

func (u *UserRepoImpl) GetRole(ctx context.Context, uuid string) (Role, error) {
	query := `SELECT role FROM users WHERE uuid = $1`
	var role Role
	err := u.db.QueryRow(ctx, query, uuid).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	} else if err != nil {
		log.Errorf("failed to get user role: %v", err)
		return "", err
	}
	return role, nil
}
