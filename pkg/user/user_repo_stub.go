package user

import (
	"context"
	"sync"
)

type StubUserRepository struct {
	mu   sync.RWMutex
	data map[string]User
}

func NewStubUserRepository(users ...User) *StubUserRepository {
	s := &StubUserRepository{data: map[string]User{}}
	for _, u := range users {
		s.data[u.Uuid] = u
	}
	return s
}

func (s *StubUserRepository) Add(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[u.Uuid] = u
}

func (s *StubUserRepository) GetUser(ctx context.Context, uuid string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data[uuid]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *StubUserRepository) GetRole(ctx context.Context, uuid string) (Role, error) {
	u, err := s.GetUser(ctx, uuid)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}
