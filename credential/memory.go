package credential

import (
	"context"
	"sync"
)

// MemoryStore is a Store and RoleStore backed by maps. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
	byEmail    map[string]*User
	roles      map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
		byEmail:    make(map[string]*User),
		roles:      make(map[string]map[string]struct{}),
	}
}

// Put inserts or replaces u and grants roles.
func (s *MemoryStore) Put(u User, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[u.ID]; ok {
		delete(s.byUsername, old.Username)
		delete(s.byEmail, old.Email)
	}
	stored := u
	s.byID[u.ID] = &stored
	s.byUsername[u.Username] = &stored
	if u.Email != "" {
		s.byEmail[u.Email] = &stored
	}
	for _, role := range roles {
		members, ok := s.roles[role]
		if !ok {
			members = make(map[string]struct{})
			s.roles[role] = members
		}
		members[u.ID] = struct{}{}
	}
}

// Revoke removes role from userID.
func (s *MemoryStore) Revoke(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[role], userID)
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.find(ctx, s.byUsername, username)
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.find(ctx, s.byEmail, email)
}

func (s *MemoryStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[role][userID]
	return ok, nil
}

func (s *MemoryStore) find(ctx context.Context, index map[string]*User, key string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := index[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}
