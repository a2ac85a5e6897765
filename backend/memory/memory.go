// Package memory provides a UserBackend held entirely in process memory.
// It is the default backend for tests and examples; data does not survive
// a restart.
package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenauth/warden"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: backend closed")

// Backend implements warden.UserBackend with mutex-guarded maps.
type Backend struct {
	mu         sync.RWMutex
	users      map[string]*warden.User // id -> record
	byUsername map[string]string       // username -> id
	byEmail    map[string]string       // email -> id
	closed     bool
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		users:      make(map[string]*warden.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func clone(u *warden.User) *warden.User {
	c := *u
	if u.Metadata != nil {
		c.Metadata = maps.Clone(u.Metadata)
	}
	return &c
}

func (b *Backend) CreateUser(ctx context.Context, user warden.UserCreate, passwordHash string) (*warden.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.byUsername[user.Username]; ok {
		return nil, warden.ErrUsernameTaken
	}
	if user.Email != "" {
		if _, ok := b.byEmail[user.Email]; ok {
			return nil, warden.ErrEmailTaken
		}
	}

	now := time.Now().UTC()
	record := &warden.User{
		ID:           uuid.NewString(),
		Username:     user.Username,
		PasswordHash: passwordHash,
		Role:         user.Role,
		Email:        user.Email,
		IsActive:     true,
		Metadata:     map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.users[record.ID] = record
	b.byUsername[record.Username] = record.ID
	if record.Email != "" {
		b.byEmail[record.Email] = record.ID
	}
	return clone(record), nil
}

func (b *Backend) getLocked(username string) (*warden.User, error) {
	if b.closed {
		return nil, ErrClosed
	}
	id, ok := b.byUsername[username]
	if !ok {
		return nil, warden.ErrUserNotFound
	}
	return b.users[id], nil
}

func (b *Backend) GetUserByUsername(ctx context.Context, username string) (*warden.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, err := b.getLocked(username)
	if err != nil {
		return nil, err
	}
	return clone(u), nil
}

func (b *Backend) GetUserByID(ctx context.Context, id string) (*warden.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	u, ok := b.users[id]
	if !ok {
		return nil, warden.ErrUserNotFound
	}
	return clone(u), nil
}

func (b *Backend) GetUserByEmail(ctx context.Context, email string) (*warden.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	id, ok := b.byEmail[email]
	if !ok {
		return nil, warden.ErrUserNotFound
	}
	return clone(b.users[id]), nil
}

func (b *Backend) UpdateUser(ctx context.Context, username string, update warden.UserUpdate) (*warden.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return nil, err
	}
	if update.Email != nil && *update.Email != u.Email {
		if _, taken := b.byEmail[*update.Email]; taken && *update.Email != "" {
			return nil, warden.ErrEmailTaken
		}
		delete(b.byEmail, u.Email)
		u.Email = *update.Email
		if u.Email != "" {
			b.byEmail[u.Email] = u.ID
		}
	}
	if update.ProfilePictureURL != nil {
		u.ProfilePictureURL = *update.ProfilePictureURL
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	if update.Metadata != nil {
		u.Metadata = maps.Clone(update.Metadata)
	}
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

func (b *Backend) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *Backend) UpdateUserRole(ctx context.Context, username string, role warden.Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return err
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *Backend) UpdateUserMetadata(ctx context.Context, username string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return err
	}
	u.Metadata = maps.Clone(metadata)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *Backend) UpdateUserBalance(ctx context.Context, username string, delta int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return err
	}
	u.Balance += delta
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *Backend) DeleteUser(ctx context.Context, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, err := b.getLocked(username)
	if err != nil {
		return err
	}
	delete(b.users, u.ID)
	delete(b.byUsername, u.Username)
	delete(b.byEmail, u.Email)
	return nil
}

// sortedLocked returns all users ordered by creation time, then ID for a
// stable order between users created in the same instant.
func (b *Backend) sortedLocked() []*warden.User {
	all := make([]*warden.User, 0, len(b.users))
	for _, u := range b.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func page(all []*warden.User, skip, limit int) []*warden.User {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(all) {
		return []*warden.User{}
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]*warden.User, len(all))
	for i, u := range all {
		out[i] = clone(u)
	}
	return out
}

func (b *Backend) ListUsers(ctx context.Context, skip, limit int) ([]*warden.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return page(b.sortedLocked(), skip, limit), nil
}

func (b *Backend) SearchUsers(ctx context.Context, query string, skip, limit int) ([]*warden.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	query = strings.ToLower(query)
	var matched []*warden.User
	for _, u := range b.sortedLocked() {
		if strings.Contains(strings.ToLower(u.Username), query) ||
			strings.Contains(strings.ToLower(u.Email), query) {
			matched = append(matched, u)
		}
	}
	return page(matched, skip, limit), nil
}

func (b *Backend) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}
	_, ok := b.byUsername[username]
	return ok, nil
}

func (b *Backend) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}
	_, ok := b.byEmail[email]
	return ok, nil
}

func (b *Backend) CountUsers(ctx context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	return int64(len(b.users)), nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.users = nil
	b.byUsername = nil
	b.byEmail = nil
	return nil
}
