package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"receptiongw/internal/cache"
)

const (
	StatusLoggedOut = "LOGGED_OUT"
	// DefaultScope keys the active-user listing in the cache.
	DefaultScope  = "active-users"
	usersPageSize = 100
)

// User is the projection of an upstream user record returned to the dashboard.
type User struct {
	ID           json.RawMessage `json:"id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Email        string          `json:"email,omitempty"`
	Numbers      json.RawMessage `json:"numbers,omitempty"`
	ActiveNumber json.RawMessage `json:"active_number,omitempty"`
}

type upstreamUser struct {
	ID           json.RawMessage `json:"id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Email        string          `json:"email"`
	Numbers      json.RawMessage `json:"numbers"`
	ActiveNumber json.RawMessage `json:"active_number"`
}

// Snapshot is what gets cached: the filtered users and how many were fetched.
type Snapshot struct {
	Users        []User
	TotalFetched int
}

type Result struct {
	Snapshot
	Cached bool
}

type Pager interface {
	UsersURL(pageSize int) string
	WalkPages(ctx context.Context, endpoint, seedURL string) ([]json.RawMessage, error)
}

type Service struct {
	pager Pager
	cache *cache.TTL[Snapshot]
	scope string
}

func New(pager Pager, c *cache.TTL[Snapshot], scope string) *Service {
	if scope = strings.TrimSpace(scope); scope == "" {
		scope = DefaultScope
	}
	return &Service{pager: pager, cache: c, scope: scope}
}

// ActiveUsers returns every user not logged out, from the cache when it is
// still fresh.
func (s *Service) ActiveUsers(ctx context.Context) (Result, error) {
	snap, cached, err := s.cache.Get(ctx, s.scope, s.fetch)
	if err != nil {
		return Result{}, err
	}
	return Result{Snapshot: snap, Cached: cached}, nil
}

func (s *Service) fetch(ctx context.Context) (Snapshot, error) {
	items, err := s.pager.WalkPages(ctx, "users", s.pager.UsersURL(usersPageSize))
	if err != nil {
		return Snapshot{}, err
	}

	users := make([]User, 0, len(items))
	for i, raw := range items {
		var u upstreamUser
		if err := json.Unmarshal(raw, &u); err != nil {
			return Snapshot{}, fmt.Errorf("decode user %d: %w", i, err)
		}
		if u.Status == StatusLoggedOut {
			continue
		}
		users = append(users, project(u))
	}
	return Snapshot{Users: users, TotalFetched: len(items)}, nil
}

func project(u upstreamUser) User {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	if name == "" {
		name = "Unknown"
	}
	return User{
		ID:           u.ID,
		Name:         name,
		Status:       u.Status,
		Email:        u.Email,
		Numbers:      u.Numbers,
		ActiveNumber: u.ActiveNumber,
	}
}
