package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterUser creates a new user. An empty id gets a fresh uuid; an id that is
// already registered fails with ErrAlreadyExists, so registration never hands out
// tokens for an existing account.
func (s *Service) RegisterUser(ctx context.Context, id, name, role string) (User, error) {
	name = strings.TrimSpace(name)
	if !ValidRole(role) {
		return User{}, invalid("unknown role %q", role)
	}
	if name == "" {
		return User{}, invalid("name required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return s.store.CreateUser(ctx, User{ID: id, Name: name, Role: role, CreatedAt: s.now()})
}

// RememberRefreshToken stores a refresh token for userID until expiresAt.
func (s *Service) RememberRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.store.SaveRefreshToken(ctx, userID, token, expiresAt)
}

// RedeemRefreshToken revokes token and returns the user it was issued to.
// Unknown, expired and already used tokens all fail with ErrNotFound.
func (s *Service) RedeemRefreshToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, invalid("refresh token required")
	}
	userID, err := s.store.ConsumeRefreshToken(ctx, token, s.now())
	if err != nil {
		return User{}, err
	}
	return s.store.GetUser(ctx, userID)
}
