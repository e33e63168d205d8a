package chat

import (
	"context"
	"fmt"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// SessionInitializer is consulted once when a chat connection opens. Its
// result is forwarded to every backend call on that connection.
type SessionInitializer interface {
	InitSession(ctx context.Context, userID, sessionID string) (*domain.Profile, error)
}

// ProfileStore reads saved applicant profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// StoreInitializer loads the user's saved profile.
type StoreInitializer struct {
	profiles ProfileStore
}

// NewStoreInitializer creates a SessionInitializer backed by profiles.
func NewStoreInitializer(profiles ProfileStore) *StoreInitializer {
	return &StoreInitializer{profiles: profiles}
}

// InitSession returns the saved profile, or an empty one for new users.
func (s *StoreInitializer) InitSession(ctx context.Context, userID, _ string) (*domain.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return &domain.Profile{UserID: userID}, nil
	}
	return p, nil
}
