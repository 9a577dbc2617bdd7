// Package favorites keeps an attendee's starred events: the persistent stores,
// the optimistic in-memory set the API and CLI work against, and the one-time
// migration of device-local favorites into the account.
package favorites

import (
	"context"
	"errors"
)

// ErrNoUser is returned when starring without a signed-in user.
var ErrNoUser = errors.New("favorites: no signed-in user")

// LocalUser keys favorites saved on this device before signing in.
const LocalUser = "local"

// Store persists starred event ids per user.
type Store interface {
	List(ctx context.Context, userID string) ([]int, error)
	Add(ctx context.Context, userID string, eventID int) error
	Remove(ctx context.Context, userID string, eventID int) error
	Upsert(ctx context.Context, userID string, eventIDs []int) error
}

// Legacy is a store that can be emptied once its favorites have moved.
type Legacy interface {
	List(ctx context.Context, userID string) ([]int, error)
	Clear(ctx context.Context, userID string) error
}
