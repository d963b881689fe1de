// Package storage declares the repository contracts shared by the memory
// and postgres drivers.
package storage

import (
	"context"
	"errors"

	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned by InsertUnique when the (low, high) key
	// already exists. It is an expected outcome under concurrent creation.
	ErrConflict = errors.New("storage: unique key conflict")
)

// ConversationStore is the store-side half of the resolver: the unique key
// on (low, high) is the only arbiter between concurrent creators.
type ConversationStore interface {
	FindByPair(ctx context.Context, pair pairing.Pair) (*models.DMConversation, error)
	GetConversation(ctx context.Context, id string) (*models.DMConversation, error)
	// InsertUnique creates conv and returns it with its generated id and
	// creation time, or ErrConflict if the pair already exists.
	InsertUnique(ctx context.Context, conv *models.DMConversation) (*models.DMConversation, error)
	// EnsureParticipants inserts one participant row per universe,
	// ignoring rows that already exist.
	EnsureParticipants(ctx context.Context, conversationID string, universeIDs ...string) error
}

type UniverseStore interface {
	// GetUniverses returns the universes among ids that exist, in no
	// particular order. Unknown ids are skipped.
	GetUniverses(ctx context.Context, ids ...string) ([]models.Universe, error)
}

type MessageStore interface {
	AddMessage(ctx context.Context, msg *models.DMMessage) (*models.DMMessage, error)
}

// Store is everything a driver provides.
type Store interface {
	ConversationStore
	UniverseStore
	MessageStore
	Close() error
}
