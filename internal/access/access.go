// Package access decides whether an authenticated user may act inside a
// conversation. The call-credential issuer, message send and the realtime
// subscription all go through Authorize so they share one rule.
package access

import (
	"context"
	"errors"
	"slices"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
)

// The message deliberately does not say whether the conversation exists
// or who its participants are.
var ErrNotParticipant = apperr.Unauthorized("not authorized for this conversation")

type Store interface {
	storage.UniverseStore
	GetConversation(ctx context.Context, id string) (*models.DMConversation, error)
}

type Checker struct {
	store Store
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// Membership is a successful authorization: the conversation and the
// participant universe the caller acts as.
type Membership struct {
	Conversation *models.DMConversation
	Universe     models.Universe
}

// Authorize returns the participant universe of conversationID owned by
// userID. It fails with Unauthorized when there is none (unknown
// conversations included) and ResourceInactive when the owned universe is
// deactivated. If the caller owns both sides, an active one is preferred.
func (c *Checker) Authorize(ctx context.Context, conversationID, userID string) (*Membership, error) {
	if conversationID == "" {
		return nil, apperr.InvalidInput("conversationId is required")
	}
	conv, err := c.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, apperr.Upstream("conversation lookup failed", err)
	}

	parts := conv.Participants()
	universes, err := c.store.GetUniverses(ctx, parts[0], parts[1])
	if err != nil {
		return nil, apperr.Upstream("universe lookup failed", err)
	}

	owned, err := pickOwned(universes, userID, parts[:]...)
	if err != nil {
		return nil, err
	}
	return &Membership{Conversation: conv, Universe: *owned}, nil
}

// OwnedOneOf returns whichever of ids userID owns, preferring an active
// one. It is the check for acting on a pair before any conversation
// exists.
func (c *Checker) OwnedOneOf(ctx context.Context, userID string, ids ...string) (*models.Universe, error) {
	universes, err := c.store.GetUniverses(ctx, ids...)
	if err != nil {
		return nil, apperr.Upstream("universe lookup failed", err)
	}
	owned, err := pickOwned(universes, userID, ids...)
	if errors.Is(err, ErrNotParticipant) {
		return nil, apperr.Unauthorized("not authorized to act as either universe")
	}
	if err != nil {
		return nil, err
	}
	if err := requireAll(universes, ids); err != nil {
		return nil, err
	}
	return owned, nil
}

// Exists fails with InvalidInput unless every id is a known universe.
// Conversations are never deleted, so a pair is only resolved once both
// sides are real.
func (c *Checker) Exists(ctx context.Context, ids ...string) error {
	universes, err := c.store.GetUniverses(ctx, ids...)
	if err != nil {
		return apperr.Upstream("universe lookup failed", err)
	}
	return requireAll(universes, ids)
}

func requireAll(universes []models.Universe, ids []string) error {
	for _, id := range ids {
		if !slices.ContainsFunc(universes, func(u models.Universe) bool { return u.ID == id }) {
			return apperr.InvalidInput("unknown universe")
		}
	}
	return nil
}

func pickOwned(universes []models.Universe, userID string, ids ...string) (*models.Universe, error) {
	var owned *models.Universe
	for i := range universes {
		u := universes[i]
		if u.OwnerID != userID || !slices.Contains(ids, u.ID) {
			continue
		}
		if owned == nil || (!owned.Active && u.Active) {
			owned = &u
		}
	}
	if owned == nil {
		return nil, ErrNotParticipant
	}
	if !owned.Active {
		return nil, apperr.Inactive("universe is deactivated")
	}
	return owned, nil
}

// AuthorizeAs is Authorize pinned to a specific participant universe, for
// actions taken in that universe's name such as sending a message.
func (c *Checker) AuthorizeAs(ctx context.Context, conversationID, universeID, userID string) (*Membership, error) {
	if universeID == "" {
		return nil, apperr.InvalidInput("universe id is required")
	}
	conv, err := c.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, apperr.Upstream("conversation lookup failed", err)
	}
	if universeID != conv.UniverseLow && universeID != conv.UniverseHigh {
		return nil, ErrNotParticipant
	}
	universe, err := OwnedUniverse(ctx, c.store, universeID, userID)
	if apperr.CodeOf(err) == apperr.CodeUnauthorized {
		// Naming a participant the caller does not own must look the same
		// as naming a stranger.
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, err
	}
	return &Membership{Conversation: conv, Universe: *universe}, nil
}

// Owns is OwnedUniverse against the checker's store.
func (c *Checker) Owns(ctx context.Context, universeID, userID string) (*models.Universe, error) {
	if universeID == "" {
		return nil, apperr.InvalidInput("universe id is required")
	}
	return OwnedUniverse(ctx, c.store, universeID, userID)
}

// OwnedUniverse loads universeID and checks that userID owns it and that
// it is active.
func OwnedUniverse(ctx context.Context, store storage.UniverseStore, universeID, userID string) (*models.Universe, error) {
	universes, err := store.GetUniverses(ctx, universeID)
	if err != nil {
		return nil, apperr.Upstream("universe lookup failed", err)
	}
	for _, u := range universes {
		if u.ID != universeID || u.OwnerID != userID {
			continue
		}
		if !u.Active {
			return nil, apperr.Inactive("universe is deactivated")
		}
		return &u, nil
	}
	return nil, apperr.Unauthorized("not authorized to act as this universe")
}
