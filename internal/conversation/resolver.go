// Package conversation resolves the unique direct conversation between two
// universes, creating it on first use.
//
// The store's unique key on (low, high) decides which of several
// concurrent creators wins. A losing insert is an expected outcome, not a
// failure: the loser re-reads the pair and returns the winner's id, so no
// caller ever sees a duplicate-conversation error.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
	"github.com/Vasu1712/scenyx-connect/internal/storage/cache"
)

// participantTimeout bounds participant bootstrap, which runs detached
// from the caller's cancellation once the conversation row exists.
const participantTimeout = 5 * time.Second

type Store interface {
	storage.ConversationStore
	storage.UniverseStore
}

type Resolver struct {
	store   Store
	cache   cache.PairCache
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewResolver(store Store, pairCache cache.PairCache, log *logger.Logger, m *metrics.Metrics) *Resolver {
	if pairCache == nil {
		pairCache = cache.Nop{}
	}
	return &Resolver{store: store, cache: pairCache, log: log.Component("resolver"), metrics: m}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	ConversationID string
	Pair           pairing.Pair
	// Created is true only for the caller whose insert won.
	Created bool
}

// RoomName is the call room of the resolved conversation.
func (r Resolution) RoomName() string {
	return pairing.RoomName(r.ConversationID)
}

// Resolve returns the conversation between universes a and b, creating it
// if absent. userID is the authenticated requester and is only used to
// fill created_by on creation.
func (r *Resolver) Resolve(ctx context.Context, a, b, userID string) (Resolution, error) {
	pair, err := pairing.Canonicalize(a, b)
	if err != nil {
		return Resolution{}, err
	}

	if id, ok := r.cached(ctx, pair); ok {
		r.metrics.RecordResolve(metrics.ResolveCacheHit)
		return Resolution{ConversationID: id, Pair: pair}, nil
	}

	existing, err := r.store.FindByPair(ctx, pair)
	switch {
	case err == nil:
		r.metrics.RecordResolve(metrics.ResolveExisting)
		r.remember(ctx, pair, existing.ID)
		return Resolution{ConversationID: existing.ID, Pair: pair}, nil
	case !errors.Is(err, storage.ErrNotFound):
		r.metrics.RecordResolve(metrics.ResolveError)
		return Resolution{}, apperr.Upstream("conversation lookup failed", err)
	}

	created, err := r.store.InsertUnique(ctx, &models.DMConversation{
		UniverseLow:  pair.Low,
		UniverseHigh: pair.High,
		CreatedBy:    r.creatorFor(ctx, pair, userID),
		Type:         models.ConversationTypeDirect,
	})
	if errors.Is(err, storage.ErrConflict) {
		return r.adoptWinner(ctx, pair)
	}
	if err != nil {
		r.metrics.RecordResolve(metrics.ResolveError)
		return Resolution{}, apperr.Upstream("conversation insert failed", err)
	}

	r.metrics.RecordResolve(metrics.ResolveCreated)
	r.log.Info().
		Str("conversation_id", created.ID).
		Str("universe_low", pair.Low).
		Str("universe_high", pair.High).
		Str("created_by", created.CreatedBy).
		Msg("conversation created")
	r.ensureParticipants(ctx, created.ID, pair)
	r.remember(ctx, pair, created.ID)
	return Resolution{ConversationID: created.ID, Pair: pair, Created: true}, nil
}

// adoptWinner handles a lost insert race by reading the row the winner
// created. Participants are ensured again in case the winner was
// abandoned between its insert and its participant bootstrap.
func (r *Resolver) adoptWinner(ctx context.Context, pair pairing.Pair) (Resolution, error) {
	winner, err := r.store.FindByPair(ctx, pair)
	if errors.Is(err, storage.ErrNotFound) {
		r.metrics.RecordResolve(metrics.ResolveError)
		r.log.Error().
			Str("universe_low", pair.Low).
			Str("universe_high", pair.High).
			Msg("insert reported a unique conflict but no conversation exists for the pair")
		return Resolution{}, apperr.Conflict("conversation could not be resolved")
	}
	if err != nil {
		r.metrics.RecordResolve(metrics.ResolveError)
		return Resolution{}, apperr.Upstream("conversation lookup failed", err)
	}

	r.metrics.RecordResolve(metrics.ResolveRaceLost)
	r.log.Debug().
		Str("conversation_id", winner.ID).
		Str("universe_low", pair.Low).
		Str("universe_high", pair.High).
		Msg("lost creation race, using existing conversation")
	r.ensureParticipants(ctx, winner.ID, pair)
	r.remember(ctx, pair, winner.ID)
	return Resolution{ConversationID: winner.ID, Pair: pair}, nil
}

// creatorFor picks the side of the pair owned by userID. created_by is
// metadata, so any lookup failure degrades to the low side.
func (r *Resolver) creatorFor(ctx context.Context, pair pairing.Pair, userID string) string {
	if userID == "" {
		return pair.Low
	}
	universes, err := r.store.GetUniverses(ctx, pair.Low, pair.High)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("owner lookup failed, defaulting created_by to low universe")
		return pair.Low
	}
	owned := ""
	for _, u := range universes {
		if u.OwnerID != userID || !pair.Contains(u.ID) {
			continue
		}
		if owned == "" || u.ID == pair.Low {
			owned = u.ID
		}
	}
	if owned == "" {
		r.log.Debug().Str("user_id", userID).Msg("requester owns neither universe, defaulting created_by to low universe")
		return pair.Low
	}
	return owned
}

func (r *Resolver) ensureParticipants(ctx context.Context, conversationID string, pair pairing.Pair) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), participantTimeout)
	defer cancel()
	if err := r.store.EnsureParticipants(ctx, conversationID, pair.Low, pair.High); err != nil {
		r.metrics.ParticipantFailures.Inc()
		r.log.Error().Err(err).Str("conversation_id", conversationID).Msg("participant bootstrap failed")
	}
}

func (r *Resolver) cached(ctx context.Context, pair pairing.Pair) (string, bool) {
	id, err := r.cache.Get(ctx, pair)
	if err == nil && id != "" {
		return id, true
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		r.log.Warn().Err(err).Msg("pair cache read failed")
	}
	return "", false
}

func (r *Resolver) remember(ctx context.Context, pair pairing.Pair, conversationID string) {
	if err := r.cache.Set(ctx, pair, conversationID); err != nil {
		r.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("pair cache write failed")
	}
}
