package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
	"github.com/Vasu1712/scenyx-connect/internal/storage/cache"
	"github.com/Vasu1712/scenyx-connect/internal/storage/memory"
)

func universes() []models.Universe {
	return []models.Universe{
		{ID: "u-alpha", OwnerID: "alice", Active: true},
		{ID: "u-beta", OwnerID: "bob", Active: true},
	}
}

func newResolver(store Store) (*Resolver, *metrics.Metrics) {
	m := metrics.New()
	return NewResolver(store, nil, logger.Nop(), m), m
}

func outcome(m *metrics.Metrics, name string) float64 {
	return testutil.ToFloat64(m.ResolveTotal.WithLabelValues(name))
}

func TestResolveIsIdempotentAcrossOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDMStore(universes()...)
	r, m := newResolver(store)

	first, err := r.Resolve(ctx, "u-alpha", "u-beta", "alice")
	require.NoError(t, err)
	assert.True(t, first.Created)

	for i := 0; i < 5; i++ {
		ab, err := r.Resolve(ctx, "u-alpha", "u-beta", "alice")
		require.NoError(t, err)
		ba, err := r.Resolve(ctx, "u-beta", "u-alpha", "bob")
		require.NoError(t, err)
		assert.Equal(t, first.ConversationID, ab.ConversationID)
		assert.Equal(t, first.ConversationID, ba.ConversationID)
		assert.False(t, ba.Created)
	}

	assert.Equal(t, 1, store.ConversationCount())
	assert.Len(t, store.Participants(first.ConversationID), 2)
	assert.Equal(t, 1.0, outcome(m, metrics.ResolveCreated))
	assert.Equal(t, 10.0, outcome(m, metrics.ResolveExisting))
}

func TestResolveConcurrentCallersShareOneConversation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDMStore(universes()...)
	r, m := newResolver(store)

	const callers = 64
	ids := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			a, b := "u-alpha", "u-beta"
			if i%2 == 1 {
				a, b = b, a
			}
			res, err := r.Resolve(ctx, a, b, "alice")
			ids[i], errs[i] = res.ConversationID, err
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, ids[0], ids[i], "caller %d", i)
	}
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, 1, store.ConversationCount())
	assert.Len(t, store.Participants(ids[0]), 2)
	assert.Equal(t, 1.0, outcome(m, metrics.ResolveCreated))
	assert.Equal(t, 0.0, outcome(m, metrics.ResolveError))
}

func TestResolveRejectsSelfAndEmpty(t *testing.T) {
	r, _ := newResolver(memory.NewDMStore())
	for _, tc := range [][2]string{{"u-alpha", "u-alpha"}, {"", "u-beta"}, {"u-alpha", ""}} {
		_, err := r.Resolve(context.Background(), tc[0], tc[1], "alice")
		assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err), "pair %v", tc)
	}
}

func TestResolveCreatedBy(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		want   string
	}{
		{"requester owns high side", "bob", "u-beta"},
		{"requester owns low side", "alice", "u-alpha"},
		{"requester owns neither", "mallory", "u-alpha"},
		{"no requester", "", "u-alpha"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewDMStore(universes()...)
			r, _ := newResolver(store)
			res, err := r.Resolve(context.Background(), "u-beta", "u-alpha", tc.userID)
			require.NoError(t, err)
			conv, err := store.GetConversation(context.Background(), res.ConversationID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, conv.CreatedBy)
			assert.Equal(t, "u-alpha", conv.UniverseLow)
			assert.Equal(t, "u-beta", conv.UniverseHigh)
			assert.Equal(t, models.ConversationTypeDirect, conv.Type)
		})
	}
}

// ownerLookupFails makes the universe store unavailable.
type ownerLookupFails struct{ *memory.DMStore }

func (ownerLookupFails) GetUniverses(context.Context, ...string) ([]models.Universe, error) {
	return nil, errors.New("profile store timeout")
}

func TestResolveOwnerLookupFailureDoesNotBlockCreation(t *testing.T) {
	store := memory.NewDMStore(universes()...)
	r, _ := newResolver(ownerLookupFails{store})
	res, err := r.Resolve(context.Background(), "u-alpha", "u-beta", "bob")
	require.NoError(t, err)
	conv, err := store.GetConversation(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "u-alpha", conv.CreatedBy)
}

// racingStore loses every insert: another process creates the row between
// this caller's lookup and its insert. With vanish set, the conflicting
// row is never visible, which a correct unique key cannot produce.
type racingStore struct {
	*memory.DMStore
	vanish bool
}

func (s *racingStore) InsertUnique(ctx context.Context, conv *models.DMConversation) (*models.DMConversation, error) {
	if !s.vanish {
		rival := *conv
		rival.CreatedBy = conv.UniverseHigh
		if _, err := s.DMStore.InsertUnique(ctx, &rival); err != nil {
			return nil, err
		}
	}
	return nil, storage.ErrConflict
}

func TestResolveLostRaceReturnsWinner(t *testing.T) {
	store := &racingStore{DMStore: memory.NewDMStore(universes()...)}
	r, m := newResolver(store)

	res, err := r.Resolve(context.Background(), "u-alpha", "u-beta", "alice")
	require.NoError(t, err)
	assert.False(t, res.Created)

	winner, err := store.FindByPair(context.Background(), pairing.Pair{Low: "u-alpha", High: "u-beta"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, res.ConversationID)
	assert.Equal(t, "u-beta", winner.CreatedBy, "the rival's row is kept")
	assert.Len(t, store.Participants(winner.ID), 2)
	assert.Equal(t, 1.0, outcome(m, metrics.ResolveRaceLost))
}

func TestResolveConflictWithoutRowIsResourceConflict(t *testing.T) {
	store := &racingStore{DMStore: memory.NewDMStore(universes()...), vanish: true}
	r, _ := newResolver(store)

	res, err := r.Resolve(context.Background(), "u-alpha", "u-beta", "alice")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeResourceConflict, apperr.CodeOf(err))
	assert.Empty(t, res.ConversationID)
}

type participantsFail struct{ *memory.DMStore }

func (participantsFail) EnsureParticipants(context.Context, string, ...string) error {
	return errors.New("participants table locked")
}

func TestResolveParticipantFailureIsNotFatal(t *testing.T) {
	store := memory.NewDMStore(universes()...)
	r, m := newResolver(participantsFail{store})

	res, err := r.Resolve(context.Background(), "u-alpha", "u-beta", "alice")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParticipantFailures))
}

type lookupFails struct{ *memory.DMStore }

func (lookupFails) FindByPair(context.Context, pairing.Pair) (*models.DMConversation, error) {
	return nil, fmt.Errorf("find: %w", context.DeadlineExceeded)
}

func TestResolveStoreFailureIsRetryable(t *testing.T) {
	r, _ := newResolver(lookupFails{memory.NewDMStore()})
	_, err := r.Resolve(context.Background(), "u-alpha", "u-beta", "alice")
	code := apperr.CodeOf(err)
	assert.Equal(t, apperr.CodeUpstreamUnavailable, code)
	assert.True(t, apperr.Retryable(code))
}

type countingStore struct {
	*memory.DMStore
	finds atomic.Int32
}

func (s *countingStore) FindByPair(ctx context.Context, pair pairing.Pair) (*models.DMConversation, error) {
	s.finds.Add(1)
	return s.DMStore.FindByPair(ctx, pair)
}

func TestResolveUsesPairCache(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{DMStore: memory.NewDMStore(universes()...)}
	m := metrics.New()
	r := NewResolver(store, cache.NewMemory(0), logger.Nop(), m)

	first, err := r.Resolve(ctx, "u-alpha", "u-beta", "alice")
	require.NoError(t, err)
	findsAfterCreate := store.finds.Load()

	second, err := r.Resolve(ctx, "u-beta", "u-alpha", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, findsAfterCreate, store.finds.Load(), "cache hit must not touch the store")
	assert.Equal(t, 1.0, outcome(m, metrics.ResolveCacheHit))
}

func TestResolutionRoomNameMatchesPairing(t *testing.T) {
	res := Resolution{ConversationID: "abc"}
	assert.Equal(t, pairing.RoomName("abc"), res.RoomName())
}
