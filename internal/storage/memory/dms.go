package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
)

type participantKey struct {
	conversationID string
	universeID     string
}

// DMStore is an in-process storage.Store. The pairs map plays the role of
// the (low, high) unique index and participants the composite primary key.
type DMStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.DMConversation // id -> conversation
	pairs         map[pairing.Pair]string           // (low, high) -> id
	participants  map[participantKey]models.DMParticipant
	universes     map[string]models.Universe
	messages      map[string][]models.DMMessage // conversation id -> messages
}

var _ storage.Store = (*DMStore)(nil)

func NewDMStore(universes ...models.Universe) *DMStore {
	s := &DMStore{
		conversations: make(map[string]*models.DMConversation),
		pairs:         make(map[pairing.Pair]string),
		participants:  make(map[participantKey]models.DMParticipant),
		universes:     make(map[string]models.Universe),
		messages:      make(map[string][]models.DMMessage),
	}
	for _, u := range universes {
		s.universes[u.ID] = u
	}
	return s
}

// PutUniverse adds or replaces a universe.
func (s *DMStore) PutUniverse(u models.Universe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universes[u.ID] = u
}

func (s *DMStore) FindByPair(ctx context.Context, pair pairing.Pair) (*models.DMConversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[pair]
	if !ok {
		return nil, storage.ErrNotFound
	}
	conv := *s.conversations[id]
	return &conv, nil
}

func (s *DMStore) GetConversation(ctx context.Context, id string) (*models.DMConversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *DMStore) InsertUnique(ctx context.Context, conv *models.DMConversation) (*models.DMConversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pair := pairing.Pair{Low: conv.UniverseLow, High: conv.UniverseHigh}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pairs[pair]; exists {
		return nil, storage.ErrConflict
	}
	created := *conv
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now().UTC()
	if created.Type == "" {
		created.Type = models.ConversationTypeDirect
	}
	s.conversations[created.ID] = &created
	s.pairs[pair] = created.ID

	out := created
	return &out, nil
}

func (s *DMStore) EnsureParticipants(ctx context.Context, conversationID string, universeIDs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	for _, uid := range universeIDs {
		key := participantKey{conversationID: conversationID, universeID: uid}
		if _, exists := s.participants[key]; exists {
			continue
		}
		s.participants[key] = models.DMParticipant{
			ConversationID: conversationID,
			UniverseID:     uid,
			JoinedAt:       now,
		}
	}
	return nil
}

// Participants lists the participant rows of a conversation.
func (s *DMStore) Participants(conversationID string) []models.DMParticipant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.DMParticipant
	for key, p := range s.participants {
		if key.conversationID == conversationID {
			result = append(result, p)
		}
	}
	return result
}

// ConversationCount is the number of conversation rows.
func (s *DMStore) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *DMStore) GetUniverses(ctx context.Context, ids ...string) ([]models.Universe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Universe
	for _, id := range ids {
		if u, ok := s.universes[id]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}

func (s *DMStore) AddMessage(ctx context.Context, msg *models.DMMessage) (*models.DMMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return nil, storage.ErrNotFound
	}
	stored := *msg
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], stored)
	return &stored, nil
}

// Messages returns the stored messages of a conversation in insert order.
func (s *DMStore) Messages(conversationID string) []models.DMMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DMMessage(nil), s.messages[conversationID]...)
}

func (s *DMStore) Close() error { return nil }
