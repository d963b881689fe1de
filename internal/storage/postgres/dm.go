// Package postgres is the relational storage driver. It expects:
//
//	universes(id text PRIMARY KEY, owner_id text NOT NULL, active bool NOT NULL)
//	dm_conversations(id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    universe_low text NOT NULL REFERENCES universes(id),
//	    universe_high text NOT NULL REFERENCES universes(id),
//	    created_by text NOT NULL, type text NOT NULL,
//	    created_at timestamptz NOT NULL DEFAULT now(),
//	    UNIQUE (universe_low, universe_high))
//	dm_participants(conversation_id uuid REFERENCES dm_conversations(id),
//	    universe_id text REFERENCES universes(id),
//	    joined_at timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (conversation_id, universe_id))
//	dm_messages(id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    dm_conversation_id uuid NOT NULL REFERENCES dm_conversations(id),
//	    sender_universe_id text NOT NULL,
//	    content text NOT NULL, created_at timestamptz NOT NULL DEFAULT now())
package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/Vasu1712/scenyx-connect/internal/models"
	"github.com/Vasu1712/scenyx-connect/internal/pairing"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresDMStore implements storage.Store on a pgx pool.
type PostgresDMStore struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*PostgresDMStore)(nil)

func NewPostgresDMStore(ctx context.Context, dsn string) (*PostgresDMStore, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresDMStore{pool: pool}, nil
}

const conversationColumns = `id::text, universe_low, universe_high, created_by, type, created_at`

func scanConversation(row pgx.Row) (*models.DMConversation, error) {
	conv := &models.DMConversation{}
	err := row.Scan(&conv.ID, &conv.UniverseLow, &conv.UniverseHigh, &conv.CreatedBy, &conv.Type, &conv.CreatedAt)
	return conv, err
}

func (s *PostgresDMStore) FindByPair(ctx context.Context, pair pairing.Pair) (*models.DMConversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM dm_conversations
		WHERE universe_low = $1 AND universe_high = $2
	`, pair.Low, pair.High))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "dmRepo.FindByPair.Scan")
	}
	return conv, nil
}

// GetConversation looks a conversation up by primary key. Ids that are not
// uuids cannot exist and never reach the database.
func (s *PostgresDMStore) GetConversation(ctx context.Context, id string) (*models.DMConversation, error) {
	convID, err := uuid.Parse(id)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM dm_conversations
		WHERE id = $1::uuid
	`, convID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "dmRepo.GetConversation.Scan")
	}
	return conv, nil
}

// InsertUnique relies on ON CONFLICT DO NOTHING: when another caller won
// the pair, no row is returned and the result is storage.ErrConflict.
func (s *PostgresDMStore) InsertUnique(ctx context.Context, conv *models.DMConversation) (*models.DMConversation, error) {
	convType := conv.Type
	if convType == "" {
		convType = models.ConversationTypeDirect
	}
	created, err := scanConversation(s.pool.QueryRow(ctx, `
		INSERT INTO dm_conversations (universe_low, universe_high, created_by, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (universe_low, universe_high) DO NOTHING
		RETURNING `+conversationColumns,
		conv.UniverseLow, conv.UniverseHigh, conv.CreatedBy, convType))
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return nil, storage.ErrConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "dmRepo.InsertUnique.Scan")
	}
	return created, nil
}

func (s *PostgresDMStore) EnsureParticipants(ctx context.Context, conversationID string, universeIDs ...string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dm_participants (conversation_id, universe_id)
		SELECT $1::uuid, unnest($2::text[])
		ON CONFLICT (conversation_id, universe_id) DO NOTHING
	`, conversationID, universeIDs)
	if err != nil {
		return errors.Wrap(err, "dmRepo.EnsureParticipants.Exec")
	}
	return nil
}

func (s *PostgresDMStore) GetUniverses(ctx context.Context, ids ...string) ([]models.Universe, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, active
		FROM universes
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "universeRepo.GetUniverses.Query")
	}
	defer rows.Close()

	var universes []models.Universe
	for rows.Next() {
		var u models.Universe
		if err := rows.Scan(&u.ID, &u.OwnerID, &u.Active); err != nil {
			return nil, errors.Wrap(err, "universeRepo.GetUniverses.Scan")
		}
		universes = append(universes, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "universeRepo.GetUniverses.Rows")
	}
	return universes, nil
}

func (s *PostgresDMStore) AddMessage(ctx context.Context, msg *models.DMMessage) (*models.DMMessage, error) {
	stored := &models.DMMessage{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dm_messages (dm_conversation_id, sender_universe_id, content)
		VALUES ($1::uuid, $2, $3)
		RETURNING id::text, dm_conversation_id::text, sender_universe_id, content, created_at
	`, msg.ConversationID, msg.SenderUniverseID, msg.Content).Scan(
		&stored.ID, &stored.ConversationID, &stored.SenderUniverseID, &stored.Content, &stored.CreatedAt,
	)
	if hasCode(err, foreignKeyViolation) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "dmRepo.AddMessage.Scan")
	}
	return stored, nil
}

func (s *PostgresDMStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
