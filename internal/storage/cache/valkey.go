package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/scenyx-connect/internal/pairing"
)

// Valkey is a PairCache shared by every process of the service.
type Valkey struct {
	client valkey.Client
	ttl    time.Duration
}

var _ PairCache = (*Valkey)(nil)

// NewValkey connects to addr and verifies the connection with PING.
func NewValkey(ctx context.Context, addr string, ttl time.Duration) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("valkey: connect %s: %w", addr, err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: ping: %w", err)
	}
	return &Valkey{client: client, ttl: ttl}, nil
}

func (v *Valkey) Get(ctx context.Context, pair pairing.Pair) (string, error) {
	id, err := v.client.Do(ctx, v.client.B().Get().Key(key(pair)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("valkey: get: %w", err)
	}
	return id, nil
}

func (v *Valkey) Set(ctx context.Context, pair pairing.Pair, conversationID string) error {
	seconds := int64(v.ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	cmd := v.client.B().Set().Key(key(pair)).Value(conversationID).ExSeconds(seconds).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey: set: %w", err)
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
