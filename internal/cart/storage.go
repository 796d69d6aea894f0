package cart

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/redis"
)

// Storage persists a wallet's serialized cart between sessions.
type Storage interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

type redisStorage struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStorage returns the Redis-backed persistence slot for wallet.
// Every save refreshes the idle TTL.
func NewRedisStorage(client *redis.Client, wallet string, ttl time.Duration) Storage {
	return &redisStorage{
		client: client,
		key:    client.CartStateKey(wallet),
		ttl:    ttl,
	}
}

func (s *redisStorage) Load(ctx context.Context) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading persisted cart")
	}
	return []byte(raw), true, nil
}

func (s *redisStorage) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, string(data), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting cart")
	}
	return nil
}

func (s *redisStorage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing persisted cart")
	}
	return nil
}

// MemoryStorage keeps the serialized cart in process memory. Used by
// tests and as a fallback when Redis is not configured.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false, nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, true, nil
}

func (s *MemoryStorage) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make([]byte, len(data))
	copy(s.data, data)
	s.set = true
	return nil
}

func (s *MemoryStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.set = false
	return nil
}
