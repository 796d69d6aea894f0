package cart

import (
	"context"
	"sync"

	"github.com/gu-corp/nft-cart-backend/internal/exchange"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/eth"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/metrics"
	"github.com/gu-corp/nft-cart-backend/pkg/redis"
)

// ManagerDeps carries the shared collaborators handed to every store.
type ManagerDeps struct {
	Redis    *redis.Client
	Lookup   Lookup
	Exchange exchange.Client
	Events   Events
	Metrics  *metrics.CartMetrics
	Logger   *logger.Logger
	Cfg      config.CartConfig
}

// Manager hands out one Store per wallet, rehydrating persisted state
// on first access.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
	deps   ManagerDeps
}

func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token lookup is required")
	}
	return &Manager{
		stores: make(map[string]*Store),
		deps:   deps,
	}, nil
}

// StoreFor returns the store for wallet, creating and loading it on
// first access. The initial Load runs one reconciliation pass when
// persisted items were restored.
func (m *Manager) StoreFor(ctx context.Context, wallet string) (*Store, error) {
	if !eth.IsHexAddress(wallet) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet address")
	}
	normalized := eth.Normalize(wallet)

	m.mu.Lock()
	if store, ok := m.stores[normalized]; ok {
		m.mu.Unlock()
		return store, nil
	}
	m.mu.Unlock()

	storage := m.storageFor(normalized)
	store, err := New(Deps{
		Wallet:   normalized,
		Storage:  storage,
		Lookup:   m.deps.Lookup,
		Exchange: m.deps.Exchange,
		Events:   m.deps.Events,
		Metrics:  m.deps.Metrics,
		Logger:   m.deps.Logger,
		Cfg:      m.deps.Cfg,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.stores[normalized]; ok {
		// Lost the creation race; the winner already loaded.
		m.mu.Unlock()
		return existing, nil
	}
	m.stores[normalized] = store
	m.mu.Unlock()

	if err := store.Load(ctx); err != nil {
		if m.deps.Logger != nil {
			logCtx := m.deps.Logger.WithWallet(ctx, normalized)
			m.deps.Logger.Error(logCtx, "rehydrating cart failed", err)
		}
	}
	return store, nil
}

func (m *Manager) storageFor(wallet string) Storage {
	if m.deps.Redis != nil {
		return NewRedisStorage(m.deps.Redis, wallet, m.deps.Cfg.PersistTTL)
	}
	return NewMemoryStorage()
}
