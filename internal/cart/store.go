// Package cart implements the per-wallet shopping cart aggregate: an
// observable, persisted state machine covering item management, price
// aggregation, reconciliation against the token index and checkout
// through the exchange.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gu-corp/nft-cart-backend/internal/exchange"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	"github.com/gu-corp/nft-cart-backend/pkg/enums"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/eth"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/metrics"
)

// TokenDetail is the indexed view of one token, keyed "<contract>-<tokenId>".
type TokenDetail struct {
	Contract string
	TokenID  string
	Name     string
	Image    *string
	Owner    string
	Asks     []Ask
}

// Lookup resolves a token key against the index. A nil detail with a
// nil error means the token is unknown and treated as delisted.
type Lookup interface {
	Lookup(ctx context.Context, key string) (*TokenDetail, error)
}

// Subscriber is notified with a state snapshot after every commit.
type Subscriber func(Cart)

// Deps carries the collaborators a Store needs.
type Deps struct {
	Wallet   string
	Storage  Storage
	Lookup   Lookup
	Exchange exchange.Client
	Events   Events
	Metrics  *metrics.CartMetrics
	Logger   *logger.Logger
	Cfg      config.CartConfig
}

// Store owns the cart state for one wallet. All mutations serialize on
// an internal mutex; reconciliation releases it for the lookup fan-out
// and merges results against whatever the user did meanwhile.
type Store struct {
	mu          sync.Mutex
	state       Cart
	commitSeq   uint64
	subscribers map[uintptr]Subscriber

	persistMu    sync.Mutex
	persistedSeq uint64

	wallet   string
	storage  Storage
	lookup   Lookup
	exchange exchange.Client
	events   Events
	metrics  *metrics.CartMetrics
	logg     *logger.Logger
	cfg      config.CartConfig
}

// New creates an empty store for deps.Wallet. Call Load to rehydrate
// persisted state.
func New(deps Deps) (*Store, error) {
	if deps.Wallet == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet address is required")
	}
	if deps.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart storage is required")
	}
	if deps.Lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token lookup is required")
	}
	if deps.Events == nil {
		deps.Events = NoopEvents{}
	}
	return &Store{
		state: Cart{
			Items:       []Item{},
			TotalPrice:  ZeroPrice,
			ReferrerFee: ZeroPrice,
		},
		subscribers: make(map[uintptr]Subscriber),
		wallet:      eth.Normalize(deps.Wallet),
		storage:     deps.Storage,
		lookup:      deps.Lookup,
		exchange:    deps.Exchange,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logg:        deps.Logger,
		cfg:         deps.Cfg,
	}, nil
}

// Wallet returns the normalized wallet address this store belongs to.
func (s *Store) Wallet() string {
	return s.wallet
}

// Get returns a snapshot of the current state. The snapshot is a deep
// copy; callers can hold it without racing mutations.
func (s *Store) Get() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for commit notifications and returns the
// matching unsubscribe. Registering the same function twice keeps a
// single registration.
func (s *Store) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}
	key := reflect.ValueOf(fn).Pointer()
	s.mu.Lock()
	s.subscribers[key] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subscribers, key)
		s.mu.Unlock()
	}
}

// Add appends the given tokens to the cart. Duplicates, tokens owned or
// listed by the cart's wallet are skipped silently. Tokens priced in a
// different currency than the cart's current one are rejected. Adding
// is disabled while a reconciliation pass runs.
func (s *Store) Add(ctx context.Context, tokens []AddToken) error {
	s.mu.Lock()
	if s.state.IsValidating {
		s.mu.Unlock()
		s.metrics.IncOperation("add", "rejected")
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is reconciling, try again shortly")
	}

	seen := make(map[string]struct{}, len(s.state.Items))
	for _, it := range s.state.Items {
		seen[it.Key()] = struct{}{}
	}
	cartCurrency := ""
	for _, it := range s.state.Items {
		if it.Currency != "" {
			cartCurrency = it.Currency
			break
		}
	}

	var added []Item
	for _, token := range tokens {
		if token.ID == "" || token.Collection == "" {
			continue
		}
		if _, dup := seen[token.Key()]; dup {
			continue
		}
		if token.Owner != "" && eth.Equal(token.Owner, s.wallet) {
			continue
		}

		price, currency := ZeroPrice, ""
		if len(token.Asks) > 0 {
			ask := token.Asks[0]
			if eth.Equal(ask.Signer, s.wallet) {
				continue
			}
			price, currency = ask.Price, ask.Currency
		}
		if currency != "" {
			if cartCurrency != "" && !eth.Equal(currency, cartCurrency) {
				s.mu.Unlock()
				s.metrics.IncOperation("add", "rejected")
				return pkgerrors.New(pkgerrors.CodeValidation, "cart items must share a single currency").
					WithDetails(map[string]string{"cart_currency": cartCurrency, "token_currency": currency})
			}
			if cartCurrency == "" {
				cartCurrency = currency
			}
		}

		seen[token.Key()] = struct{}{}
		added = append(added, Item{
			Token: TokenRef{
				ID:         token.ID,
				Name:       token.Name,
				Collection: token.Collection,
				Image:      token.Image,
			},
			Price:    price,
			Currency: currency,
		})
	}

	s.state.Items = append(s.state.Items, added...)
	s.recomputeLocked()
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("add", "ok")
	if len(added) > 0 {
		s.events.ItemsAdded(ctx, s.wallet, itemKeys(added))
	}
	return nil
}

// Remove drops the items matching keys. Unknown keys are ignored.
// Removal stays available during reconciliation; removed items never
// resurface when the pass merges.
func (s *Store) Remove(ctx context.Context, keys []string) error {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	s.mu.Lock()
	kept := s.state.Items[:0:0]
	var removed []string
	for _, it := range s.state.Items {
		if _, hit := drop[it.Key()]; hit {
			removed = append(removed, it.Key())
			continue
		}
		kept = append(kept, it)
	}
	s.state.Items = kept
	s.recomputeLocked()
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("remove", "ok")
	if len(removed) > 0 {
		s.events.ItemsRemoved(ctx, s.wallet, removed)
	}
	return nil
}

// Clear empties the cart. Any checkout transaction record is retained
// so the client can keep showing its outcome.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.state.Items = []Item{}
	s.recomputeLocked()
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("clear", "ok")
	s.events.Cleared(ctx, s.wallet)
	return nil
}

// ClearTransaction forgets the latest checkout outcome.
func (s *Store) ClearTransaction(ctx context.Context) error {
	s.mu.Lock()
	s.state.Transaction = nil
	s.state.PendingTransactionID = ""
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("clear_transaction", "ok")
	return nil
}

// Patch carries the fields Set may overwrite. Nil fields are left
// untouched.
type Patch struct {
	Items                *[]Item
	PendingTransactionID *string
	Transaction          *Transaction
}

// Set shallow-merges the patch into the cart state and commits. It is
// the escape hatch for ad-hoc external updates, such as stamping a
// transaction outcome observed out of band. Derived fields are always
// recomputed from the resulting items, never taken from the patch.
func (s *Store) Set(ctx context.Context, patch Patch) error {
	s.mu.Lock()
	if patch.Items != nil {
		s.state.Items = append([]Item(nil), (*patch.Items)...)
	}
	if patch.PendingTransactionID != nil {
		s.state.PendingTransactionID = *patch.PendingTransactionID
	}
	if patch.Transaction != nil {
		tx := *patch.Transaction
		s.state.Transaction = &tx
	}
	s.recomputeLocked()
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("set", "ok")
	return nil
}

// SetReferral attaches a referrer and fee to the cart, or detaches both
// when referrer is empty. The two travel as a pair: a fee without a
// referrer (or the reverse) never applies.
func (s *Store) SetReferral(ctx context.Context, referrer string, feeBps int) error {
	if referrer != "" {
		if !eth.IsHexAddress(referrer) {
			return pkgerrors.New(pkgerrors.CodeValidation, "referrer must be a hex address")
		}
		if feeBps <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "referrer fee bps must be positive")
		}
		capBps := s.cfg.ReferrerFeeCap
		if capBps > 0 && feeBps > capBps {
			return pkgerrors.New(pkgerrors.CodeValidation, "referrer fee exceeds cap").
				WithDetails(map[string]int{"cap_bps": capBps})
		}
	}

	s.mu.Lock()
	if referrer == "" {
		s.state.Referrer = ""
		s.state.ReferrerFeeBps = 0
	} else {
		s.state.Referrer = eth.Normalize(referrer)
		s.state.ReferrerFeeBps = feeBps
	}
	s.recomputeLocked()
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.IncOperation("set_referral", "ok")
	return nil
}

type lookupResult struct {
	detail *TokenDetail
	err    error
}

// Validate reconciles every item against the token index: items now
// owned by the wallet or without an active ask are dropped, prices and
// names are refreshed from the current best ask. Returns false without
// doing anything when the cart is empty or a pass is already running.
//
// The lock is released during the lookup fan-out. Results merge by item
// key against the live state, so items the user removed meanwhile stay
// removed and items added meanwhile pass through untouched. Items whose
// lookup failed are kept as they were and the failures come back
// aggregated in the returned error, with the pass still counted as run.
func (s *Store) Validate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if len(s.state.Items) == 0 || s.state.IsValidating {
		s.mu.Unlock()
		return false, nil
	}
	s.state.IsValidating = true
	snapshot := make([]Item, len(s.state.Items))
	copy(snapshot, s.state.Items)
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	// Commit the loading flag before any network round trip.
	s.commit(ctx, snap, seq)

	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.state.IsValidating = false
			snap, seq := s.snapshotLocked()
			s.mu.Unlock()
			s.commit(ctx, snap, seq)
			panic(r)
		}
	}()

	start := time.Now()
	results := make(map[string]lookupResult, len(snapshot))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	for _, it := range snapshot {
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			lookupCtx := ctx
			if s.cfg.LookupTimeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
				defer cancel()
			}
			detail, err := s.lookup.Lookup(lookupCtx, item.LookupKey())
			resultsMu.Lock()
			results[item.Key()] = lookupResult{detail: detail, err: err}
			resultsMu.Unlock()
		}(it)
	}
	wg.Wait()

	var lookupErrs error
	removedCount := 0

	s.mu.Lock()
	kept := s.state.Items[:0:0]
	for _, it := range s.state.Items {
		res, found := results[it.Key()]
		if !found {
			// Added while the pass was in flight.
			kept = append(kept, it)
			continue
		}
		if res.err != nil {
			lookupErrs = multierr.Append(lookupErrs, res.err)
			kept = append(kept, it)
			continue
		}
		if res.detail == nil || eth.Equal(res.detail.Owner, s.wallet) || len(res.detail.Asks) == 0 {
			removedCount++
			continue
		}
		ask := res.detail.Asks[0]
		it.Price = ask.Price
		it.Currency = ask.Currency
		if res.detail.Name != "" {
			it.Token.Name = res.detail.Name
		}
		if res.detail.Image != nil {
			it.Token.Image = res.detail.Image
		}
		kept = append(kept, it)
	}
	s.state.Items = kept
	s.state.IsValidating = false
	s.recomputeLocked()
	snap, seq = s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	s.metrics.ObserveValidateDuration(time.Since(start))
	s.metrics.AddItemsRemoved(removedCount)

	if lookupErrs != nil {
		s.metrics.IncOperation("validate", "partial")
		if s.logg != nil {
			s.logg.Warn(
				s.logg.WithField(ctx, "failed_lookups", len(multierr.Errors(lookupErrs))),
				"reconciliation kept items with failed lookups",
			)
		}
		return true, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErrs, "token index lookups failed, affected items kept as-is")
	}
	s.metrics.IncOperation("validate", "ok")
	return true, nil
}

// Checkout submits the cart as one bulk purchase through the exchange
// and tracks the transaction through approving, finalizing and
// complete. On success the cart is emptied; the transaction record
// stays until ClearTransaction.
func (s *Store) Checkout(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state.IsValidating:
		s.mu.Unlock()
		s.metrics.IncOperation("checkout", "rejected")
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is reconciling, try again shortly")
	case len(s.state.Items) == 0:
		s.mu.Unlock()
		s.metrics.IncOperation("checkout", "rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	case s.state.Transaction != nil &&
		(s.state.Transaction.Status == enums.TransactionStatusApproving ||
			s.state.Transaction.Status == enums.TransactionStatusFinalizing):
		s.mu.Unlock()
		s.metrics.IncOperation("checkout", "rejected")
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress")
	}

	orders := make([]exchange.Order, 0, len(s.state.Items))
	var unavailable []string
	for _, it := range s.state.Items {
		if !it.Available() {
			unavailable = append(unavailable, it.Key())
			continue
		}
		contract := it.Token.Collection
		if idx := strings.Index(contract, ":"); idx >= 0 {
			contract = contract[:idx]
		}
		orders = append(orders, exchange.Order{
			Contract: contract,
			TokenID:  it.Token.ID,
			Price:    it.Price,
			Currency: it.Currency,
		})
	}
	if len(unavailable) > 0 {
		s.mu.Unlock()
		s.metrics.IncOperation("checkout", "rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable items").
			WithDetails(map[string][]string{"keys": unavailable})
	}
	if s.exchange == nil {
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeInternal, "exchange client not configured")
	}

	keys := itemKeys(s.state.Items)
	totalPrice := s.state.TotalPrice
	s.state.PendingTransactionID = uuid.NewString()
	s.state.Transaction = &Transaction{Status: enums.TransactionStatusApproving}
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()
	s.commit(ctx, snap, seq)

	txHash, err := s.exchange.ExecuteBulk(ctx, s.wallet, orders)
	if err != nil {
		return s.failCheckout(ctx, err)
	}

	s.mu.Lock()
	if s.state.Transaction != nil {
		s.state.Transaction.Status = enums.TransactionStatusFinalizing
		s.state.Transaction.TxHash = txHash
	}
	snap, seq = s.snapshotLocked()
	s.mu.Unlock()
	s.commit(ctx, snap, seq)

	if err := s.exchange.WaitMined(ctx, txHash); err != nil {
		return s.failCheckout(ctx, err)
	}

	s.mu.Lock()
	if s.state.Transaction != nil {
		s.state.Transaction.Status = enums.TransactionStatusComplete
	}
	s.state.Items = []Item{}
	s.recomputeLocked()
	snap, seq = s.snapshotLocked()
	s.mu.Unlock()
	s.commit(ctx, snap, seq)

	s.metrics.IncOperation("checkout", "ok")
	s.metrics.IncCheckout(enums.TransactionStatusComplete.String())
	s.events.CheckoutCompleted(ctx, s.wallet, txHash, keys, totalPrice)
	return nil
}

func (s *Store) failCheckout(ctx context.Context, cause error) error {
	errType := classifyCheckoutError(cause)

	s.mu.Lock()
	if s.state.Transaction != nil {
		s.state.Transaction.Error = cause.Error()
		s.state.Transaction.ErrorType = errType
	}
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()
	s.commit(ctx, snap, seq)

	s.metrics.IncOperation("checkout", "error")
	s.metrics.IncCheckout("failed")
	if s.logg != nil {
		logCtx := s.logg.WithField(ctx, "error_type", errType)
		s.logg.Error(logCtx, "checkout failed", cause)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "checkout failed").
		WithDetails(map[string]string{"error_type": errType.String()})
}

func classifyCheckoutError(err error) enums.CheckoutErrorType {
	switch {
	case errors.Is(err, exchange.ErrPriceMismatch):
		return enums.CheckoutErrorPriceMismatch
	case errors.Is(err, exchange.ErrInsufficientBalance):
		return enums.CheckoutErrorInsufficientBalance
	case errors.Is(err, exchange.ErrUserDenied):
		return enums.CheckoutErrorUserDenied
	default:
		return enums.CheckoutErrorUnknown
	}
}

// Load rehydrates the item list from storage and, when anything was
// restored, runs one reconciliation pass so stale listings never
// survive a restart.
func (s *Store) Load(ctx context.Context) error {
	data, found, err := s.storage.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	var persisted Cart
	if err := json.Unmarshal(data, &persisted); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "discarding unreadable persisted cart")
		}
		return s.storage.Clear(ctx)
	}

	s.mu.Lock()
	// Only the item list is trusted; everything derived is recomputed.
	s.state.Items = persisted.Items
	if s.state.Items == nil {
		s.state.Items = []Item{}
	}
	s.recomputeLocked()
	restored := len(s.state.Items)
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap, seq)
	if restored == 0 {
		return nil
	}
	// Failed lookups keep their items; a flaky index must not block
	// rehydration.
	if _, err := s.Validate(ctx); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "rehydration reconciliation ran with lookup failures")
	}
	return nil
}

// recomputeLocked refreshes the derived fields. Caller holds s.mu.
func (s *Store) recomputeLocked() {
	bps := 0
	if s.state.Referrer != "" {
		bps = s.state.ReferrerFeeBps
	}
	pricing := CalculatePricing(s.state.Items, bps)
	s.state.TotalPrice = pricing.TotalPrice
	s.state.ReferrerFee = pricing.ReferrerFee
	s.state.Currency = CartCurrency(s.state.Items)
}

// snapshotLocked stamps the next commit sequence and clones the state.
// Caller holds s.mu; the sequence orders persistence across commits
// racing outside the state lock.
func (s *Store) snapshotLocked() (Cart, uint64) {
	s.commitSeq++
	return s.state.clone(), s.commitSeq
}

// commit persists the snapshot and notifies subscribers, in that order,
// exactly once per mutation. Saves serialize on a dedicated mutex and a
// snapshot that lost the race to a newer commit is dropped, so the
// persisted cart never rolls back to an older state. Persistence
// failures are logged, never surfaced: the in-memory state is
// authoritative.
func (s *Store) commit(ctx context.Context, snap Cart, seq uint64) {
	s.persistMu.Lock()
	if seq <= s.persistedSeq {
		s.persistMu.Unlock()
		return
	}
	s.persistedSeq = seq
	data, err := json.Marshal(snap)
	if err == nil {
		err = s.storage.Save(ctx, data)
	}
	s.persistMu.Unlock()
	if err != nil && s.logg != nil {
		s.logg.Error(ctx, "persisting cart snapshot failed", err)
	}

	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap.clone())
	}
}

func itemKeys(items []Item) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key())
	}
	return keys
}
