package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gu-corp/nft-cart-backend/internal/exchange"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	"github.com/gu-corp/nft-cart-backend/pkg/enums"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
)

const (
	testBuyer    = "0x1111111111111111111111111111111111111111"
	testSeller   = "0x2222222222222222222222222222222222222222"
	testReferrer = "0x3333333333333333333333333333333333333333"

	testCollection = "0x4444444444444444444444444444444444444444:1"
)

var (
	testWETH = supportedCurrencies[0].Contract
	testUSDC = supportedCurrencies[1].Contract
)

type stubLookup struct {
	mu      sync.Mutex
	details map[string]*TokenDetail
	errs    map[string]error
	gate    chan struct{}
	calls   int
}

func (l *stubLookup) Lookup(_ context.Context, key string) (*TokenDetail, error) {
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if err := l.errs[key]; err != nil {
		return nil, err
	}
	return l.details[key], nil
}

func (l *stubLookup) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type stubExchange struct {
	mu      sync.Mutex
	orders  []exchange.Order
	execErr error
	mineErr error
	gate    chan struct{}
}

func (e *stubExchange) ExecuteBulk(_ context.Context, _ string, orders []exchange.Order) (string, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	e.orders = append([]exchange.Order(nil), orders...)
	e.mu.Unlock()
	if e.execErr != nil {
		return "", e.execErr
	}
	return "0xdeadbeef", nil
}

func (e *stubExchange) WaitMined(_ context.Context, _ string) error {
	return e.mineErr
}

func newTestStore(t *testing.T, lookup Lookup, ex exchange.Client) *Store {
	t.Helper()
	if lookup == nil {
		lookup = &stubLookup{}
	}
	store, err := New(Deps{
		Wallet:   testBuyer,
		Storage:  NewMemoryStorage(),
		Lookup:   lookup,
		Exchange: ex,
		Cfg: config.CartConfig{
			PersistTTL:     time.Hour,
			LookupTimeout:  time.Second,
			ReferrerFeeCap: 1000,
		},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func listedToken(id, price string) AddToken {
	return AddToken{
		ID:         id,
		Collection: testCollection,
		Name:       "token " + id,
		Owner:      testSeller,
		Asks: []Ask{
			{Signer: testSeller, Price: price, Currency: testWETH},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAddDeduplicatesByKey(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("7", "100"), listedToken("7", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, []AddToken{listedToken("7", "100")}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	state := store.Get()
	if len(state.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(state.Items))
	}
	if state.Items[0].Key() != testCollection+":7" {
		t.Fatalf("unexpected key %s", state.Items[0].Key())
	}
	if state.TotalPrice != "100" {
		t.Fatalf("unexpected total %s", state.TotalPrice)
	}
}

func TestAddSkipsOwnTokensAndListings(t *testing.T) {
	store := newTestStore(t, nil, nil)

	owned := listedToken("1", "50")
	owned.Owner = testBuyer
	selfListed := listedToken("2", "60")
	selfListed.Asks[0].Signer = testBuyer

	if err := store.Add(context.Background(), []AddToken{owned, selfListed, listedToken("3", "70")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	state := store.Get()
	if len(state.Items) != 1 {
		t.Fatalf("expected only the third token, got %d items", len(state.Items))
	}
	if state.Items[0].Token.ID != "3" {
		t.Fatalf("unexpected item %s", state.Items[0].Token.ID)
	}
}

func TestAddRejectsMixedCurrencies(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	usdcToken := listedToken("2", "500")
	usdcToken.Asks[0].Currency = testUSDC
	err := store.Add(ctx, []AddToken{usdcToken})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if got := len(store.Get().Items); got != 1 {
		t.Fatalf("cart mutated by rejected add: %d items", got)
	}
}

func TestAddWithoutAskIsUnavailable(t *testing.T) {
	store := newTestStore(t, nil, nil)

	unlisted := AddToken{ID: "9", Collection: testCollection, Owner: testSeller}
	if err := store.Add(context.Background(), []AddToken{unlisted}); err != nil {
		t.Fatalf("add: %v", err)
	}

	state := store.Get()
	if len(state.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(state.Items))
	}
	if state.Items[0].Available() {
		t.Fatal("unlisted token should be unavailable")
	}
	if state.TotalPrice != "0" {
		t.Fatalf("unexpected total %s", state.TotalPrice)
	}
	if state.Currency != nil {
		t.Fatalf("expected no currency, got %v", state.Currency)
	}
}

func TestPricingAndCurrencyDerivation(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100"), listedToken("2", "250")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	state := store.Get()
	if state.TotalPrice != "350" {
		t.Fatalf("unexpected total %s", state.TotalPrice)
	}
	if state.Currency == nil || state.Currency.Symbol != "WETH" {
		t.Fatalf("unexpected currency %+v", state.Currency)
	}

	if err := store.SetReferral(ctx, testReferrer, 250); err != nil {
		t.Fatalf("set referral: %v", err)
	}
	state = store.Get()
	// floor(350 * 250 / 10000) = 8
	if state.ReferrerFee != "8" {
		t.Fatalf("unexpected referrer fee %s", state.ReferrerFee)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	state = store.Get()
	if state.Currency != nil {
		t.Fatal("currency should reset with empty cart")
	}
	if state.TotalPrice != "0" || state.ReferrerFee != "0" {
		t.Fatalf("totals not reset: %s / %s", state.TotalPrice, state.ReferrerFee)
	}
}

func TestSetReferralPairRule(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.SetReferral(ctx, "", 0); err != nil {
		t.Fatalf("detach on empty cart: %v", err)
	}

	err := store.SetReferral(ctx, testReferrer, 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero fee, got %v", err)
	}

	err = store.SetReferral(ctx, testReferrer, 1500)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error above cap, got %v", err)
	}

	if err := store.SetReferral(ctx, testReferrer, 100); err != nil {
		t.Fatalf("set referral: %v", err)
	}
	if err := store.SetReferral(ctx, "", 0); err != nil {
		t.Fatalf("detach referral: %v", err)
	}
	state := store.Get()
	if state.Referrer != "" || state.ReferrerFeeBps != 0 {
		t.Fatalf("referral not detached: %+v", state)
	}
}

func TestRemoveByKey(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100"), listedToken("2", "250")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Remove(ctx, []string{testCollection + ":1", "unknown:key"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	state := store.Get()
	if len(state.Items) != 1 || state.Items[0].Token.ID != "2" {
		t.Fatalf("unexpected items %+v", state.Items)
	}
	if state.TotalPrice != "250" {
		t.Fatalf("total not recomputed: %s", state.TotalPrice)
	}
}

func TestSubscribeDedupeAndUnsubscribe(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	fn := func(Cart) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	unsubscribe := store.Subscribe(fn)
	store.Subscribe(fn)

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected one notification per commit, got %d", got)
	}

	unsubscribe()
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	mu.Lock()
	got = count
	mu.Unlock()
	if got != 1 {
		t.Fatalf("unsubscribed listener still notified: %d", got)
	}
}

func TestValidateReconcilesAgainstIndex(t *testing.T) {
	delistedKey := "0x4444444444444444444444444444444444444444-1"
	ownedKey := "0x4444444444444444444444444444444444444444-2"
	repricedKey := "0x4444444444444444444444444444444444444444-3"
	erroredKey := "0x4444444444444444444444444444444444444444-4"

	indexDown := errors.New("index timeout")
	lookup := &stubLookup{
		details: map[string]*TokenDetail{
			// nil detail: the token is unknown to the index and drops
			delistedKey: nil,
			ownedKey:    {Owner: testBuyer, Asks: []Ask{{Signer: testBuyer, Price: "1", Currency: testWETH}}},
			repricedKey: {
				Owner: testSeller,
				Name:  "renamed",
				Asks:  []Ask{{Signer: testSeller, Price: "175", Currency: testWETH}},
			},
		},
		errs: map[string]error{
			erroredKey: indexDown,
		},
	}
	store := newTestStore(t, lookup, nil)
	ctx := context.Background()

	err := store.Add(ctx, []AddToken{
		listedToken("1", "100"),
		listedToken("2", "100"),
		listedToken("3", "100"),
		listedToken("4", "100"),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	ran, err := store.Validate(ctx)
	if !ran {
		t.Fatal("expected validate to run")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error carrying the failed lookups, got %v", err)
	}
	if !errors.Is(err, indexDown) {
		t.Fatalf("failed lookup not aggregated into error: %v", err)
	}

	state := store.Get()
	if state.IsValidating {
		t.Fatal("isValidating flag not reset")
	}
	if len(state.Items) != 2 {
		t.Fatalf("expected 2 surviving items, got %d", len(state.Items))
	}
	byID := map[string]Item{}
	for _, it := range state.Items {
		byID[it.Token.ID] = it
	}
	if it, ok := byID["3"]; !ok || it.Price != "175" || it.Token.Name != "renamed" {
		t.Fatalf("repriced item not refreshed: %+v", byID["3"])
	}
	if it, ok := byID["4"]; !ok || it.Price != "100" {
		t.Fatalf("errored lookup should keep item untouched: %+v", byID["4"])
	}
	if state.TotalPrice != "275" {
		t.Fatalf("total not recomputed: %s", state.TotalPrice)
	}
}

func TestValidateNoopOnEmptyCart(t *testing.T) {
	lookup := &stubLookup{}
	store := newTestStore(t, lookup, nil)

	ran, err := store.Validate(context.Background())
	if err != nil || ran {
		t.Fatalf("expected silent no-op, got ran=%v err=%v", ran, err)
	}
	if lookup.callCount() != 0 {
		t.Fatal("lookup should not be called for an empty cart")
	}
}

func TestConcurrentMutationsDuringValidate(t *testing.T) {
	aliveKey := "0x4444444444444444444444444444444444444444-1"
	removedKey := "0x4444444444444444444444444444444444444444-2"

	gate := make(chan struct{})
	lookup := &stubLookup{
		gate: gate,
		details: map[string]*TokenDetail{
			aliveKey:   {Owner: testSeller, Asks: []Ask{{Signer: testSeller, Price: "110", Currency: testWETH}}},
			removedKey: {Owner: testSeller, Asks: []Ask{{Signer: testSeller, Price: "120", Currency: testWETH}}},
		},
	}
	store := newTestStore(t, lookup, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100"), listedToken("2", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := store.Validate(ctx); err != nil {
			t.Errorf("validate: %v", err)
		}
	}()

	waitFor(t, func() bool { return store.Get().IsValidating })

	// A second pass is a silent no-op while one is in flight.
	if ran, err := store.Validate(ctx); err != nil || ran {
		t.Fatalf("expected concurrent validate no-op, got ran=%v err=%v", ran, err)
	}

	// Adding is rejected while reconciling.
	err := store.Add(ctx, []AddToken{listedToken("5", "100")})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Removal stays available and must not be undone by the merge.
	if err := store.Remove(ctx, []string{testCollection + ":2"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	close(gate)
	<-done

	state := store.Get()
	if state.IsValidating {
		t.Fatal("isValidating flag not reset")
	}
	if len(state.Items) != 1 {
		t.Fatalf("removed item resurrected: %+v", state.Items)
	}
	if state.Items[0].Token.ID != "1" || state.Items[0].Price != "110" {
		t.Fatalf("surviving item not refreshed: %+v", state.Items[0])
	}
}

// gatedStorage parks the next Save after arm so tests can order
// persistence against concurrent mutations.
type gatedStorage struct {
	Storage
	mu      sync.Mutex
	saves   int
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) arm() {
	g.mu.Lock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.mu.Unlock()
}

func (g *gatedStorage) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}

func (g *gatedStorage) Save(ctx context.Context, data []byte) error {
	g.mu.Lock()
	g.saves++
	hold := g.armed
	entered, release := g.entered, g.release
	g.armed = false
	g.mu.Unlock()
	if hold {
		close(entered)
		<-release
	}
	return g.Storage.Save(ctx, data)
}

func TestRemoveDuringValidatePersistsLast(t *testing.T) {
	itemKey := "0x4444444444444444444444444444444444444444-1"
	lookupGate := make(chan struct{})
	lookup := &stubLookup{
		gate: lookupGate,
		details: map[string]*TokenDetail{
			itemKey: {Owner: testSeller, Asks: []Ask{{Signer: testSeller, Price: "100", Currency: testWETH}}},
		},
	}
	storage := &gatedStorage{Storage: NewMemoryStorage()}
	store, err := New(Deps{
		Wallet:  testBuyer,
		Storage: storage,
		Lookup:  lookup,
		Cfg:     config.CartConfig{LookupTimeout: time.Second},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	validateDone := make(chan struct{})
	go func() {
		defer close(validateDone)
		if _, err := store.Validate(ctx); err != nil {
			t.Errorf("validate: %v", err)
		}
	}()

	// Let the reconciling-flag commit land, then park the merge commit
	// inside its persistence call.
	waitFor(t, func() bool { return storage.saveCount() >= 2 })
	storage.arm()
	close(lookupGate)
	<-storage.entered

	// Remove while the merge snapshot, which still holds the item, sits
	// in persistence.
	removeDone := make(chan struct{})
	go func() {
		defer close(removeDone)
		if err := store.Remove(ctx, []string{testCollection + ":1"}); err != nil {
			t.Errorf("remove: %v", err)
		}
	}()

	close(storage.release)
	<-validateDone
	<-removeDone

	fresh, err := New(Deps{
		Wallet:  testBuyer,
		Storage: storage.Storage,
		Lookup:  &stubLookup{},
		Cfg:     config.CartConfig{LookupTimeout: time.Second},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if items := fresh.Get().Items; len(items) != 0 {
		t.Fatalf("removed item came back from a stale persisted snapshot: %+v", items)
	}
}

func TestLoadRestoresAndReconciles(t *testing.T) {
	storage := NewMemoryStorage()
	aliveKey := "0x4444444444444444444444444444444444444444-1"
	lookup := &stubLookup{
		details: map[string]*TokenDetail{
			aliveKey: {Owner: testSeller, Asks: []Ask{{Signer: testSeller, Price: "100", Currency: testWETH}}},
			// token 2 unknown: dropped on rehydrate
		},
	}

	first, err := New(Deps{Wallet: testBuyer, Storage: storage, Lookup: lookup, Cfg: config.CartConfig{LookupTimeout: time.Second}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Add(context.Background(), []AddToken{listedToken("1", "100"), listedToken("2", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	second, err := New(Deps{Wallet: testBuyer, Storage: storage, Lookup: lookup, Cfg: config.CartConfig{LookupTimeout: time.Second}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	state := second.Get()
	if len(state.Items) != 1 || state.Items[0].Token.ID != "1" {
		t.Fatalf("unexpected rehydrated items: %+v", state.Items)
	}
	if lookup.callCount() != 2 {
		t.Fatalf("expected one reconciliation pass over 2 items, got %d lookups", lookup.callCount())
	}
}

func TestLoadDiscardsCorruptState(t *testing.T) {
	storage := NewMemoryStorage()
	if err := storage.Save(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	store, err := New(Deps{Wallet: testBuyer, Storage: storage, Lookup: &stubLookup{}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(store.Get().Items); got != 0 {
		t.Fatalf("expected empty cart, got %d items", got)
	}
	if _, found, _ := storage.Load(context.Background()); found {
		// Load commits the empty state, so the slot may be rewritten;
		// it must at least not hold the corrupt blob anymore.
		data, _, _ := storage.Load(context.Background())
		if string(data) == "{not json" {
			t.Fatal("corrupt blob still persisted")
		}
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	ex := &stubExchange{}
	store := newTestStore(t, nil, ex)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100"), listedToken("2", "250")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var mu sync.Mutex
	var statuses []enums.TransactionStatus
	store.Subscribe(func(c Cart) {
		if c.Transaction == nil {
			return
		}
		mu.Lock()
		statuses = append(statuses, c.Transaction.Status)
		mu.Unlock()
	})

	if err := store.Checkout(ctx); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	state := store.Get()
	if state.Transaction == nil || state.Transaction.Status != enums.TransactionStatusComplete {
		t.Fatalf("unexpected transaction %+v", state.Transaction)
	}
	if state.Transaction.TxHash != "0xdeadbeef" {
		t.Fatalf("unexpected tx hash %s", state.Transaction.TxHash)
	}
	if state.PendingTransactionID == "" {
		t.Fatal("pending transaction id missing")
	}
	if len(state.Items) != 0 || state.TotalPrice != "0" {
		t.Fatalf("cart not emptied after settlement: %+v", state)
	}
	if len(ex.orders) != 2 {
		t.Fatalf("expected 2 orders submitted, got %d", len(ex.orders))
	}
	if ex.orders[0].Contract != "0x4444444444444444444444444444444444444444" {
		t.Fatalf("collection not split into contract: %s", ex.orders[0].Contract)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []enums.TransactionStatus{
		enums.TransactionStatusApproving,
		enums.TransactionStatusFinalizing,
		enums.TransactionStatusComplete,
	}
	if len(statuses) != len(want) {
		t.Fatalf("unexpected status sequence %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status %d: got %s want %s", i, statuses[i], want[i])
		}
	}
}

func TestCheckoutClassifiesFailures(t *testing.T) {
	cases := []struct {
		name     string
		execErr  error
		wantType enums.CheckoutErrorType
	}{
		{"insufficient balance", exchange.ErrInsufficientBalance, enums.CheckoutErrorInsufficientBalance},
		{"price mismatch", exchange.ErrPriceMismatch, enums.CheckoutErrorPriceMismatch},
		{"user denied", exchange.ErrUserDenied, enums.CheckoutErrorUserDenied},
		{"unknown", errors.New("rpc unreachable"), enums.CheckoutErrorUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t, nil, &stubExchange{execErr: tc.execErr})
			ctx := context.Background()
			if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
				t.Fatalf("add: %v", err)
			}

			err := store.Checkout(ctx)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
				t.Fatalf("expected dependency error, got %v", err)
			}

			state := store.Get()
			if state.Transaction == nil || state.Transaction.ErrorType != tc.wantType {
				t.Fatalf("unexpected transaction %+v", state.Transaction)
			}
			if len(state.Items) != 1 {
				t.Fatal("items must survive a failed checkout")
			}
		})
	}
}

func TestCheckoutGuards(t *testing.T) {
	store := newTestStore(t, nil, &stubExchange{})
	ctx := context.Background()

	err := store.Checkout(ctx)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error on empty cart, got %v", err)
	}

	if err := store.Add(ctx, []AddToken{{ID: "9", Collection: testCollection, Owner: testSeller}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	err = store.Checkout(ctx)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error on unavailable item, got %v", err)
	}
}

func TestCheckoutRejectsWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	ex := &stubExchange{gate: gate}
	store := newTestStore(t, nil, ex)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- store.Checkout(ctx) }()

	waitFor(t, func() bool {
		state := store.Get()
		return state.Transaction != nil && state.Transaction.Status == enums.TransactionStatusApproving
	})

	err := store.Checkout(ctx)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first checkout: %v", err)
	}
}

func TestClearKeepsTransactionAndClearTransactionForgetsIt(t *testing.T) {
	store := newTestStore(t, nil, &stubExchange{})
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Checkout(ctx); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := store.Add(ctx, []AddToken{listedToken("2", "50")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	state := store.Get()
	if state.Transaction == nil {
		t.Fatal("clear must keep the transaction record")
	}

	if err := store.ClearTransaction(ctx); err != nil {
		t.Fatalf("clear transaction: %v", err)
	}
	state = store.Get()
	if state.Transaction != nil || state.PendingTransactionID != "" {
		t.Fatalf("transaction not forgotten: %+v", state)
	}
}

func TestSetMergesPatchAndRecomputes(t *testing.T) {
	store := newTestStore(t, nil, nil)
	ctx := context.Background()

	if err := store.Add(ctx, []AddToken{listedToken("1", "100")}); err != nil {
		t.Fatalf("add: %v", err)
	}

	items := []Item{
		{Token: TokenRef{ID: "9", Collection: testCollection}, Price: "40", Currency: testWETH},
	}
	tx := Transaction{Status: enums.TransactionStatusComplete, TxHash: "0xfeed"}
	if err := store.Set(ctx, Patch{Items: &items, Transaction: &tx}); err != nil {
		t.Fatalf("set: %v", err)
	}

	state := store.Get()
	if len(state.Items) != 1 || state.Items[0].Token.ID != "9" {
		t.Fatalf("patch did not replace items: %+v", state.Items)
	}
	if state.TotalPrice != "40" {
		t.Fatalf("derived total not recomputed, got %s", state.TotalPrice)
	}
	if state.Transaction == nil || state.Transaction.TxHash != "0xfeed" {
		t.Fatalf("transaction not stamped: %+v", state.Transaction)
	}

	// Nil fields leave state untouched.
	if err := store.Set(ctx, Patch{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	state = store.Get()
	if len(state.Items) != 1 || state.Transaction == nil {
		t.Fatalf("empty patch must be a pure recommit: %+v", state)
	}
}
