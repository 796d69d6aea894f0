package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
	"github.com/gu-corp/nft-cart-backend/internal/session"
	"github.com/gu-corp/nft-cart-backend/internal/tokens"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/redis"
)

const testWallet = "0x1111111111111111111111111111111111111111"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubLookup struct{}

func (stubLookup) Lookup(ctx context.Context, key string) (*cartsvc.TokenDetail, error) {
	return nil, nil
}

type stubTokensService struct{}

func (stubTokensService) Lookup(ctx context.Context, key string) (*cartsvc.TokenDetail, error) {
	return nil, nil
}

var _ tokens.Service = stubTokensService{}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Cart: config.CartConfig{
			PersistTTL:     time.Hour,
			LookupTimeout:  time.Second,
			ReferrerFeeCap: 1000,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	sessions, err := session.NewService(cfg.JWT, logg)
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	manager, err := cartsvc.NewManager(cartsvc.ManagerDeps{
		Lookup: stubLookup{},
		Logger: logg,
		Cfg:    cfg.Cart,
	})
	if err != nil {
		t.Fatalf("cart manager: %v", err)
	}

	return NewRouter(Deps{
		Cfg:         cfg,
		Logger:      logg,
		DB:          stubPinger{},
		Redis:       (*redis.Client)(nil),
		Sessions:    sessions,
		CartManager: manager,
		Tokens:      stubTokensService{},
	})
}

func issueToken(t *testing.T, router http.Handler, wallet string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"address": wallet})
	if err != nil {
		t.Fatalf("marshal session request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 from session create got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if envelope.Data.Token == "" {
		t.Fatal("expected a session token")
	}
	return envelope.Data.Token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-NFTCart-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestPublicPingNeedsNoAuth(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithSessionToken(t *testing.T) {
	router := newTestRouter(t, testConfig())
	token := issueToken(t, router, testWallet)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for private ping got %d", resp.Code)
	}
}

func TestCartFetchThroughRouter(t *testing.T) {
	router := newTestRouter(t, testConfig())
	token := issueToken(t, router, testWallet)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Items      []any  `json:"items"`
			TotalPrice string `json:"totalPrice"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode cart response: %v", err)
	}
	if len(envelope.Data.Items) != 0 || envelope.Data.TotalPrice != "0" {
		t.Fatalf("expected a fresh empty cart, got %+v", envelope.Data)
	}
}

func TestSessionCreateRejectsBadAddress(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body := bytes.NewReader([]byte(`{"address":"nope"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTokenLookupReturnsNotFoundForUnindexed(t *testing.T) {
	router := newTestRouter(t, testConfig())
	token := issueToken(t, router, testWallet)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens/0x4444444444444444444444444444444444444444-7", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unindexed token got %d", resp.Code)
	}
}
