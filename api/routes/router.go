package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gu-corp/nft-cart-backend/api/controllers"
	cartcontrollers "github.com/gu-corp/nft-cart-backend/api/controllers/cart"
	"github.com/gu-corp/nft-cart-backend/api/middleware"
	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
	"github.com/gu-corp/nft-cart-backend/internal/session"
	"github.com/gu-corp/nft-cart-backend/internal/tokens"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	"github.com/gu-corp/nft-cart-backend/pkg/db"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Cfg         *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       *redis.Client
	Sessions    session.Service
	CartManager *cartsvc.Manager
	Tokens      tokens.Service
	Registry    *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Cfg
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Post("/api/v1/session", controllers.SessionCreate(deps.Sessions, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.Fetch(deps.CartManager, logg))
			r.Delete("/", cartcontrollers.Clear(deps.CartManager, logg))
			r.Post("/items", cartcontrollers.AddItems(deps.CartManager, logg))
			r.Post("/items/remove", cartcontrollers.RemoveItems(deps.CartManager, logg))
			r.Post("/validate", cartcontrollers.Validate(deps.CartManager, logg))
			r.Post("/checkout", cartcontrollers.Checkout(deps.CartManager, logg))
			r.Delete("/transaction", cartcontrollers.ClearTransaction(deps.CartManager, logg))
			r.Put("/referral", cartcontrollers.SetReferral(deps.CartManager, logg))
		})

		r.Get("/v1/tokens/{key}", controllers.TokenDetail(deps.Tokens, logg))
	})

	return r
}
