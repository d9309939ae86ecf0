// Package httptransport is the outer HTTP surface around the invalidation
// core: portal mounts behind the role guard, login, and the refresh event
// stream portals listen on. The core itself defines no wire protocol; this
// layer only adapts it.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quorum/internal/auth"
	"quorum/internal/authz"
	"quorum/internal/invalidation"
	"quorum/internal/invalidation/crosstab"
	"quorum/internal/invalidation/feed"
	"quorum/internal/platform/config"
	"quorum/internal/portal"
	"quorum/internal/session"
	"quorum/internal/staff"
)

// Handler is the thin HTTP layer. It delegates to the invalidation core and
// the role guard; no business logic lives here.
type Handler struct {
	logger    *slog.Logger
	registry  *portal.Registry
	resolver  *authz.Resolver
	sessions  session.Store
	directory staff.Directory
	tokens    TokenValidator
	trigger   *invalidation.Trigger
	bus       *invalidation.Bus
	channel   *crosstab.Channel
	feed      feed.Source
	cfg       config.Invalidation

	superAdminEmail string
	sessionTTL      time.Duration
}

// TokenValidator validates fallback identity tokens.
type TokenValidator interface {
	Validate(tokenString string) (*auth.Claims, error)
}

// Deps bundles what the handler needs; all fields are required except Feed.
type Deps struct {
	Logger          *slog.Logger
	Registry        *portal.Registry
	Resolver        *authz.Resolver
	Sessions        session.Store
	Directory       staff.Directory
	Tokens          TokenValidator
	Trigger         *invalidation.Trigger
	Bus             *invalidation.Bus
	Channel         *crosstab.Channel
	Feed            feed.Source
	Invalidation    config.Invalidation
	SuperAdminEmail string
	SessionTTL      time.Duration
}

func NewHandler(d Deps) *Handler {
	ttl := d.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		logger:          d.Logger,
		registry:        d.Registry,
		resolver:        d.Resolver,
		sessions:        d.Sessions,
		directory:       d.Directory,
		tokens:          d.Tokens,
		trigger:         d.Trigger,
		bus:             d.Bus,
		channel:         d.Channel,
		feed:            d.Feed,
		cfg:             d.Invalidation,
		superAdminEmail: d.SuperAdminEmail,
		sessionTTL:      ttl,
	}
}

// NewRouter wires all endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Route("/portal/{portal}", func(r chi.Router) {
		r.Use(h.Guard)
		r.Get("/", h.handlePortal)
		r.Get("/events", h.handleEvents)
		r.Post("/invalidate", h.handleInvalidate)
	})

	return r
}
