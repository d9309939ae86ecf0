package httptransport

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quorum/internal/authz"
	"quorum/internal/invalidation/metrics"
	"quorum/internal/portal"
)

// SessionCookie carries the primary session id between mounts.
const SessionCookie = "quorum_session"

type contextKeyIdentity struct{}
type contextKeyPortal struct{}

// IdentityFrom returns the authorized identity placed by the guard.
func IdentityFrom(ctx context.Context) authz.Identity {
	identity, _ := ctx.Value(contextKeyIdentity{}).(authz.Identity)
	return identity
}

// PortalFrom returns the portal the guard admitted the request to.
func PortalFrom(ctx context.Context) portal.Portal {
	p, _ := ctx.Value(contextKeyPortal{}).(portal.Portal)
	return p
}

// Guard runs the role guard for one portal mount: resolve identity from the
// ranked sources, evaluate the pure decision, then apply the effect. Denied
// redirects to the role's own portal with a visible notice; unauthenticated
// redirects to login silently.
func (h *Handler) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "portal")
		p, err := h.registry.Lookup(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		identity := h.resolver.Resolve(r.Context(), h.sessionIDFrom(r), h.fallbackFrom(r))
		decision := authz.Evaluate(identity, p, h.registry, h.superAdminEmail)
		metrics.GuardDecisions.WithLabelValues(p.Name, string(decision.Phase)).Inc()

		switch decision.Phase {
		case authz.PhaseAuthorized:
			// A fallback materialization becomes a first-class session
			// for the next mount.
			if identity.Primary != nil && h.sessionIDFrom(r) != identity.Primary.ID {
				h.setSessionCookie(w, identity.Primary.ID)
			}
			ctx := context.WithValue(r.Context(), contextKeyIdentity{}, identity)
			ctx = context.WithValue(ctx, contextKeyPortal{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))

		case authz.PhaseDenied:
			h.logger.Info("portal access denied",
				"portal", p.Name,
				"role", decision.ResolvedRole,
				"redirect", decision.RedirectTo,
			)
			target := decision.RedirectTo
			if decision.Notice != "" {
				target += "?notice=" + url.QueryEscape(decision.Notice)
			}
			http.Redirect(w, r, target, http.StatusSeeOther)

		default:
			http.Redirect(w, r, portal.LoginPath, http.StatusSeeOther)
		}
	})
}

func (h *Handler) sessionIDFrom(r *http.Request) uuid.UUID {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) fallbackFrom(r *http.Request) *authz.FallbackUser {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Debug("fallback token rejected", "error", err)
		return nil
	}
	return &authz.FallbackUser{Email: claims.Email}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})
}
