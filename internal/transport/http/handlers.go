package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quorum/internal/auth"
	"quorum/internal/invalidation"
	"quorum/internal/invalidation/feed"
	"quorum/internal/invalidation/fresh"
	"quorum/internal/session"
	"quorum/pkg/platform/sentinel"
)

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Role      string    `json:"role"`
	Portal    string    `json:"portal"`
}

// handleLogin is the primary identity source: an explicit staff login that
// creates a session record.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.directory.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.Error("login: directory lookup failed", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !rec.Approved() || !auth.VerifyPassword(rec.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	sess := session.Session{
		ID:                uuid.New(),
		StaffID:           rec.ID,
		Email:             rec.Email,
		Role:              rec.Role,
		AssignedArea:      rec.AssignedArea,
		Origin:            session.OriginLogin,
		DeviceDisplayName: session.DeviceName(r.UserAgent()),
		CreatedAt:         now,
		ExpiresAt:         now.Add(h.sessionTTL),
	}
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.logger.Error("login: save session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	h.setSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: sess.ID,
		Role:      sess.Role,
		Portal:    h.registry.HomeFor(sess.Role),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := h.sessionIDFrom(r); id != uuid.Nil {
		if err := h.sessions.Delete(r.Context(), id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.Warn("logout: delete session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// handlePortal returns the mounted portal's descriptor. Rendering is the
// client's concern; the guard has already admitted the session.
func (h *Handler) handlePortal(w http.ResponseWriter, r *http.Request) {
	p := PortalFrom(r.Context())
	identity := IdentityFrom(r.Context())

	tables := make([]string, 0, len(p.Tables))
	for _, t := range p.Tables {
		tables = append(tables, t.Table)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portal":         p.Name,
		"role":           identity.Primary.Role,
		"assigned_area":  identity.Primary.AssignedArea,
		"watched_tables": tables,
	})
}

type invalidateRequest struct {
	SubjectID string   `json:"subject_id"`
	Kind      string   `json:"kind"`
	Summary   []string `json:"summary"`
}

// handleInvalidate is the mutation-triggering helper's surface: called by
// portal code after the backing store confirmed its mutation. It always
// reports success; signal channel failures stay internal.
func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "subject_id is required")
		return
	}
	kind := invalidation.Kind(req.Kind)
	switch kind {
	case invalidation.KindMemberDeleted, invalidation.KindMemberUpdated,
		invalidation.KindBalanceChanged, invalidation.KindContributionChanged,
		invalidation.KindDisbursementChanged, invalidation.KindGeneric:
	case "":
		kind = invalidation.KindGeneric
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", req.Kind))
		return
	}

	identity := IdentityFrom(r.Context())
	event := invalidation.NewEvent(kind, req.SubjectID, identity.Primary.Email, req.Summary...)
	h.trigger.Fire(r.Context(), event)

	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": event.ID.String()})
}

// handleEvents streams refresh notifications for the mounted portal as
// server-sent events. One freshness controller lives for the duration of the
// connection and is torn down with it.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	p := PortalFrom(r.Context())

	type refresh struct {
		Source string `json:"source"`
		Reason string `json:"reason"`
	}
	refreshes := make(chan refresh, 8)

	opts := fresh.Options{
		Portal:      p.Name,
		AutoRefresh: true,
		Bus:         h.bus,
		Channel:     h.channel,
		Tables:      p.Tables,
		OnRefresh: func(source, reason string) {
			select {
			case refreshes <- refresh{Source: source, Reason: reason}:
			default:
				// Slow consumer; the next poll will catch it up.
			}
		},
		CoalesceWindow: h.cfg.CoalesceWindow,
		PollInterval:   h.cfg.PollInterval,
		Logger:         h.logger,
	}
	if h.feed != nil {
		opts.Feed = feed.NewAdapter(h.feed, p.Name)
	}

	controller, err := fresh.New(r.Context(), opts)
	if err != nil {
		h.logger.Error("events: mount freshness controller failed", "portal", p.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not subscribe")
		return
	}
	defer controller.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-refreshes:
			payload, _ := json.Marshal(msg)
			fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
