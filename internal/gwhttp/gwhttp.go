// Package gwhttp implements the gateway's REST surface, spec.md §6
// ("HTTP (gateway)"): POST/GET /sessions, DELETE /sessions/{id}, plus
// the admin/log-level endpoint the teacher's AdminService exposes,
// generalized to a plain net/http mux instead of ConnectRPC since this
// module has no protobuf service definitions to route through.
package gwhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/gwservice"
	"github.com/cdpfleet/cdpfleet/internal/logging"
	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
	"github.com/cdpfleet/cdpfleet/internal/tenant"
	"github.com/cdpfleet/cdpfleet/internal/util/timefmt"
)

type tenantIDKey struct{}

// WithAuth extracts and verifies the bearer token, storing the
// resulting tenant ID on the request context for downstream handlers,
// per spec.md §6 "Authentication".
func WithAuth(v tenant.Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tenantID, err := v.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), tenantIDKey{}, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFromContext(r *http.Request) string {
	v, _ := r.Context().Value(tenantIDKey{}).(string)
	return v
}

// Handlers wires the session REST endpoints onto a mux.
type Handlers struct {
	svc *gwservice.SessionService
}

// New constructs Handlers.
func New(svc *gwservice.SessionService) *Handlers {
	return &Handlers{svc: svc}
}

type createSessionRequest struct {
	// Record is accepted but intentionally unwired: persistence of CDP
	// message traffic and recorded video are out of scope.
	Record bool `json:"record"`
	// ClientID is an optional free-text correlation label a caller can
	// attach to a session for its own tracing, distinct from the tenant
	// identity carried by the bearer token.
	ClientID string `json:"client_id"`
}

type createSessionResponse struct {
	SessionID  string `json:"sessionId"`
	ConnectURL string `json:"connectUrl"`
}

// CreateSession implements POST /sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	res, err := h.svc.CreateSession(r.Context(), tenantFromContext(r), req.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:  res.SessionID,
		ConnectURL: res.ConnectURL,
	})
}

type sessionView struct {
	SessionID    string  `json:"sessionId"`
	TenantID     string  `json:"tenantId"`
	WorkerID     string  `json:"workerId"`
	ClientID     *string `json:"clientId,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	LastActiveAt string  `json:"lastActiveAt"`
	EndedAt      *string `json:"endedAt,omitempty"`
	Status       string  `json:"status"`
}

type listSessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

// ListSessions implements GET /sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), tenantFromContext(r))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s))
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: views})
}

func toView(s relstore.Session) sessionView {
	v := sessionView{
		SessionID:    s.SessionID,
		TenantID:     s.TenantID,
		WorkerID:     s.WorkerID,
		ClientID:     s.ClientID,
		CreatedAt:    timefmt.Format(s.CreatedAt),
		LastActiveAt: timefmt.Format(s.LastActiveAt),
		Status:       s.Status,
	}
	if s.EndedAt != nil {
		formatted := timefmt.Format(*s.EndedAt)
		v.EndedAt = &formatted
	}
	return v
}

// CloseSession implements DELETE /sessions/{id}.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.svc.CloseSession(r.Context(), sessionID, "delete"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// LogLevel implements PATCH /admin/log-level, mirroring the teacher's
// AdminService.SetLogLevel.
func LogLevel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"level": logging.GetLevel().String()})
	case http.MethodPatch:
		var body struct {
			Level string `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		level, err := logging.ParseLevel(body.Level)
		if err != nil {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		logging.SetLevel(level)
		writeJSON(w, http.StatusOK, map[string]string{"level": level.String()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("gwhttp: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := cdperr.HTTPStatus(cdperr.KindOf(err))
	http.Error(w, err.Error(), status)
}
