package accounts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keybound/identity-vault-backend/accessctl"
	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/metrics"
)

// maxRequestBody caps the PUT body. A passphrase change carries a single
// short JSON object; anything larger is rejected before parsing.
const maxRequestBody = 64 * 1024

// challengeHeader is sent with every 401. The realm is fixed so the
// response is byte-identical regardless of why authentication failed.
const challengeHeader = `Basic realm="accounts"`

// ChangePassphraseRequest is the PUT body for a passphrase change.
type ChangePassphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// Handler processes HTTP requests for the account service. It extracts
// Basic-auth credentials, delegates to the access controller, and maps the
// controller's error taxonomy onto HTTP statuses.
type Handler struct {
	controller *accessctl.Controller
	log        *slog.Logger
}

// NewHandler creates an HTTP request handler backed by controller.
func NewHandler(controller *accessctl.Controller, log *slog.Logger) *Handler {
	return &Handler{controller: controller, log: log}
}

// RegisterRoutes configures the router with the account endpoints:
//   - GET /api/v1/accounts/{account_id}
//   - PUT /api/v1/accounts/{account_id}
//   - DELETE /api/v1/accounts/{account_id}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/accounts/{account_id}", h.HandleInspect)
	r.Put("/api/v1/accounts/{account_id}", h.HandleChangePassphrase)
	r.Delete("/api/v1/accounts/{account_id}", h.HandleDestroy)
}

// HandleInspect returns the account projection after full passphrase proof.
//
// Status codes:
//   - 200 OK: JSON-encoded account info
//   - 401 Unauthorized: missing or failing credentials
//   - 404 Not Found: no such account
//   - 500 Internal Server Error: store fault
func (h *Handler) HandleInspect(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	creds, ok := basicCredentials(r)
	if !ok {
		h.challenge(w, "inspect")
		return
	}

	info, err := h.controller.Inspect(r.Context(), accountID, creds)
	if err != nil {
		h.writeError(w, "inspect", accountID, err)
		return
	}

	metrics.AccountOperations.WithLabelValues("inspect", "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		h.log.Error("Failed to encode account info", "err", err, slog.String("account", accountID))
	}
}

// HandleChangePassphrase rotates the account passphrase. The request body
// is JSON {"passphrase": "..."} carrying the new passphrase; the old one
// arrives in the Basic-auth header.
//
// Status codes:
//   - 204 No Content: passphrase changed
//   - 401 Unauthorized: missing or failing credentials, or relock failure
//   - 404 Not Found: no such account
//   - 409 Conflict: the account changed concurrently, retry with fresh credentials
//   - 422 Unprocessable Entity: malformed body or empty new passphrase
//   - 500 Internal Server Error: store fault
func (h *Handler) HandleChangePassphrase(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	creds, ok := basicCredentials(r)
	if !ok {
		h.challenge(w, "change_passphrase")
		return
	}

	var req ChangePassphraseRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		metrics.AccountOperations.WithLabelValues("change_passphrase", "validation").Inc()
		http.Error(w, "Malformed request body", http.StatusUnprocessableEntity)
		return
	}

	err := h.controller.ChangePassphrase(r.Context(), accountID, creds, req.Passphrase)
	if err != nil {
		h.writeError(w, "change_passphrase", accountID, err)
		return
	}

	metrics.AccountOperations.WithLabelValues("change_passphrase", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// HandleDestroy removes the account and everything it owns.
//
// Status codes:
//   - 204 No Content: account and documents removed
//   - 401 Unauthorized: missing or failing credentials
//   - 404 Not Found: no such account
//   - 500 Internal Server Error: store fault
func (h *Handler) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	creds, ok := basicCredentials(r)
	if !ok {
		h.challenge(w, "destroy")
		return
	}

	if err := h.controller.Destroy(r.Context(), accountID, creds); err != nil {
		h.writeError(w, "destroy", accountID, err)
		return
	}

	metrics.AccountOperations.WithLabelValues("destroy", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// basicCredentials extracts Basic-auth credentials from the request. A
// missing or unparsable header reports !ok and the caller must challenge.
func basicCredentials(r *http.Request) (auth.Credentials, bool) {
	identifier, passphrase, ok := r.BasicAuth()
	if !ok {
		return auth.Credentials{}, false
	}
	return auth.Credentials{Identifier: identifier, Passphrase: passphrase}, true
}

// challenge writes the uniform 401 response. Header and body are constant
// so no failure cause is distinguishable from the outside.
func (h *Handler) challenge(w http.ResponseWriter, operation string) {
	metrics.AccountOperations.WithLabelValues(operation, "challenge").Inc()
	w.Header().Set("WWW-Authenticate", challengeHeader)
	http.Error(w, "Authentication required", http.StatusUnauthorized)
}

// writeError maps a controller error onto the HTTP response.
func (h *Handler) writeError(w http.ResponseWriter, operation, accountID string, err error) {
	var validation *accessctl.ValidationError
	switch {
	case errors.Is(err, accessctl.ErrNotFound):
		metrics.AccountOperations.WithLabelValues(operation, "not_found").Inc()
		http.Error(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, accessctl.ErrChallenge):
		h.challenge(w, operation)
	case errors.As(err, &validation):
		metrics.AccountOperations.WithLabelValues(operation, "validation").Inc()
		http.Error(w, validation.Reason, http.StatusUnprocessableEntity)
	case errors.Is(err, interfaces.ErrStaleIdentity):
		metrics.AccountOperations.WithLabelValues(operation, "conflict").Inc()
		http.Error(w, "Account was modified concurrently", http.StatusConflict)
	default:
		metrics.AccountOperations.WithLabelValues(operation, "fault").Inc()
		h.log.Error("Account operation failed", "err", err, slog.String("operation", operation), slog.String("account", accountID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
