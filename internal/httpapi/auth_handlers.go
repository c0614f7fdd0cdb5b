package httpapi

import (
	"net/http"
	"strings"
	"time"

	"folio.org/internal/workflow"
)

type tokenRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	TTL     string `json:"ttl"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const maxTokenTTL = 24 * time.Hour

// handleAuthToken mints tokens for development setups; it is only routed
// when dev tokens are enabled.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}

	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, "actor_id is required")
		return
	}
	role, ok := workflow.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, "role must be one of student, faculty, librarian, admin")
		return
	}
	ttl := a.tokenTTL
	if raw := strings.TrimSpace(req.TTL); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxTokenTTL {
			writeError(w, r, http.StatusBadRequest, workflow.KindValidation, "ttl must be a positive duration up to 24h")
			return
		}
		ttl = d
	}

	token, expiresAt, err := a.signer.GenerateToken(workflow.Actor{ID: actorID, Role: role}, ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, workflow.KindInternal, "token generation failed")
		return
	}
	a.audit(r, "auth.token.issued", "actor", actorID, map[string]any{
		"role":       string(role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
