package httpapi

import (
	"net/http"
	"time"

	"finnbourse.org/internal/audit"
	"finnbourse.org/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token          string    `json:"token"`
	ActorID        string    `json:"actor_id"`
	Role           string    `json:"role"`
	OrganizationID string    `json:"organization_id,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, token, err := a.resolver.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.respondSessionError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "session.login", map[string]any{
		"actor_id": actor.ID,
		"role":     string(actor.Role),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:          token,
		ActorID:        actor.ID,
		Role:           string(actor.Role),
		OrganizationID: actor.OrganizationID,
		IssuedAt:       time.Now().UTC(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	a.resolver.ForceSignOut(actor.SessionID, "logout")
	_ = audit.LogEvent(r.Context(), "session.logout", map[string]any{
		"actor_id": actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actor_id":          actor.ID,
		"role":              string(actor.Role),
		"organization_id":   actor.OrganizationID,
		"consultation_only": a.policy.IsConsultationOnly(actor.Role),
	})
}

func (a *API) handlePolicyPages(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	pages := a.policy.PermittedPages(actor.Role)
	out := make([]map[string]any, 0, len(pages))
	menu := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, map[string]any{
			"page":       string(p),
			"can_modify": a.policy.CanModify(actor.Role, p),
		})
		menu = append(menu, string(p))
	}
	// Read-through menu cache for the session; purged on sign-out.
	if actor.SessionID != "" {
		a.resolver.StoreMenu(actor.SessionID, menu)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": out})
}
