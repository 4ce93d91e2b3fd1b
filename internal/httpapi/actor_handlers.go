package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finnbourse.org/internal/actors"
	"finnbourse.org/internal/audit"
	"finnbourse.org/internal/policy"
	"finnbourse.org/internal/session"
)

type createActorRequest struct {
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateActorRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Status   *string `json:"status"`
}

// requireActorAdmin gates actor administration on the acteurs page.
func (a *API) requireActorAdmin(w http.ResponseWriter, r *http.Request, mutating bool) (session.Actor, bool) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return session.Actor{}, false
	}
	if mutating {
		if !a.policy.CanModify(actor.Role, policy.PageActeurs) {
			writeError(w, r, http.StatusForbidden, "role cannot administer actors")
			return session.Actor{}, false
		}
	} else if !a.policy.CanView(actor.Role, policy.PageActeurs) {
		writeError(w, r, http.StatusForbidden, "role cannot view actors")
		return session.Actor{}, false
	}
	return actor, true
}

func (a *API) createActor(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActorAdmin(w, r, true); !ok {
		return
	}
	var req createActorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.actors.Create(r.Context(), actors.Kind(req.Kind), req.Code, req.Name, req.Email, req.Password)
	if err != nil {
		handleActorError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "actors.create", map[string]any{
		"actor_record_id": rec.ID,
		"kind":            string(rec.Kind),
		"code":            rec.Code,
	})
	w.Header().Set("Location", "/v1/actors/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) listActors(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActorAdmin(w, r, false); !ok {
		return
	}
	kind := actors.Kind(r.URL.Query().Get("kind"))
	recs, err := a.actors.List(r.Context(), kind)
	if err != nil {
		handleActorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

func (a *API) getActor(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActorAdmin(w, r, false); !ok {
		return
	}
	rec, err := a.actors.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleActorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) updateActor(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActorAdmin(w, r, true); !ok {
		return
	}
	var req updateActorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.actors.Apply(r.Context(), chi.URLParam(r, "id"), actors.Update{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Status:   req.Status,
	})
	if err != nil {
		handleActorError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "actors.update", map[string]any{
		"actor_record_id": rec.ID,
	})
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) deleteActor(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireActorAdmin(w, r, true); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.actors.Delete(r.Context(), id); err != nil {
		handleActorError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "actors.delete", map[string]any{
		"actor_record_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleActorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, actors.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, actors.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, actors.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "actor operation failed")
	}
}
