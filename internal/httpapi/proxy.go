package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"finnbourse.org/internal/session"
)

const proxyPrefix = "/api/backend"

// proxyBackend forwards browser requests to the remote backend, preserving
// the passthrough contract: the Authorization header travels with the
// request, a backend non-2xx is answered with the same status and an
// {"error": ...} body, and network or parse failures answer 500. The REST
// token is ensured before forwarding since the proxy always talks to the
// REST surface.
func (a *API) proxyBackend(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	actor, err := a.resolver.EnsureBackendToken(r.Context(), actor)
	if err != nil {
		a.respondSessionError(w, r, err)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, proxyPrefix)
	if rest == "" {
		rest = "/"
	}
	target := strings.TrimRight(a.proxyTarget, "/") + rest
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "read request body: "+err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, strings.NewReader(string(body)))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+actor.Credentials.RESTToken)

	resp, err := a.proxyClient.Do(req)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "backend unreachable: "+err.Error())
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "read backend response: "+err.Error())
		return
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/json; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(data)
		return
	}

	// Reshape backend errors to the consistent {error} body with the
	// original status code.
	msg := backendErrorMessage(data, resp.StatusCode)
	writeJSON(w, resp.StatusCode, map[string]any{"error": msg})
}

func backendErrorMessage(data []byte, status int) string {
	var shaped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &shaped); err == nil {
		if shaped.Error != "" {
			return shaped.Error
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	return http.StatusText(status)
}
