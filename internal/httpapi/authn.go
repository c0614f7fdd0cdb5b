package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"folio.org/internal/auth"
	"folio.org/internal/workflow"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth resolves the bearer token into a workflow actor. Requests to
// protected paths without a valid token never reach the router.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.signer == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="folio"`)
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication is not configured")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="folio"`)
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		claims, err := a.signer.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="folio", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		ctx := auth.ContextWithActor(r.Context(), claims.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actor returns the authenticated actor or answers 401.
func (a *API) actor(w http.ResponseWriter, r *http.Request) (workflow.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="folio"`)
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "missing actor")
		return workflow.Actor{}, false
	}
	return actor, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
