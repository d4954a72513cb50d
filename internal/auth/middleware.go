package auth

import (
	"net/http"
	"strings"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/shared"
)

// Middleware authenticates requests via the Authorization header
// ("Bearer <key>") or the X-API-Key header, and stores the resolved
// actor in the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing API key")
				return
			}
			actor, err := svc.Verify(r.Context(), token)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects requests whose actor lacks the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || !actor.HasRole(role) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, found := strings.CutPrefix(header, "Bearer "); found {
			return token
		}
	}
	return r.Header.Get("X-API-Key")
}
