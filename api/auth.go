/*
auth.go - Bearer-token authentication middleware

PURPOSE:
  Resolves the Authorization header against the session store and puts
  the verified user ID on the request context. Identity verification
  itself (passwords, OAuth, token minting) lives with the external
  identity provider; this layer only trusts sessions that provider (or
  the register endpoint) created.

SEE ALSO:
  - session/session.go: the store interface
  - server.go: which routes are wrapped
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ideaforge/vote-engine/session"
	"github.com/ideaforge/vote-engine/voting"
)

type contextKey string

const userIDKey contextKey = "userID"

// RequireUser rejects requests without a valid session and stores the
// resolved user ID on the context for handlers.
func RequireUser(sessions session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			userID, err := sessions.Lookup(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromContext returns the authenticated user ID set by RequireUser.
func userFromContext(ctx context.Context) (voting.UserID, bool) {
	userID, ok := ctx.Value(userIDKey).(voting.UserID)
	return userID, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
