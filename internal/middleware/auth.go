package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/cleansport/logbook/internal/identity"
)

// TokenValidator validates a session token and resolves its user.
// Satisfied by identity.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (identity.User, error)
}

// Auth resolves the Authorization bearer token, if present, into an
// authenticated user on the request context. Requests without a token
// pass through unauthenticated; handlers that need an actor reject them
// downstream. An invalid token is rejected immediately with 401.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, "invalid_authorization_header", "Authorization header must be of the form 'Bearer <token>'")
				return
			}

			user, err := validator.ValidateToken(token)
			if err != nil {
				writeAuthError(w, "invalid_token", "session token is invalid or expired")
				return
			}

			ctx := identity.WithUser(r.Context(), user)
			ctx = SetUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"error":"`+code+`","message":"`+message+`"}`)
}
