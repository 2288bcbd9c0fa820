package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"sampleflow/pkg/domain"
)

// Authenticator resolves a bearer token to the account it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// MessageAdminRequired is returned to authenticated non-admins on admin routes.
const MessageAdminRequired = "Admin account required"

// RequireUser rejects requests without a valid bearer token and stores the
// authenticated user in the request context.
func RequireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteMessage(w, http.StatusUnauthorized, "Missing Authorization Header")
				return
			}
			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				WriteMessage(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			WriteMessage(w, http.StatusUnauthorized, MessageAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(domain.User)
	return user, ok
}

// WithUser returns a context carrying user, as RequireUser would.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WriteMessage writes {"message": message} with status.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
