package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/model"
	"github.com/identra/server/internal/repo"
)

type contextKey string

const userKey contextKey = "user"

// RequireAuth validates the Bearer access token, loads the user, and
// attaches it to the request context. Requests without a valid token get 401.
func RequireAuth(svc *auth.AuthService, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(r, svc, users)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

// OptionalAuth attaches the user when a valid token is presented but lets
// unauthenticated requests through. Logout uses it: logging out without a
// token is still a success.
func OptionalAuth(svc *auth.AuthService, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := authenticate(r, svc, users); ok {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, svc *auth.AuthService, users repo.UserRepo) (*model.User, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, false
	}

	claims, err := svc.VerifyAccess(r.Context(), tokenString)
	if err != nil {
		return nil, false
	}
	user, err := users.GetByID(r.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		return nil, false
	}
	return &user, true
}

// GetUser returns the user attached to the request context.
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
