package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/scribe/internal/models"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing token claims in context
	UserContextKey contextKey = "user"
	// AdminContextKey is the key for the admin account loaded by RequireAdmin
	AdminContextKey contextKey = "admin"
)

// UserRepository is the read access RequireAdmin needs
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.UserAccount, error)
}

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			// Parse Bearer token
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks the caller's current account, not the token: the role
// must still be admin or super_admin and the account must be neither suspended
// nor deleted. Services re-check inside their transaction.
func RequireAdmin(userRepo UserRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			user, err := userRepo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "user not found")
					return
				}
				logger.Error("failed to load admin account", slog.String("user_id", claims.UserID), slog.Any("error", err))
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !models.IsAdminRole(user.Role) || user.Suspended || user.IsTombstoned() {
				logger.Warn("admin access denied",
					slog.String("user_id", user.ID),
					slog.String("role", user.Role),
					slog.String("status", string(user.Status())))
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAdminFromContext returns the account loaded by RequireAdmin
func GetAdminFromContext(r *http.Request) *models.UserAccount {
	user, ok := r.Context().Value(AdminContextKey).(*models.UserAccount)
	if !ok {
		return nil
	}
	return user
}
