package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

// Auth authenticates requests with HS256 bearer tokens. The token's
// "name" claim must resolve to an active user record.
type Auth struct {
	secret []byte
	users  interfaces.UserStorage
	logger arbor.ILogger
}

// NewAuth creates the authentication middleware.
func NewAuth(secret string, users interfaces.UserStorage, logger arbor.ILogger) *Auth {
	return &Auth{secret: []byte(secret), users: users, logger: logger}
}

// Middleware validates the bearer token and attaches the user to the
// request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the bearer token to an active user. Missing or
// bad credentials are validation failures, permission checks against
// the resolved user happen in the handlers.
func (a *Auth) authenticate(r *http.Request) (*models.User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, common.NewValidationError("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.NewValidationError("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, common.NewValidationError("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, common.NewValidationError("invalid token claims")
	}
	name, _ := claims["name"].(string)
	if name == "" {
		return nil, common.NewValidationError("token has no name claim")
	}

	user, err := a.users.GetUser(r.Context(), name)
	if err != nil {
		return nil, common.NewValidationError("unknown user %q", name)
	}
	if !user.Active() {
		return nil, common.NewValidationError("user %q is revoked", name)
	}
	return user, nil
}

// UserFrom returns the authenticated user attached by the middleware.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// requireNode permits only peer platform instances and admins.
func requireNode(user *models.User) error {
	if user.Role == models.RoleNode || user.Role == models.RoleAdmin {
		return nil
	}
	return common.NewAuthorizationError("user %q may not report task status", user.Name)
}

// checkJobAccess permits the job owner, peers and admins.
func checkJobAccess(user *models.User, ownerName string) error {
	if user.Name == ownerName || user.Role == models.RoleNode || user.Role == models.RoleAdmin {
		return nil
	}
	return common.NewAuthorizationError("user %q may not manage this job", user.Name)
}
