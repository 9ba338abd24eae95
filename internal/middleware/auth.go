package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/services"
	"github.com/thereayou/esim-portal/pkg/auth"
	"go.uber.org/zap"
)

const (
	UserIDKey   = "userID"
	IdentityKey = "identity"
	TokenKey    = "token"
)

// AuthMiddleware проверяет JWT токен из заголовка Authorization
func AuthMiddleware(authn *services.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return authenticate(authn, logger, auth.BearerToken)
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не может
// выставить заголовок при апгрейде, поэтому токен берётся и из ?token=
func WSAuthMiddleware(authn *services.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return authenticate(authn, logger, auth.HandshakeToken)
}

func authenticate(authn *services.Authenticator, logger *zap.Logger, extract func(*http.Request) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extract(c.Request)
		if err != nil {
			abort(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, services.ErrAuth) {
				logger.Error("Authentication lookup failed", zap.Error(err))
				abort(c, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			abort(c, http.StatusUnauthorized, authMessage(err))
			return
		}

		c.Set(TokenKey, token)
		c.Set(UserIDKey, identity.ActorID)
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrRevokedCredential):
		return "token is blacklisted"
	case errors.Is(err, services.ErrUnknownActor):
		return "user not found"
	default:
		return "invalid token"
	}
}

// AdminOnly пропускает только администраторов
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok || !identity.IsAdmin() {
			abort(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

func GetIdentity(c *gin.Context) (*services.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*services.Identity)
	return identity, ok
}

func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
