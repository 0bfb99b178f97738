package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/services"
)

// SessionKey is where the resolved *services.Session lives on the gin
// context, next to the request context.
const SessionKey = "session"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*services.Session, error)
}

// BearerToken reads the Authorization header. Browsers cannot set headers
// on websocket upgrades, so those may pass access_token in the query.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" && strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func attach(c *gin.Context, sess *services.Session) {
	c.Request = c.Request.WithContext(services.WithSession(c.Request.Context(), sess))
	c.Set(SessionKey, sess)
}

// AuthMiddleware rejects requests without a valid operator session. The
// 401 body names the view the front-end should fall back to.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header", "view": "home"})
			return
		}
		sess, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, services.ErrUnauthenticated) {
				log.WithError(err).Error("failed to resolve session")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "view": "home"})
			return
		}
		attach(c, sess)
		c.Next()
	}
}

// OptionalAuth attaches a session when the request carries a valid token
// and lets every request through.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.Request); token != "" {
			if sess, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				attach(c, sess)
			}
		}
		c.Next()
	}
}
