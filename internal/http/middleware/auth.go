package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/rewardguard/internal/jwt"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
)

const (
	accountIDKey = "accountID"
	sessionKey   = "session"
	routeIDKey   = "routeID"
)

// SessionAuthenticator validates bearer session tokens.
type SessionAuthenticator interface {
	Authenticate(header http.Header) (jwt.Session, *pipeline.Rejection)
}

// Auth validates the Authorization header for session-only routes.
type Auth struct {
	Sessions SessionAuthenticator
}

// ValidateSession ensures the request carries a valid session token.
func (m *Auth) ValidateSession(c *gin.Context) {
	session, rej := m.Sessions.Authenticate(c.Request.Header)
	if rej != nil {
		c.AbortWithStatusJSON(rej.Status, rej.Body())
		return
	}
	c.Set(sessionKey, session)
	SetAccountID(c, session.AccountID)
	c.Next()
}

// GetSession returns the session attached by ValidateSession.
func GetSession(c *gin.Context) (jwt.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return jwt.Session{}, false
	}
	session, ok := value.(jwt.Session)
	return session, ok
}

// SetAccountID records the authenticated account for logging.
func SetAccountID(c *gin.Context, accountID int64) {
	c.Set(accountIDKey, accountID)
}

// GetAccountID returns the authenticated account, if any.
func GetAccountID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(accountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

// Route tags the request with its route identity.
func Route(routeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(routeIDKey, routeID)
		c.Next()
	}
}

// GetRouteID returns the route identity set by Route.
func GetRouteID(c *gin.Context) (string, bool) {
	value, ok := c.Get(routeIDKey)
	if !ok {
		return "", false
	}
	id, ok := value.(string)
	return id, ok
}
