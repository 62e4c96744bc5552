package middleware

import (
	"net/http"

	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	// SessionIDKey is the gin context key holding the session id
	SessionIDKey = "session_id"

	cookieName       = "melodia_session"
	controllerKey    = "session_controller"
	sessionMaxAgeSec = 7 * 24 * 60 * 60
)

// NewCookieStore creates the signed cookie store carrying session ids
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.MaxAge = sessionMaxAgeSec
	return store
}

// Sessions attaches the caller's session controller to the request,
// creating a session and its cookie on first contact.
func Sessions(store sessions.Store, registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		// a cookie that fails to decode yields a fresh session
		sess, err := store.Get(c.Request, cookieName)
		if err != nil {
			logger.Debug("Discarding unreadable session cookie", logger.Fields{
				"request_id": c.GetString("request_id"),
				"error":      err.Error(),
			})
		}

		known, _ := sess.Values[SessionIDKey].(string)
		id, controller := registry.Acquire(known)
		if id != known {
			sess.Values[SessionIDKey] = id
			if err := sess.Save(c.Request, c.Writer); err != nil {
				logger.Error("Failed to save session cookie", err, logger.Fields{
					"request_id": c.GetString("request_id"),
				})
			}
		}

		c.Set(SessionIDKey, id)
		c.Set(controllerKey, controller)
		if hub := sentryHub(c); hub != nil {
			hub.Scope().SetTag("session_id", id)
		}
		c.Next()
	}
}

// CurrentSession returns the controller attached by Sessions
func CurrentSession(c *gin.Context) (*session.Controller, bool) {
	v, ok := c.Get(controllerKey)
	if !ok {
		return nil, false
	}
	controller, ok := v.(*session.Controller)
	return controller, ok
}
