package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionContextKey = "session_id"

// SessionMiddleware makes sure every browser carries a session cookie. The
// cookie only identifies the session; nothing is stored in it.
func SessionMiddleware(cookieName string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, id, 0, "/", "", secure, true)
		}

		c.Set(sessionContextKey, id)
		c.Next()
	}
}

// SessionID returns the session bound by SessionMiddleware, or "".
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
