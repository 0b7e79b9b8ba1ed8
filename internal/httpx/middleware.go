package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/user"
)

const (
	CtxUserID    = "userID"
	CtxUserEmail = "userEmail"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid := c.GetString("rid")
		log.Info().
			Str("rid", rid).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Msg("http request")
	}
}

// Auth resolves the bearer session token and stores the caller identity on
// the context. The caller id never comes from the request body.
func Auth(sessions user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		s, err := sessions.GetSession(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(CtxUserID, s.UserID)
		c.Set(CtxUserEmail, s.Email)
		c.Next()
	}
}
