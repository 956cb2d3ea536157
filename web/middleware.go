package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/shop"
)

const (
	callerKey       = "shop.caller"
	requestIDHeader = "X-Request-ID"
)

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "request",
			slog.String("id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// identify resolves the bearer token into the request's caller. Requests without a token are
// anonymous; a token that does not verify is refused.
func (s *Server) identify(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if header != "" && !ok {
		s.fail(c, &shop.Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"})
		return
	}
	caller, err := s.shop.Identify(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(callerKey, caller)
	c.Next()
}

func callerOf(c *gin.Context) shop.Caller {
	if v, ok := c.Get(callerKey); ok {
		return v.(shop.Caller)
	}
	return shop.Caller{}
}
