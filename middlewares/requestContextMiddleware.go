package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/weaving_backend/utils"
)

const (
	CorrelationIdHeader = "x-correlation-id"
	UserNameHeader      = "x-user-name"
)

// CorrelationMiddleware generates a correlation id once per request (or takes the caller's)
// and attaches it to the request context and the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(CorrelationIdHeader))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(CorrelationIdHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// UserNameMiddleware records the operator name set by the fronting proxy.
// Requests without it are attributed to "System".
func UserNameMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(UserNameHeader))
		if name == "" {
			name = "System"
		}
		c.Request = c.Request.WithContext(utils.SetUserNameInContext(c.Request.Context(), name))
		c.Next()
	}
}
