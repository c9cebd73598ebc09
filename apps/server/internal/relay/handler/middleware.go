package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tilsley/coverbot/pkg/logging"
)

// HeaderRequestID carries the request correlation ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID stamps every request with an ID, taken from the inbound
// X-Request-ID header or generated, echoes it on the response and stores a
// logger tagged with it in the request context.
func RequestID(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		reqLog := log.With("requestId", id, "method", c.Request.Method, "path", c.FullPath())
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), reqLog))
		c.Next()

		reqLog.Debug("request handled", "status", c.Writer.Status())
	}
}

// CORS lets browser clients on any origin call the relay and read the
// correlation and partial-failure headers.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{HeaderRequestID, HeaderCreatedBranch, HeaderFailedStep},
	})
}
