package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID in and out of the API. An incoming
// value is reused so IDs survive across service hops.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware tags every request with an ID and echoes it on the
// response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the request ID from the Gin context, empty when the
// middleware did not run.
func Value(c *gin.Context) string {
	v, _ := c.Get(contextKey)
	id, _ := v.(string)
	return id
}
