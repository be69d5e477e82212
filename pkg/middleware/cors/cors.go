package cors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/famcare-id/famcare-api/pkg/config"
)

// New builds the CORS middleware from configuration. An empty origin
// list allows every origin, which is the development default; the
// allowed header and method lists come from config as well so API
// consumers can be adjusted without a rebuild.
func New(cfg config.CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[normalize(origin)] = struct{}{}
	}

	headers := strings.Join(cfg.AllowedHeaders, ", ")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	maxAge := fmt.Sprintf("%d", int(cfg.MaxAge.Seconds()))

	return func(c *gin.Context) {
		h := c.Writer.Header()

		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
			if len(allowed) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		default:
			if _, ok := allowed[normalize(origin)]; ok || len(allowed) == 0 {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// normalize makes origin comparison case and trailing-slash insensitive.
func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
