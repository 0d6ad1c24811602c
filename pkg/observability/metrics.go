package observability

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrometheusHandler exposes the exporter registry on a gin route
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	if handler == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   http.StatusText(http.StatusServiceUnavailable),
				"message": "metrics handler not initialized",
			})
		}
	}
	return gin.WrapH(handler)
}
