package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	checks map[string]Pinger
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		checks: map[string]Pinger{
			"postgres": infra.Postgres(),
			"redis":    infra.Redis(),
		},
	}
}

// check pings every dependency concurrently and returns the failures by name
func (h *HealthChecker) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = map[string]string{}
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Ping(ctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return failures
}

func (h *HealthChecker) Handler(c *gin.Context) {
	if failures := h.check(c.Request.Context()); len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "fail",
			"checks": failures,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "pass",
	})
}
