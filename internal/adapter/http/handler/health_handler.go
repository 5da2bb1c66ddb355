package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finguard-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type dependencyReport struct {
	ports.DependencyHealth
	LatencyMS int64 `json:"latency_ms"`
}

// HealthCheck handles GET /health. Dependencies are checked in parallel under
// one deadline; any failed check reports the ledger as degraded with 503.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		results := checkAll(ctx, checkers)

		status, code := ports.HealthStatusUp, http.StatusOK
		deps := make(map[string]dependencyReport, len(results))
		for name, res := range results {
			if res.Status != ports.HealthStatusUp {
				status, code = "degraded", http.StatusServiceUnavailable
			}
			deps[name] = dependencyReport{DependencyHealth: res, LatencyMS: res.Latency.Milliseconds()}
		}

		c.JSON(code, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}

func checkAll(ctx context.Context, checkers []ports.HealthChecker) map[string]ports.DependencyHealth {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]ports.DependencyHealth, len(checkers))
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(hc ports.HealthChecker) {
			defer wg.Done()
			start := time.Now()
			res := ports.DependencyHealth{Status: ports.HealthStatusUp}
			if err := hc.Ping(ctx); err != nil {
				res = ports.DependencyHealth{Status: ports.HealthStatusDown, Error: err.Error()}
			}
			res.Latency = time.Since(start)

			mu.Lock()
			results[hc.Name()] = res
			mu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results
}
