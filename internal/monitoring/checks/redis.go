package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/authcore/internal/monitoring"
)

const defaultRedisTimeout = 2 * time.Second

// RedisPinger is implemented by cache.RedisStore.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the rate-limit counter store. The auth limiter fails open, so an
// unreachable Redis degrades the service without taking it out of rotation.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	timeout = chooseTimeout(timeout, defaultRedisTimeout)

	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		if !enabled {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "redis unreachable at startup; counters use the database"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		err := client.Ping(probeCtx)
		elapsed := time.Since(start)
		if err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("ping failed, rate limiting fails open: %v", err),
				Duration: elapsed,
			}
		}

		result := monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: elapsed}
		if elapsed > timeout/2 {
			result.Status = monitoring.StatusDegraded
			result.Details = fmt.Sprintf("slow ping: %s", elapsed.Round(time.Millisecond))
		}
		return result
	})
}
