package monitoring

import (
	"context"
	"time"

	"peercore/internal/core/domain"
	"peercore/internal/infrastructure/repositories/redis"

	goredis "github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *goredis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddPeerDirectoryCheck adds a health check that the cross-instance peer
// directory is reachable by resolving a sentinel id that is never
// registered (ErrPeerNotFound is the expected, healthy outcome).
func (h *HealthChecker) AddPeerDirectoryCheck(dir *redis.PeerDirectory, interval, timeout time.Duration) {
	h.AddCheck("peer-directory", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		_, err := dir.Resolve(ctx, domain.ID(0))
		if err != nil && err != domain.ErrPeerNotFound {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddReadinessCheck creates a readiness check that verifies all dependencies
func (h *HealthChecker) AddReadinessCheck(
	redisClient *goredis.Client,
	dir *redis.PeerDirectory,
	interval, timeout time.Duration,
) {
	h.AddCheck("readiness", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return false, err
			}
		}

		if dir != nil {
			if _, err := dir.Resolve(ctx, domain.ID(0)); err != nil && err != domain.ErrPeerNotFound {
				return false, err
			}
		}

		return true, nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}

