package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultRedisPort = "6379"

var (
	redisOnce sync.Once
	redisURL  string
	redisErr  error
)

// RedisURL returns REDIS_URL when set. Otherwise it starts a throwaway Redis
// container shared by the whole test binary. Tests are skipped when neither
// is available.
func RedisURL(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}

	redisOnce.Do(func() {
		redisURL, redisErr = startRedis(context.Background())
	})
	if redisErr != nil {
		t.Skipf("redis unavailable: %v", redisErr)
	}
	return redisURL
}

func startRedis(ctx context.Context) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{defaultRedisPort + "/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, defaultRedisPort)
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	return fmt.Sprintf("redis://%s:%s/0", host, mappedPort.Port()), nil
}
