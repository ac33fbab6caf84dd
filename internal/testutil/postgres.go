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

const (
	defaultPostgresPort = "5432"
	defaultUser         = "test"
	defaultPassword     = "test"
	defaultDatabase     = "testdb"
)

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// PostgresURL returns DATABASE_URL when set. Otherwise it starts a throwaway
// PostgreSQL container shared by the whole test binary. Tests are skipped
// when neither is available.
func PostgresURL(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		containerURL, containerErr = startPostgres(context.Background())
	})
	if containerErr != nil {
		t.Skipf("postgres unavailable: %v", containerErr)
	}
	return containerURL
}

// The container is left for the testcontainers reaper to remove when the
// test binary exits.
func startPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{defaultPostgresPort + "/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     defaultUser,
			"POSTGRES_PASSWORD": defaultPassword,
			"POSTGRES_DB":       defaultDatabase,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(defaultPostgresPort+"/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, defaultPostgresPort)
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		defaultUser, defaultPassword, host, mappedPort.Port(), defaultDatabase), nil
}
