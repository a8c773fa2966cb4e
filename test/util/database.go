// Package util provides test utilities and helper functions for database testing.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerParams holds the connection parameters for the shared test
// PostgreSQL instance (either a local testcontainer or a CI service
// container), independent of any one test's database name.
type ContainerParams struct {
	Host     string
	Port     int
	User     string
	Password string
}

var (
	sharedParams  ContainerParams
	containerOnce sync.Once
	containerErr  error
)

// GetSharedContainer returns connection parameters for a PostgreSQL instance
// shared across every test in the package. In CI, it parses CI_DATABASE_URL.
// In local dev, it starts a single testcontainer the first time it's called
// and reuses it for every subsequent test.
func GetSharedContainer(t *testing.T) ContainerParams {
	t.Helper()

	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		containerOnce.Do(func() {
			params, err := parseConnString(ciURL)
			if err != nil {
				containerErr = fmt.Errorf("failed to parse CI_DATABASE_URL: %w", err)
				return
			}
			sharedParams = params
		})
		require.NoError(t, containerErr)
		return sharedParams
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer for all tests in this package")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get container host: %w", err)
			return
		}
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("failed to get container port: %w", err)
			return
		}

		sharedParams = ContainerParams{Host: host, Port: port.Int(), User: "test", Password: "test"}
		t.Logf("Shared container ready: %s:%d", sharedParams.Host, sharedParams.Port)
	})

	require.NoError(t, containerErr, "failed to set up shared test container")
	return sharedParams
}

// parseConnString extracts host/port/user/password from a postgres:// URL,
// used only for the CI_DATABASE_URL escape hatch.
func parseConnString(raw string) (ContainerParams, error) {
	rest := strings.TrimPrefix(raw, "postgres://")
	rest = strings.TrimPrefix(rest, "postgresql://")
	authAndHost := strings.SplitN(rest, "@", 2)
	if len(authAndHost) != 2 {
		return ContainerParams{}, fmt.Errorf("malformed connection string")
	}
	userPass := strings.SplitN(authAndHost[0], ":", 2)
	if len(userPass) != 2 {
		return ContainerParams{}, fmt.Errorf("malformed credentials")
	}
	hostPortAndRest := strings.SplitN(authAndHost[1], "/", 2)
	hostPort := strings.SplitN(hostPortAndRest[0], ":", 2)
	if len(hostPort) != 2 {
		return ContainerParams{}, fmt.Errorf("malformed host:port")
	}
	var port int
	if _, err := fmt.Sscanf(hostPort[1], "%d", &port); err != nil {
		return ContainerParams{}, fmt.Errorf("malformed port: %w", err)
	}
	return ContainerParams{Host: hostPort[0], Port: port, User: userPass[0], Password: userPass[1]}, nil
}

// GenerateDatabaseName creates a unique, PostgreSQL-safe database name for
// the test. Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	t.Helper()

	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}

	randomBytes := make([]byte, 4)
	_, err := rand.Read(randomBytes)
	if err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}

	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(randomBytes))
}
