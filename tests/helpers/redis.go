package helpers

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultRedisImage is the image used for lock integration tests.
	DefaultRedisImage = "redis:7-alpine"
	// DefaultRedisStartupTimeout is the default timeout for Redis to start.
	DefaultRedisStartupTimeout = 30 * time.Second
)

// RedisContainer manages a test Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	Address   string
}

// StartRedis starts a Redis container for testing.
// It returns a container instance that should be stopped with Stop().
func StartRedis(ctx context.Context) (*RedisContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        DefaultRedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(DefaultRedisStartupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &RedisContainer{
		Container: container,
		Address:   net.JoinHostPort(host, mappedPort.Port()),
	}, nil
}

// Stop terminates the container.
func (r *RedisContainer) Stop(ctx context.Context) error {
	if r == nil || r.Container == nil {
		return nil
	}
	return r.Container.Terminate(ctx)
}
