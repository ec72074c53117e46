//go:build integration

// Package testutil starts real backing services for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort = nat.Port("6379/tcp")

// StartRedis runs a throwaway Redis container and returns connection
// options for it. The container is terminated when the test ends.
func StartRedis(t *testing.T) *redis.Options {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		// No persistence: entries and counters only live for the test
		Cmd:        []string{"redis-server", "--save", "", "--appendonly", "no"},
		WaitingFor: wait.ForLog("Ready to accept connections"),
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Tmpfs = map[string]string{"/data": "rw"}
		},
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, redisPort)
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}
	return opts
}
