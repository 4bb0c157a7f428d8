package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/hbomb79/Phonograph/internal/cache"
	"github.com/labstack/gommon/random"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort nat.Port = "6379/tcp"

var ctx = context.Background()

// RedisClient spawns a disposable Redis container and returns a client
// connected to it, plus a cache config whose prefix is unique to the
// calling test. The container is terminated when the test completes.
// Tests using this helper are skipped in -short mode.
func RedisClient(t *testing.T) (*redis.Client, cache.Config) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7.2-alpine",
			ExposedPorts: []string{string(redisPort)},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(10 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %s", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("WARNING: failed to terminate redis container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis container host: %s", err)
	}
	port, err := container.MappedPort(ctx, redisPort)
	if err != nil {
		t.Fatalf("failed to get redis container port: %s", err)
	}

	config := cache.Config{
		Addr:   fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:    time.Minute,
		Prefix: fmt.Sprintf("test-%s:", random.String(8, random.Lowercase)),
	}
	client, err := cache.Connect(ctx, config)
	if err != nil {
		t.Fatalf("failed to connect to redis container: %s", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, config
}
