package helpers

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/hbomb79/Phonograph/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User         = "postgres"
	Password     = "postgres"
	MasterDBName = "PHONOGRAPH_DB"

	postgresPort nat.Port = "5432/tcp"
)

// DatabaseManager spawns a disposable Postgres container and returns a
// database manager connected (and migrated) against it. The container
// is terminated when the test completes. Tests using this helper are
// skipped in -short mode.
func DatabaseManager(t *testing.T) database.Manager {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(MasterDBName),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(15*time.Second)),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.Tmpfs = map[string]string{"/var/lib/postgresql/data": "rw"}
		}),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}
	t.Cleanup(func() {
		t.Log("Tearing down Postgres container...")
		if err := postgresC.Terminate(ctx); err != nil {
			t.Logf("WARNING: failed to stop Postgres container: %s", err)
		}
	})

	host, err := postgresC.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres container host: %s", err)
	}
	port, err := postgresC.MappedPort(ctx, postgresPort)
	if err != nil {
		t.Fatalf("failed to get postgres container port: %s", err)
	}

	db := database.New()
	if err := db.Connect(ctx, database.Config{
		Enabled:  true,
		User:     User,
		Password: Password,
		Name:     MasterDBName,
		Host:     host,
		Port:     port.Port(),
	}); err != nil {
		t.Fatalf("failed to connect to postgres container: %s", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
