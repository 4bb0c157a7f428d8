// Package cache connects Phonograph to the Redis instance used to mirror job
// and progress state. The mirror lets pollers on other replicas (or a
// restarted process) observe the state of recent jobs.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.Get("Cache")

const connectAttempts = 5

type Config struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"1h"`
	Prefix   string        `yaml:"prefix" env:"REDIS_PREFIX" env-default:"phonograph:"`
}

// Enabled returns false when no Redis address is configured, in which
// case all state is held in-process only.
func (config Config) Enabled() bool {
	return config.Addr != ""
}

// Connect opens a client to the configured Redis server, retrying the
// initial ping a few times to tolerate the server starting alongside us.
func Connect(ctx context.Context, config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	attempt := 1
	for {
		err := client.Ping(ctx).Err()
		if err == nil {
			break
		}

		if attempt >= connectAttempts {
			log.Emit(logger.ERROR, "All attempts FAILED!\n")
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
		}

		log.Emit(logger.WARNING, "Attempt (%v/%v) failed... Retrying in 2s\n", attempt, connectAttempts)
		attempt++
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		}
	}

	log.Emit(logger.SUCCESS, "Redis connection to %s established\n", config.Addr)
	return client, nil
}

// Key joins the configured prefix with the parts provided.
func (config Config) Key(parts ...string) string {
	key := config.Prefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}

	return key
}
