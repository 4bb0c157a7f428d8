package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/cache"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
)

// RedisMirror stores each job's snapshot as a Redis hash which expires
// after the configured TTL.
type RedisMirror struct {
	client *redis.Client
	config cache.Config
}

func NewRedisMirror(client *redis.Client, config cache.Config) *RedisMirror {
	return &RedisMirror{client: client, config: config}
}

func (mirror *RedisMirror) key(id uuid.UUID) string {
	return mirror.config.Key("progress", id.String())
}

func (mirror *RedisMirror) Store(ctx context.Context, snapshot Snapshot) error {
	key := mirror.key(snapshot.JobID)
	pipe := mirror.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"job_id":     snapshot.JobID.String(),
		"status":     string(snapshot.Status),
		"percent":    snapshot.Percent,
		"speed":      snapshot.Speed,
		"eta":        snapshot.ETA,
		"error":      snapshot.Error,
		"updated_at": snapshot.UpdatedAt.Format(time.RFC3339Nano),
	})
	if mirror.config.TTL > 0 {
		pipe.Expire(ctx, key, mirror.config.TTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (mirror *RedisMirror) Load(ctx context.Context, id uuid.UUID) (Snapshot, bool, error) {
	values, err := mirror.client.HGetAll(ctx, mirror.key(id)).Result()
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(values) == 0 {
		return Snapshot{}, false, nil
	}

	var snapshot Snapshot
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
		WeaklyTypedInput: true,
		Result:           &snapshot,
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if err := decoder.Decode(values); err != nil {
		return Snapshot{}, false, fmt.Errorf("malformed progress hash for %s: %w", id, err)
	}

	return snapshot, true, nil
}

func (mirror *RedisMirror) Delete(ctx context.Context, id uuid.UUID) error {
	return mirror.client.Del(ctx, mirror.key(id)).Err()
}
