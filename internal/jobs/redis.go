package jobs

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/cache"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
)

// RedisStore mirrors job records to Redis hashes, each expiring after
// the configured TTL.
type RedisStore struct {
	client *redis.Client
	config cache.Config
}

func NewRedisStore(client *redis.Client, config cache.Config) *RedisStore {
	return &RedisStore{client: client, config: config}
}

func (store *RedisStore) key(id uuid.UUID) string {
	return store.config.Key("job", id.String())
}

func (store *RedisStore) Store(ctx context.Context, job Job) error {
	key := store.key(job.ID)
	pipe := store.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"id":           job.ID.String(),
		"url":          job.URL,
		"state":        string(job.State),
		"error":        job.Error,
		"title":        job.Title,
		"filename":     job.Filename,
		"content_type": job.ContentType,
		"size_bytes":   job.SizeBytes,
		"created_at":   formatTime(job.CreatedAt),
		"started_at":   formatTime(job.StartedAt),
		"finished_at":  formatTime(job.FinishedAt),
	})
	if store.config.TTL > 0 {
		pipe.Expire(ctx, key, store.config.TTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (store *RedisStore) Load(ctx context.Context, id uuid.UUID) (Job, bool, error) {
	values, err := store.client.HGetAll(ctx, store.key(id)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(values) == 0 {
		return Job{}, false, nil
	}

	var job Job
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			emptyTimeHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &job,
	})
	if err != nil {
		return Job{}, false, err
	}
	if err := decoder.Decode(values); err != nil {
		return Job{}, false, fmt.Errorf("malformed job hash for %s: %w", id, err)
	}

	return job, true, nil
}

func (store *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return store.client.Del(ctx, store.key(id)).Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

// emptyTimeHookFunc decodes an empty string as the zero time.
func emptyTimeHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() == reflect.String && to == reflect.TypeOf(time.Time{}) && data.(string) == "" {
			return time.Time{}, nil
		}

		return data, nil
	}
}
