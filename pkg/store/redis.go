package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

const redisKeyPrefix = "aci:trust:"

// Redis persists trust records as JSON values under aci:trust:<entity_id>.
// Queries load all records and filter in memory; the indexed providers are
// the better fit when filtered listing dominates the workload.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a provider backed by a Redis server.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewRedisWithClient wraps an existing client, e.g. one shared with other
// subsystems.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(entityID string) string {
	return redisKeyPrefix + entityID
}

func (r *Redis) Save(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil || rec.EntityID == "" {
		return fmt.Errorf("store: record requires an entity id")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.EntityID, err)
	}
	if err := r.client.Set(ctx, redisKey(rec.EntityID), blob, 0).Err(); err != nil {
		return fmt.Errorf("store: save record %s: %w", rec.EntityID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, entityID string) (*trust.TrustRecord, error) {
	blob, err := r.client.Get(ctx, redisKey(entityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
		}
		return nil, fmt.Errorf("store: get record %s: %w", entityID, err)
	}
	return decodeRecord(entityID, blob)
}

func (r *Redis) Delete(ctx context.Context, entityID string) error {
	n, err := r.client.Del(ctx, redisKey(entityID)).Result()
	if err != nil {
		return fmt.Errorf("store: delete record %s: %w", entityID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	return nil
}

// keys scans for all record keys without blocking the server.
func (r *Redis) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: scan records: %w", err)
	}
	return keys, nil
}

func (r *Redis) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(redisKeyPrefix):])
	}
	return ids, nil
}

func (r *Redis) Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*trust.TrustRecord, 0, len(keys))
	for _, key := range keys {
		blob, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("store: get %s: %w", key, err)
		}
		rec, err := decodeRecord(key[len(redisKeyPrefix):], blob)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return filter.apply(records)
}

func (r *Redis) Exists(ctx context.Context, entityID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(entityID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", entityID, err)
	}
	return n > 0, nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
