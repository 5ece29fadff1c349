package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/payments-engine/internal/model"
)

// RedisStore writes snapshots as Redis hashes:
//
//	{prefix}:run:{id}                  hash  source, started_at, finished_at, records
//	{prefix}:run:{id}:clients          set   client ids
//	{prefix}:run:{id}:client:{client}  hash  available, held, total, locked
//	{prefix}:latest                    string id of the most recent run
//
// All keys of a run are written in one MULTI/EXEC.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A ttl of zero keeps keys
// forever.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, run model.Run, balances []model.Balance) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		runKey := s.runKey(run.ID)
		pipe.HSet(ctx, runKey, map[string]any{
			"source":      run.Source,
			"started_at":  run.StartedAt.UTC().Format(time.RFC3339Nano),
			"finished_at": run.FinishedAt.UTC().Format(time.RFC3339Nano),
			"records":     run.Records,
		})
		s.expire(ctx, pipe, runKey)

		if len(balances) > 0 {
			members := make([]any, 0, len(balances))
			for _, b := range balances {
				members = append(members, strconv.Itoa(int(b.Client)))

				clientKey := s.clientKey(run.ID, b.Client)
				pipe.HSet(ctx, clientKey, map[string]any{
					"available": b.Available.String(),
					"held":      b.Held.String(),
					"total":     b.Total.String(),
					"locked":    strconv.FormatBool(b.Locked),
				})
				s.expire(ctx, pipe, clientKey)
			}
			pipe.SAdd(ctx, s.clientsKey(run.ID), members...)
			s.expire(ctx, pipe, s.clientsKey(run.ID))
		}

		pipe.Set(ctx, s.latestKey(), run.ID, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStore) runKey(id string) string     { return fmt.Sprintf("%s:run:%s", s.prefix, id) }
func (s *RedisStore) clientsKey(id string) string { return fmt.Sprintf("%s:run:%s:clients", s.prefix, id) }
func (s *RedisStore) latestKey() string           { return fmt.Sprintf("%s:latest", s.prefix) }

func (s *RedisStore) clientKey(id string, client model.ClientID) string {
	return fmt.Sprintf("%s:run:%s:client:%d", s.prefix, id, client)
}
