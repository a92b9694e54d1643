package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Source is the pull interface spec.md §6 describes: one call per
// tick returns a fresh snapshot set. Implementations are external
// collaborators; the control loop never depends on a concrete type.
type Source interface {
	Snapshots(ctx context.Context) ([]Snapshot, error)
}

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces the queue-depth lists, e.g. "queues:".
	KeyPrefix string
}

// RedisSource reads queue depth from Redis lists the way a
// Redis-backed job queue stores pending work: one list per queue,
// LLEN giving backlog depth, plus a companion "<list key>:stats" hash
// whose fields carry reserved/delayed counts, oldest-age, throughput,
// duration, failure rate, utilization and active workers, which a
// companion metrics collector is expected to maintain.
type RedisSource struct {
	client *redis.Client
	prefix string
	queues []queue.Key
}

// NewRedisSource dials Redis and returns a Source that will be polled
// for the given set of queues.
func NewRedisSource(cfg RedisConfig, queues []queue.Key) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis metrics source: %w", err)
	}

	return &RedisSource{client: client, prefix: cfg.KeyPrefix, queues: queues}, nil
}

// Close releases the underlying Redis connection.
func (r *RedisSource) Close() error {
	return r.client.Close()
}

// Snapshots implements Source by reading each queue's list length and
// stats-hash fields, one Redis command per value (no pipelining).
func (r *RedisSource) Snapshots(ctx context.Context) ([]Snapshot, error) {
	now := time.Now()
	out := make([]Snapshot, 0, len(r.queues))

	for _, key := range r.queues {
		pending, err := r.client.LLen(ctx, r.listKey(key)).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("read pending depth for %s: %w", key, err)
		}

		reserved := r.intField(ctx, key, "reserved")
		delayed := r.intField(ctx, key, "delayed")
		oldestAgeSeconds := r.intField(ctx, key, "oldest_age_seconds")
		activeWorkers := r.intField(ctx, key, "active_workers")
		throughput := r.floatField(ctx, key, "throughput_per_min")
		avgDuration := r.floatField(ctx, key, "avg_duration_seconds")
		failureRate := r.floatField(ctx, key, "failure_rate_pct")
		workerUtil := r.floatField(ctx, key, "worker_util_pct")

		out = append(out, Snapshot{
			Key:              key,
			Pending:          int(pending),
			Reserved:         reserved,
			Delayed:          delayed,
			OldestPendingAge: time.Duration(oldestAgeSeconds) * time.Second,
			ThroughputPerMin: throughput,
			AvgJobDuration:   time.Duration(avgDuration * float64(time.Second)),
			FailureRatePct:   failureRate,
			WorkerUtilPct:    workerUtil,
			ActiveWorkers:    activeWorkers,
			Timestamp:        now,
		})
	}

	return out, nil
}

func (r *RedisSource) listKey(key queue.Key) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, key.Connection, key.Queue)
}

func (r *RedisSource) statsKey(key queue.Key) string {
	return fmt.Sprintf("%s%s:%s:stats", r.prefix, key.Connection, key.Queue)
}

func (r *RedisSource) intField(ctx context.Context, key queue.Key, field string) int {
	v, err := r.client.HGet(ctx, r.statsKey(key), field).Result()
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (r *RedisSource) floatField(ctx context.Context, key queue.Key, field string) float64 {
	v, err := r.client.HGet(ctx, r.statsKey(key), field).Result()
	if err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
