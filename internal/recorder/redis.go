package recorder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sdsim/internal/shared"
)

// DefaultLatestTTL is how long a session's last snapshot survives in Redis
// after its final update.
const DefaultLatestTTL = 24 * time.Hour

// RedisProgressRepo keeps the latest progress snapshot of each session in a
// Redis hash.
type RedisProgressRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProgressRepo connects to redisURL (redis://host:port/db).
func NewRedisProgressRepo(redisURL string, ttl time.Duration) (*RedisProgressRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisProgressRepoWithClient(rdb, ttl), nil
}

func NewRedisProgressRepoWithClient(client *redis.Client, ttl time.Duration) *RedisProgressRepo {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &RedisProgressRepo{client: client, ttl: ttl}
}

func latestKey(sessionID string) string {
	return "telemetry:session:" + sessionID
}

// Save overwrites the session's hash and refreshes its TTL.
func (r *RedisProgressRepo) Save(ctx context.Context, s shared.ProgressSnapshot) error {
	if r == nil || r.client == nil {
		return nil
	}
	key := latestKey(s.SessionID)
	fields := map[string]any{
		"session_id":  s.SessionID,
		"lap":         s.Lap,
		"sector":      s.Sector,
		"max_sector":  s.MaxSector,
		"cte":         s.CTE,
		"done":        s.Done,
		"has_path":    s.HasPath,
		"speed":       s.Speed,
		"pos_x":       s.Position.X,
		"pos_y":       s.Position.Y,
		"pos_z":       s.Position.Z,
		"hit":         s.Hit,
		"sim_time":    s.SimTime,
		"recorded_at": s.RecordedAt.Format(time.RFC3339Nano),
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot, or nil when there is none.
func (r *RedisProgressRepo) Latest(ctx context.Context, sessionID string) (*shared.ProgressSnapshot, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	fields, err := r.client.HGetAll(ctx, latestKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseSnapshot(fields), nil
}

// parseSnapshot is lenient: a field that does not parse keeps its zero value.
func parseSnapshot(fields map[string]string) *shared.ProgressSnapshot {
	s := &shared.ProgressSnapshot{
		SessionID: fields["session_id"],
		Hit:       fields["hit"],
	}
	s.Lap, _ = strconv.Atoi(fields["lap"])
	s.Sector, _ = strconv.Atoi(fields["sector"])
	s.MaxSector, _ = strconv.Atoi(fields["max_sector"])
	s.CTE, _ = strconv.ParseFloat(fields["cte"], 64)
	s.Done = parseRedisBool(fields["done"])
	s.HasPath = parseRedisBool(fields["has_path"])
	s.Speed, _ = strconv.ParseFloat(fields["speed"], 64)
	s.Position.X, _ = strconv.ParseFloat(fields["pos_x"], 64)
	s.Position.Y, _ = strconv.ParseFloat(fields["pos_y"], 64)
	s.Position.Z, _ = strconv.ParseFloat(fields["pos_z"], 64)
	s.SimTime, _ = strconv.ParseFloat(fields["sim_time"], 64)
	if ts, ok := fields["recorded_at"]; ok {
		s.RecordedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return s
}

// go-redis writes bools as "1"/"0"
func parseRedisBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (r *RedisProgressRepo) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
