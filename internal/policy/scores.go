package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ScoreKind identifica el tipo de identificador con reputación.
type ScoreKind string

const (
	ScoreIP       ScoreKind = "ip"
	ScoreUsername ScoreKind = "username"
)

// ScoreSource guarda scores de reputación. Un identificador sin historia vale 0.
type ScoreSource interface {
	Score(ctx context.Context, kind ScoreKind, id string) (int, error)
	Adjust(ctx context.Context, kind ScoreKind, id string, delta int) error
}

func scoreKey(kind ScoreKind, id string) string {
	return "reputation:" + string(kind) + ":" + id
}

// MemoryScores implementa ScoreSource sobre go-cache. Los scores decaen a 0 tras ttl sin actividad.
type MemoryScores struct {
	c   *gocache.Cache
	ttl time.Duration
}

func NewMemoryScores(ttl time.Duration) *MemoryScores {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryScores{c: gocache.New(ttl, 10*time.Minute), ttl: ttl}
}

func (m *MemoryScores) Score(_ context.Context, kind ScoreKind, id string) (int, error) {
	v, ok := m.c.Get(scoreKey(kind, id))
	if !ok {
		return 0, nil
	}
	n, _ := v.(int)
	return n, nil
}

func (m *MemoryScores) Adjust(_ context.Context, kind ScoreKind, id string, delta int) error {
	k := scoreKey(kind, id)
	// Add falla si existe; en ese caso incrementamos.
	if err := m.c.Add(k, delta, m.ttl); err == nil {
		return nil
	}
	if _, err := m.c.IncrementInt(k, delta); err != nil {
		// expiró entre Add e Increment
		m.c.Set(k, delta, m.ttl)
	}
	return nil
}

// RedisScores implementa ScoreSource sobre Redis (INCRBY + EXPIRE).
type RedisScores struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisScores(rdb *redis.Client, prefix string, ttl time.Duration) *RedisScores {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisScores{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisScores) key(kind ScoreKind, id string) string {
	if r.prefix == "" {
		return scoreKey(kind, id)
	}
	return r.prefix + ":" + scoreKey(kind, id)
}

func (r *RedisScores) Score(ctx context.Context, kind ScoreKind, id string) (int, error) {
	s, err := r.rdb.Get(ctx, r.key(kind, id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: %w", err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("reputation: corrupt score %q: %w", s, err)
	}
	return n, nil
}

func (r *RedisScores) Adjust(ctx context.Context, kind ScoreKind, id string, delta int) error {
	k := r.key(kind, id)
	pipe := r.rdb.TxPipeline()
	pipe.IncrBy(ctx, k, int64(delta))
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reputation: %w", err)
	}
	return nil
}
