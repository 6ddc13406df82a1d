package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Journal stores successful step results keyed by run id and step name.
type Journal interface {
	// Load returns the stored result and whether one exists.
	Load(ctx context.Context, runID, step string) ([]byte, bool, error)
	Save(ctx context.Context, runID, step string, result []byte) error
}

// DefaultJournalTTL bounds how long a run's results stay replayable.
const DefaultJournalTTL = 24 * time.Hour

type memoryRun struct {
	steps     map[string][]byte
	expiresAt time.Time
}

// MemoryJournal keeps one entry per run, expiring it ttl after its last
// write. Expired runs are dropped by Save, at most once per sweep interval.
type MemoryJournal struct {
	mu        sync.Mutex
	runs      map[string]*memoryRun
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryJournal returns an empty journal. A non-positive ttl means
// DefaultJournalTTL.
func NewMemoryJournal(ttl time.Duration) *MemoryJournal {
	if ttl <= 0 {
		ttl = DefaultJournalTTL
	}
	return &MemoryJournal{runs: make(map[string]*memoryRun), ttl: ttl, now: time.Now}
}

func (j *MemoryJournal) Load(_ context.Context, runID, step string) ([]byte, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	run, ok := j.runs[runID]
	if !ok || !j.now().Before(run.expiresAt) {
		return nil, false, nil
	}
	v, ok := run.steps[step]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (j *MemoryJournal) Save(_ context.Context, runID, step string, result []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	j.sweep(now)
	run, ok := j.runs[runID]
	if !ok {
		run = &memoryRun{steps: make(map[string][]byte)}
		j.runs[runID] = run
	}
	run.steps[step] = append([]byte(nil), result...)
	run.expiresAt = now.Add(j.ttl)
	return nil
}

// Len reports how many runs are held, expired ones included until the next
// sweep.
func (j *MemoryJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs)
}

func (j *MemoryJournal) sweep(now time.Time) {
	if now.Before(j.nextSweep) {
		return
	}
	j.nextSweep = now.Add(min(j.ttl, time.Minute))
	for id, run := range j.runs {
		if !now.Before(run.expiresAt) {
			delete(j.runs, id)
		}
	}
}

// RedisJournal keeps one hash per run, field per step, so results survive a
// restart and are shared by every consumer.
type RedisJournal struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisJournal stores runs under "<prefix>:<runID>". A positive ttl
// expires the whole run after its last write.
func NewRedisJournal(client *redis.Client, prefix string, ttl time.Duration) *RedisJournal {
	if prefix == "" {
		prefix = "triage:journal"
	}
	return &RedisJournal{client: client, prefix: prefix, ttl: ttl}
}

func (j *RedisJournal) key(runID string) string {
	return j.prefix + ":" + runID
}

func (j *RedisJournal) Load(ctx context.Context, runID, step string) ([]byte, bool, error) {
	v, err := j.client.HGet(ctx, j.key(runID), step).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("journal load %s/%s: %w", runID, step, err)
	}
	return v, true, nil
}

func (j *RedisJournal) Save(ctx context.Context, runID, step string, result []byte) error {
	key := j.key(runID)
	pipe := j.client.TxPipeline()
	pipe.HSet(ctx, key, step, result)
	if j.ttl > 0 {
		pipe.Expire(ctx, key, j.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal save %s/%s: %w", runID, step, err)
	}
	return nil
}
