package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

const driftKey = "relations:drift"

// resolveScript deletes the pair's entry only while it still holds the value
// the caller read. It returns -1 when the entry is already gone.
const resolveScript = `
local current = redis.call("HGET", KEYS[1], ARGV[1])
if not current then
	return -1
end
if current == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`

// ErrDriftSuperseded is returned by Resolve when a newer entry was recorded
// for the pair after it was read.
var ErrDriftSuperseded = errors.New("drift entry superseded")

type driftClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisDriftLedger stores drift entries in a single hash keyed by pair. A
// newer entry for the same pair replaces the older one.
type RedisDriftLedger struct {
	redis driftClient
}

func NewRedisDriftLedger(client driftClient) *RedisDriftLedger {
	return &RedisDriftLedger{redis: client}
}

func (l *RedisDriftLedger) Record(ctx context.Context, entry models.DriftEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding drift entry: %w", err)
	}
	if err := l.redis.HSet(ctx, driftKey, entry.Key(), string(data)).Err(); err != nil {
		return fmt.Errorf("recording drift: %w", err)
	}
	return nil
}

// Pending returns every unresolved entry, oldest first. Entries that cannot
// be decoded are skipped and logged.
func (l *RedisDriftLedger) Pending(ctx context.Context) ([]models.DriftEntry, error) {
	raw, err := l.redis.HGetAll(ctx, driftKey).Result()
	if err != nil {
		return nil, fmt.Errorf("loading drift entries: %w", err)
	}

	entries := make([]models.DriftEntry, 0, len(raw))
	for field, value := range raw {
		var entry models.DriftEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			logging.Warn("Skipping unreadable drift entry", map[string]interface{}{
				"field": field,
				"error": err.Error(),
			})
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DetectedAt.Equal(entries[j].DetectedAt) {
			return entries[i].Key() < entries[j].Key()
		}
		return entries[i].DetectedAt.Before(entries[j].DetectedAt)
	})
	return entries, nil
}

func (l *RedisDriftLedger) Resolve(ctx context.Context, entry models.DriftEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding drift entry: %w", err)
	}
	deleted, err := l.redis.Eval(ctx, resolveScript, []string{driftKey}, entry.Key(), string(data)).Int64()
	if err != nil {
		return fmt.Errorf("resolving drift: %w", err)
	}
	if deleted == 0 {
		return ErrDriftSuperseded
	}
	return nil
}
