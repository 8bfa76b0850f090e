package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

type fakeDriftClient struct {
	hash    map[string]string
	setErr  error
	readErr error
	evalErr error
}

func (f *fakeDriftClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.setErr != nil {
		return redis.NewIntResult(0, f.setErr)
	}
	if f.hash == nil {
		f.hash = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.hash[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeDriftClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if f.readErr != nil {
		return redis.NewMapStringStringResult(nil, f.readErr)
	}
	out := make(map[string]string, len(f.hash))
	for k, v := range f.hash {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

// Eval runs resolveScript against the in-memory hash.
func (f *fakeDriftClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	field, want := args[0].(string), args[1].(string)
	current, ok := f.hash[field]
	switch {
	case !ok:
		return redis.NewCmdResult(int64(-1), nil)
	case current != want:
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.hash, field)
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisDriftLedger_RecordPendingResolve(t *testing.T) {
	client := &fakeDriftClient{}
	ledger := NewRedisDriftLedger(client)
	ctx := context.Background()

	older := models.DriftEntry{
		Op:            "create",
		AuthorityID:   uuid.New(),
		CounterpartID: uuid.New(),
		DetectedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := models.DriftEntry{
		Op:            "transition",
		AuthorityID:   uuid.New(),
		CounterpartID: uuid.New(),
		Status:        models.RelationStatusAccepted,
		DetectedAt:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	for _, e := range []models.DriftEntry{newer, older} {
		if err := ledger.Record(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var stored models.DriftEntry
	if err := json.Unmarshal([]byte(client.hash[older.Key()]), &stored); err != nil || stored.Op != "create" {
		t.Fatalf("expected entry stored under its pair key, got %+v (%v)", stored, err)
	}

	pending, err := ledger.Pending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 || pending[0].Key() != older.Key() || pending[1].Status != models.RelationStatusAccepted {
		t.Fatalf("expected oldest first, got %+v", pending)
	}

	if err := ledger.Resolve(ctx, older); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending, _ = ledger.Pending(ctx)
	if len(pending) != 1 || pending[0].Key() != newer.Key() {
		t.Fatalf("expected only newer entry left, got %+v", pending)
	}
}

func TestRedisDriftLedger_SameKeyOverwrites(t *testing.T) {
	client := &fakeDriftClient{}
	ledger := NewRedisDriftLedger(client)
	ctx := context.Background()
	entry := models.DriftEntry{Op: "create", AuthorityID: uuid.New(), CounterpartID: uuid.New()}

	_ = ledger.Record(ctx, entry)
	entry.Op = "transition"
	_ = ledger.Record(ctx, entry)

	if len(client.hash) != 1 {
		t.Fatalf("expected a single entry per pair, got %d", len(client.hash))
	}
}

func TestRedisDriftLedger_SkipsCorruptEntries(t *testing.T) {
	client := &fakeDriftClient{hash: map[string]string{"x:y": "{not json"}}
	pending, err := NewRedisDriftLedger(client).Pending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected corrupt entry to be skipped, got %d", len(pending))
	}
}

func TestRedisDriftLedger_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("redis down")

	if err := NewRedisDriftLedger(&fakeDriftClient{setErr: boom}).Record(ctx, models.DriftEntry{}); !errors.Is(err, boom) {
		t.Fatalf("expected record error, got %v", err)
	}
	if _, err := NewRedisDriftLedger(&fakeDriftClient{readErr: boom}).Pending(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected pending error, got %v", err)
	}
}

func TestRedisDriftLedger_ResolveKeepsNewerEntry(t *testing.T) {
	client := &fakeDriftClient{}
	ledger := NewRedisDriftLedger(client)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	read := models.DriftEntry{Op: "create", AuthorityID: a, CounterpartID: b, DetectedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	_ = ledger.Record(ctx, read)

	pending, _ := ledger.Pending(ctx)
	newer := read
	newer.Op = "transition"
	newer.DetectedAt = read.DetectedAt.Add(time.Minute)
	_ = ledger.Record(ctx, newer)

	if err := ledger.Resolve(ctx, pending[0]); !errors.Is(err, ErrDriftSuperseded) {
		t.Fatalf("expected ErrDriftSuperseded, got %v", err)
	}
	left, _ := ledger.Pending(ctx)
	if len(left) != 1 || left[0].Op != "transition" {
		t.Fatalf("expected newer entry to survive, got %+v", left)
	}

	if err := ledger.Resolve(ctx, left[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ledger.Resolve(ctx, left[0]); err != nil {
		t.Fatalf("resolving a missing entry should succeed, got %v", err)
	}
	if err := NewRedisDriftLedger(&fakeDriftClient{evalErr: errors.New("redis down")}).Resolve(ctx, read); err == nil {
		t.Fatal("expected resolve error")
	}
}
