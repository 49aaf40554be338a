package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingInsert struct {
	mu      sync.Mutex
	batches [][]*DecisionEvent
	err     error
}

func (r *recordingInsert) insert(_ context.Context, events []*DecisionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]*DecisionEvent, len(events))
	copy(batch, events)
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *recordingInsert) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestClickHouseWriter_FlushOnTick(t *testing.T) {
	rec := &recordingInsert{}
	w := newClickHouseWriterWithInsert(rec.insert, zap.NewNop())
	defer w.Close()

	w.Write(&DecisionEvent{RequestID: "r1"})
	w.Write(&DecisionEvent{RequestID: "r2"})

	deadline := time.Now().Add(2 * time.Second)
	for rec.total() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.total() != 2 {
		t.Fatalf("expected 2 events flushed, got %d", rec.total())
	}
}

func TestClickHouseWriter_CloseDrains(t *testing.T) {
	rec := &recordingInsert{}
	w := newClickHouseWriterWithInsert(rec.insert, zap.NewNop())

	for i := 0; i < 50; i++ {
		w.Write(&DecisionEvent{RequestID: "r"})
	}
	w.Close()

	if rec.total() != 50 {
		t.Fatalf("expected all 50 events drained on close, got %d", rec.total())
	}
}

func TestClickHouseWriter_InsertErrorDoesNotStopLoop(t *testing.T) {
	rec := &recordingInsert{err: errors.New("clickhouse down")}
	w := newClickHouseWriterWithInsert(rec.insert, zap.NewNop())

	w.Write(&DecisionEvent{RequestID: "r1"})
	time.Sleep(3 * flushInterval)
	w.Write(&DecisionEvent{RequestID: "r2"})
	w.Close()

	if rec.total() != 2 {
		t.Fatalf("expected both events attempted, got %d", rec.total())
	}
}

func TestClickHouseWriter_WriteNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	w := newClickHouseWriterWithInsert(func(ctx context.Context, _ []*DecisionEvent) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+flushBatch+100; i++ {
			w.Write(&DecisionEvent{RequestID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked with a full buffer")
	}
	close(block)
	w.Close()
}

func TestTruncateQuery(t *testing.T) {
	if got := TruncateQuery("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	long := strings.Repeat("é", 600)
	got := TruncateQuery(long, QueryPreviewLength)
	if len([]rune(got)) != QueryPreviewLength {
		t.Errorf("expected %d runes, got %d", QueryPreviewLength, len([]rune(got)))
	}
}

func TestHashQuery(t *testing.T) {
	a, b := HashQuery("What is Alisha's salary?"), HashQuery("What is Alisha's salary?")
	if a != b || len(a) != 64 {
		t.Errorf("expected stable 64-char hash, got %q %q", a, b)
	}
	if HashQuery("other") == a {
		t.Error("expected different hashes for different queries")
	}
}

func TestLogWriter(t *testing.T) {
	w := NewLogWriter(zap.NewNop())
	w.Write(&DecisionEvent{RequestID: "r1", HooksTriggered: []string{"block_salary_queries"}})
	w.Close()
}
