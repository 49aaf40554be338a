package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// insertFunc persists one batch of events.
type insertFunc func(ctx context.Context, events []*DecisionEvent) error

// ClickHouseWriter writes decision events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	insert  insertFunc
	buffer  chan *DecisionEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	// TLS comes from ?secure=true in the DSN.

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: ping: %w", err)
	}

	w := newWriter(nil, logger)
	w.conn = conn
	w.insert = w.insertBatch
	go w.flushLoop()
	return w, nil
}

// newClickHouseWriterWithInsert creates a writer with a custom insert (for testing).
func newClickHouseWriterWithInsert(insert insertFunc, logger *zap.Logger) *ClickHouseWriter {
	w := newWriter(insert, logger)
	go w.flushLoop()
	return w
}

func newWriter(insert insertFunc, logger *zap.Logger) *ClickHouseWriter {
	return &ClickHouseWriter{
		insert:  insert,
		buffer:  make(chan *DecisionEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
}

// Write queues a decision event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *DecisionEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Warn("clickhouse close failed", zap.Error(err))
		}
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*DecisionEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("clickhouse batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func (w *ClickHouseWriter) insertBatch(ctx context.Context, events []*DecisionEvent) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO guardrail_decisions (
			request_id, audit_id, timestamp,
			user_id, username, role, department,
			query_preview, query_hash,
			tool_invoked, tools_requested, tools_blocked, hooks_triggered,
			action_taken, blocked, data_masked, risk_score,
			result_count, latency_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.AuditID,
			e.Timestamp,
			e.UserID,
			e.Username,
			e.Role,
			e.Department,
			e.QueryPreview,
			e.QueryHash,
			e.ToolInvoked,
			e.ToolsRequested,
			e.ToolsBlocked,
			e.HooksTriggered,
			e.ActionTaken,
			boolToUint8(e.Blocked),
			boolToUint8(e.DataMasked),
			e.RiskScore,
			e.ResultCount,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	return batch.Send()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *DecisionEvent) {
	w.logger.Info("guardrail_decision",
		zap.String("request_id", event.RequestID),
		zap.Int64("audit_id", event.AuditID),
		zap.Int64("user_id", event.UserID),
		zap.String("role", event.Role),
		zap.String("action_taken", event.ActionTaken),
		zap.Bool("blocked", event.Blocked),
		zap.Bool("data_masked", event.DataMasked),
		zap.Uint8("risk_score", event.RiskScore),
		zap.Strings("hooks_triggered", event.HooksTriggered),
		zap.Strings("tools_blocked", event.ToolsBlocked),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("query_preview", event.QueryPreview),
	)
}

func (w *LogWriter) Close() {}
