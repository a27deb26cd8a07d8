package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chirpsyncer/chirpsync-realtime/internal/model"
	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
)

const insertEventSQL = `
	INSERT INTO realtime_events (id, event_type, operation_id, rule_id, done, total, payload, received_at)
	VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

// JournalWriter consumes dispatched events and writes them to realtime_events.
type JournalWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Records waiting to be batched; filled from registry dispatch
	input *router.GrowableBuffer[model.EventRecord]

	// Database
	db BatchSender

	// Batching
	batch       []model.EventRecord
	batchMu     sync.Mutex
	flushMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx         context.Context
	cancel      context.CancelFunc
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	unsubscribe func()

	// Metrics
	metrics WriterMetrics
}

// NewJournalWriter creates a new JournalWriter.
func NewJournalWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *JournalWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaults.BufferSize
	}

	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}

	return &JournalWriter{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		input:       router.NewGrowableBuffer[model.EventRecord](initial, cfg.BufferSize),
		batch:       make([]model.EventRecord, 0, cfg.BatchSize),
		stop:        make(chan struct{}),
		unsubscribe: func() {},
	}
}

// Attach subscribes the writer to every event type on registry.
func (w *JournalWriter) Attach(registry *router.Registry) {
	w.unsubscribe = registry.SubscribeAll(w.handleEvent)
}

// Start begins consuming records and writing to the database.
func (w *JournalWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop unsubscribes, waits for the writer's goroutines and flushes what is
// still buffered using ctx.
func (w *JournalWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	// Closing the input lets consumeLoop drain what is buffered and exit.
	w.unsubscribe()
	w.input.Close()
	w.stopOnce.Do(func() { close(w.stop) })

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		if w.cancel != nil {
			w.cancel()
		}
		return ctx.Err()
	}
	if w.cancel != nil {
		defer w.cancel()
	}

	// Final flush
	remaining := w.input.DrainTo(0)
	w.batchMu.Lock()
	w.batch = append(w.batch, remaining...)
	w.batchMu.Unlock()

	if err := w.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

// Stats returns current metrics.
func (w *JournalWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	m := w.metrics
	w.batchMu.Unlock()

	m.Dropped = w.input.Stats().Dropped
	return m
}

// handleEvent runs on the dispatching goroutine and must not block.
func (w *JournalWriter) handleEvent(ev router.Event) {
	rec, err := model.NewEventRecord(ev, time.Now())
	if err != nil {
		w.logger.Warn("skipping event", "type", ev.Type(), "error", err)
		return
	}

	w.batchMu.Lock()
	w.metrics.Received++
	w.batchMu.Unlock()

	w.input.Send(rec)
}

// consumeLoop moves records from the input buffer into the batch.
func (w *JournalWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		rec, err := w.input.Receive(w.ctx)
		if err != nil {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, rec)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *JournalWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database. A failed batch is logged,
// counted and discarded.
func (w *JournalWriter) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]model.EventRecord, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *JournalWriter) batchInsert(ctx context.Context, rows []model.EventRecord) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEventSQL,
			r.ID, r.EventType, r.OperationID, r.RuleID, r.Done, r.Total, r.Payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
