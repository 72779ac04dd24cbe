package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KillInserter is the write side of the kill ledger.
type KillInserter interface {
	InsertBatch(ctx context.Context, recs []KillRecord) error
}

// LedgerWriter moves database writes off the game loop. The loop hands over
// batches with Submit, which never blocks; a single goroutine drains them.
type LedgerWriter struct {
	repo    KillInserter
	queue   chan []KillRecord
	timeout time.Duration
	log     *zap.Logger

	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.Mutex
	written int
	dropped int
}

func NewLedgerWriter(repo KillInserter, queueSize int, timeout time.Duration, log *zap.Logger) *LedgerWriter {
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LedgerWriter{
		repo:    repo,
		queue:   make(chan []KillRecord, queueSize),
		timeout: timeout,
		log:     log,
	}
}

// Start launches the drain goroutine. Close stops it after the queue empties.
func (w *LedgerWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for batch := range w.queue {
			w.write(ctx, batch)
		}
	}()
}

func (w *LedgerWriter) write(ctx context.Context, batch []KillRecord) {
	wctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.repo.InsertBatch(wctx, batch); err != nil {
		w.log.Error("kill ledger write failed", zap.Int("rows", len(batch)), zap.Error(err))
		w.mu.Lock()
		w.dropped += len(batch)
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.written += len(batch)
	w.mu.Unlock()
}

// Submit queues a batch. Returns false and drops it when the queue is full.
func (w *LedgerWriter) Submit(batch []KillRecord) bool {
	if len(batch) == 0 {
		return true
	}
	select {
	case w.queue <- batch:
		return true
	default:
		w.mu.Lock()
		w.dropped += len(batch)
		w.mu.Unlock()
		w.log.Warn("kill ledger queue full, batch dropped", zap.Int("rows", len(batch)))
		return false
	}
}

// Close stops accepting batches and waits for queued ones to be written.
func (w *LedgerWriter) Close() {
	w.once.Do(func() { close(w.queue) })
	w.wg.Wait()
}

// Stats returns rows written and rows dropped so far.
func (w *LedgerWriter) Stats() (written, dropped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.dropped
}
