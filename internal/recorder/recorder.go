// Package recorder persists progress snapshots off the simulation goroutine:
// the latest snapshot per session goes to a cache, every snapshot goes to the
// episode log in batches.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sdsim/internal/shared"
)

// LatestCache holds the newest snapshot of each session.
type LatestCache interface {
	Save(ctx context.Context, s shared.ProgressSnapshot) error
	Close() error
}

// EpisodeStore is the durable episode log.
type EpisodeStore interface {
	BatchInsert(ctx context.Context, batch []shared.ProgressSnapshot) error
	Close() error
}

var ErrClosed = errors.New("recorder is closed")

// Options tunes the batch writer.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

func DefaultOptions() Options {
	return Options{QueueSize: 10000, BatchSize: 500, FlushInterval: 5 * time.Second}
}

// Recorder queues snapshots and writes them from a single background worker.
// Either backend may be nil.
type Recorder struct {
	cache  LatestCache
	store  EpisodeStore
	opts   Options
	logger *slog.Logger

	writeChan chan shared.ProgressSnapshot
	closed    atomic.Bool
	started   atomic.Bool
	dropped   atomic.Uint64
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func New(cache LatestCache, store EpisodeStore, opts Options) *Recorder {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cache:     cache,
		store:     store,
		opts:      opts,
		logger:    logger,
		writeChan: make(chan shared.ProgressSnapshot, opts.QueueSize),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Record queues s without blocking. A full queue drops the snapshot.
func (r *Recorder) Record(s shared.ProgressSnapshot) error {
	if r.closed.Load() {
		return ErrClosed
	}

	queueDepth := len(r.writeChan)
	if queueDepth > cap(r.writeChan)/2 {
		r.logger.Debug("write_queue_high_watermark", "queue_depth", queueDepth)
	}

	select {
	case r.writeChan <- s:
		return nil
	default:
		if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
			r.logger.Warn("write_queue_full_snapshot_dropped", "session_id", s.SessionID, "dropped_total", n)
		}
		return nil
	}
}

// Dropped counts snapshots lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run is the batch writer. It returns once ctx is done or Close is called,
// after flushing what it holds.
func (r *Recorder) Run(ctx context.Context) {
	r.started.Store(true)
	defer close(r.doneChan)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]shared.ProgressSnapshot, 0, r.opts.BatchSize)
	r.logger.Info("batch_writer_started", "interval", r.opts.FlushInterval.String(), "batch_size", r.opts.BatchSize)

	for {
		select {
		case <-ctx.Done():
			r.shutdown(batch)
			return
		case <-r.stopChan:
			r.shutdown(batch)
			return

		case s := <-r.writeChan:
			r.cacheLatest(s)
			batch = append(batch, s)
			if len(batch) >= r.opts.BatchSize {
				r.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.logger.Debug("periodic_batch_flush", "count", len(batch))
				r.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// shutdown drains whatever is still queued into one last flush.
func (r *Recorder) shutdown(batch []shared.ProgressSnapshot) {
	for {
		select {
		case s := <-r.writeChan:
			r.cacheLatest(s)
			batch = append(batch, s)
		default:
			r.logger.Info("batch_writer_shutting_down", "remaining", len(batch))
			r.flushBatch(batch)
			return
		}
	}
}

func (r *Recorder) cacheLatest(s shared.ProgressSnapshot) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := r.cache.Save(ctx, s); err != nil {
		r.logger.Warn("latest_cache_save_failed", "session_id", s.SessionID, "error", err)
	}
}

func (r *Recorder) flushBatch(batch []shared.ProgressSnapshot) {
	if r.store == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := r.store.BatchInsert(ctx, batch); err != nil {
		r.logger.Error("batch_insert_failed", "count", len(batch), "error", err)
		return
	}
	r.logger.Debug("batch_insert_success", "count", len(batch), "duration_ms", time.Since(start).Milliseconds())
}

// Close stops the writer, waits for its final flush if it is running, and
// closes both backends.
func (r *Recorder) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.stopOnce.Do(func() { close(r.stopChan) })
	if r.started.Load() {
		<-r.doneChan
	}

	var errs []error
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
