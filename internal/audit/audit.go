// Package audit implements a non-blocking, batched dispatch logger.
//
// Entries are written to an internal buffered channel and flushed in batches
// by a background goroutine, so audit logging never blocks the dispatch hot
// path. If the channel fills up (> 10 000 entries), new entries are dropped
// and counted in Dropped.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// DispatchLog is one record of a Generate call.
type DispatchLog struct {
	ID          uuid.UUID
	Fingerprint string
	Provider    string
	Outcome     string
	Cached      bool
	LatencyMs   int64
	CreatedAt   time.Time
}

// Logger buffers DispatchLog entries and flushes them asynchronously.
type Logger struct {
	ch        chan DispatchLog
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64

	baseCtx context.Context
	log     *slog.Logger
}

// New starts the background flush goroutine. Close must be called to drain
// pending entries.
func New(ctx context.Context, slogger *slog.Logger) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("audit: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	l := &Logger{
		ch:      make(chan DispatchLog, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		log:     slogger,
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues an entry. Never blocks; entries are dropped when the buffer
// is full.
func (l *Logger) Log(entry DispatchLog) {
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.dropped, 1)
	}
}

// Dropped returns the number of entries lost to a full buffer.
func (l *Logger) Dropped() int64 {
	return atomic.LoadInt64(&l.dropped)
}

// Close stops the flush goroutine after draining buffered entries.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]DispatchLog, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			l.log.InfoContext(ctx, "dispatch",
				slog.String("id", e.ID.String()),
				slog.String("fingerprint", e.Fingerprint),
				slog.String("provider", e.Provider),
				slog.String("outcome", e.Outcome),
				slog.Bool("cached", e.Cached),
				slog.Int64("latency_ms", e.LatencyMs),
				slog.Time("created_at", e.CreatedAt),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-l.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush(l.baseCtx)
			}

		case <-ticker.C:
			flush(l.baseCtx)

		case <-l.done:
			// Drain whatever is still buffered, then flush once.
			for {
				select {
				case entry := <-l.ch:
					batch = append(batch, entry)
				default:
					flush(l.baseCtx)
					return
				}
			}
		}
	}
}
