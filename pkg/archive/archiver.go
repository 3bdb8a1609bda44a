// Package archive stores raw notifications for later analysis.
//
// An Archiver is installed as the router observer. It copies every
// notification into an in-memory batch and hands full batches to a Sink
// from a background goroutine, so the session's event loop never waits
// on storage:
//
//	sink, _ := archive.OpenSQLite("events.db")
//	arc := archive.New(sink, archive.WithLogger(logger))
//	defer arc.Close(ctx)
//
//	c := client.New(roomID,
//	    client.WithRouterOptions(dispatch.WithObserver(arc.Observe)), ...)
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/metrics"
)

const (
	// DefaultBatchSize is the record count that triggers a write.
	DefaultBatchSize = 200

	// DefaultFlushInterval bounds how long a record waits in memory.
	DefaultFlushInterval = 5 * time.Second

	// pendingBatches is how many full batches may queue for the writer
	// before new ones are dropped.
	pendingBatches = 16
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("archive: closed")

// errDropped is reported to metrics when the writer falls behind.
var errDropped = errors.New("archive: batch dropped")

// Record is one archived notification.
type Record struct {
	SessionID  string          `json:"session_id"`
	RoomID     int64           `json:"room_id"`
	Cmd        string          `json:"cmd"`
	ReceivedAt time.Time       `json:"received_at"`
	Raw        json.RawMessage `json:"raw"`
}

// Sink persists batches of records.
type Sink interface {
	// Name labels the sink in logs and metrics.
	Name() string
	Write(ctx context.Context, records []Record) error
}

// Archiver batches records for a Sink. It is safe for concurrent use by
// several sessions.
type Archiver struct {
	sink     Sink
	size     int
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.Mutex
	buf    []Record
	closed bool

	batches chan []Record
	flushes chan chan error
	done    chan struct{}
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithBatchSize sets how many records are written at once.
func WithBatchSize(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.size = n
		}
	}
}

// WithFlushInterval sets how often a partial batch is written.
func WithFlushInterval(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = l
	}
}

// WithMetrics counts written records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Archiver) {
		a.metrics = m
	}
}

// WithClock sets the clock used for Record.ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New creates an Archiver writing to sink and starts its writer.
func New(sink Sink, opts ...Option) *Archiver {
	a := &Archiver{
		sink:     sink,
		size:     DefaultBatchSize,
		interval: DefaultFlushInterval,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		batches:  make(chan []Record, pendingBatches),
		flushes:  make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("sink", sink.Name())
	go a.run()
	return a
}

var _ dispatch.Observer = (*Archiver)(nil).Observe

// Observe records a notification. Its signature matches dispatch.Observer.
func (a *Archiver) Observe(s dispatch.Session, cmd string, raw []byte) {
	a.Record(Record{
		SessionID:  s.ID(),
		RoomID:     s.RoomID(),
		Cmd:        cmd,
		ReceivedAt: a.now(),
		Raw:        bytes.Clone(raw),
	})
}

// Record queues r. Records arriving after Close are discarded.
func (a *Archiver) Record(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.buf = append(a.buf, r)
	if len(a.buf) < a.size {
		return
	}
	batch := a.buf
	a.buf = nil

	// Sent under mu so that Close never closes batches under a sender.
	select {
	case a.batches <- batch:
	default:
		a.metrics.Archived(a.sink.Name(), len(batch), errDropped)
		a.logger.Warn("archive writer behind, dropping batch", "records", len(batch))
	}
}

// Flush writes everything queued so far and returns the first write
// error.
func (a *Archiver) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case a.flushes <- reply:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes what is left and stops the writer. Later calls return nil.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	err := a.Flush(ctx)
	close(a.batches)
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (a *Archiver) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case batch, ok := <-a.batches:
			if !ok {
				return
			}
			a.write(batch)
		case <-ticker.C:
			a.write(a.take())
		case reply := <-a.flushes:
			var first error
			for drained := false; !drained; {
				select {
				case batch, ok := <-a.batches:
					if !ok {
						drained = true
						break
					}
					if err := a.write(batch); err != nil && first == nil {
						first = err
					}
				default:
					drained = true
				}
			}
			if err := a.write(a.take()); err != nil && first == nil {
				first = err
			}
			reply <- first
		}
	}
}

// take removes the partial batch.
func (a *Archiver) take() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := a.buf
	a.buf = nil
	return batch
}

func (a *Archiver) write(batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	err := a.sink.Write(ctx, batch)
	a.metrics.Archived(a.sink.Name(), len(batch), err)
	if err != nil {
		a.logger.Error("archive write failed", "records", len(batch), "error", err)
		return err
	}
	a.logger.Debug("archived", "records", len(batch))
	return nil
}
