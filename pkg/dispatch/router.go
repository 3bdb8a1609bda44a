package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xyself/blivedm/pkg/metrics"
)

const defaultTracerName = "github.com/xyself/blivedm/pkg/dispatch"

// Observer sees every notification before it is decoded. cmd has its
// ":" suffix removed. raw is only valid for the duration of the call.
type Observer func(s Session, cmd string, raw []byte)

// Router dispatches notification bodies through a Table.
type Router struct {
	table    Table
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMetrics records command outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = t
	}
}

// WithObserver registers an observer for every notification.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// NewRouter creates a router over table.
func NewRouter(table Table, opts ...Option) *Router {
	r := &Router{
		table:  table,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(defaultTracerName)
	}
	return r
}

// Table returns the router's table.
func (r *Router) Table() Table {
	return r.table
}

// CommandName strips the ":" suffix some commands carry, for example
// "DANMU_MSG:4:0:2:2:2:0" becomes "DANMU_MSG".
func CommandName(cmd string) string {
	name, _, _ := strings.Cut(cmd, ":")
	return name
}

// Dispatch decodes body and invokes the matching callback.
//
// Nothing escapes: an unknown command is logged at debug level, and a
// decode failure or callback panic is logged and returned as
// *EventDecodeError or *HandlerError for callers that want to count it.
// An observer panic is logged and counted but does not stop the callback.
func (r *Router) Dispatch(ctx context.Context, s Session, body []byte) error {
	var head struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		derr := &EventDecodeError{Err: err}
		r.logger.Warn("notification decode error", "room_id", s.RoomID(), "error", err)
		r.metrics.Command("invalid", metrics.StatusDecodeError, 0)
		return derr
	}
	cmd := CommandName(head.Cmd)

	if r.observer != nil {
		if err := r.observe(cmd, s, body); err != nil {
			r.logger.Error("command observer panicked", "room_id", s.RoomID(), "cmd", cmd, "error", err)
			r.metrics.Command(cmd, metrics.StatusPanic, 0)
		}
	}

	entry, ok := r.table.Lookup(cmd)
	if !ok {
		r.logger.Debug("unhandled command", "room_id", s.RoomID(), "cmd", cmd)
		r.metrics.Command(cmd, metrics.StatusUnhandled, 0)
		return nil
	}
	if entry.Noop() {
		r.metrics.Command(cmd, metrics.StatusOK, 0)
		return nil
	}

	_, span := r.tracer.Start(ctx, "dispatch "+cmd,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("blivedm.cmd", cmd),
			attribute.String("blivedm.room_id", strconv.FormatInt(s.RoomID(), 10)),
			attribute.String("blivedm.session_id", s.ID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := r.call(cmd, entry, s, body)
	elapsed := time.Since(start)

	status := metrics.StatusOK
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch err.(type) {
		case *HandlerError:
			status = metrics.StatusPanic
			r.logger.Error("command callback panicked", "room_id", s.RoomID(), "cmd", cmd, "error", err)
		default:
			status = metrics.StatusDecodeError
			r.logger.Warn("command decode error", "room_id", s.RoomID(), "cmd", cmd, "error", err)
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.metrics.Command(cmd, status, elapsed)
	return err
}

func (r *Router) observe(cmd string, s Session, body []byte) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerError{Cmd: cmd, Value: v, Stack: debug.Stack()}
		}
	}()
	r.observer(s, cmd, body)
	return nil
}

func (r *Router) call(cmd string, e Entry, s Session, body []byte) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerError{Cmd: cmd, Value: v, Stack: debug.Stack()}
		}
	}()
	if err := e.run(s, body); err != nil {
		return &EventDecodeError{Cmd: cmd, Err: err}
	}
	return nil
}
