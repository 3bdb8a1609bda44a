package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xyself/blivedm/pkg/events"
	"github.com/xyself/blivedm/pkg/metrics"
)

type fakeSession struct{}

func (fakeSession) ID() string      { return "test-session" }
func (fakeSession) RoomID() int64   { return 1000 }
func (fakeSession) OwnerUID() int64 { return 2000 }
func (fakeSession) UID() int64      { return 0 }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const danmakuBody = `{"cmd":"DANMU_MSG:4:0:2:2:2:0","info":[[0,1,25,16777215,1700000000123,-1],"hello",[42,"alice",0],[10,"medal","anchor",1000,1],[20,0]]}`

func TestDispatchDanmakuMapping(t *testing.T) {
	var got *events.Danmaku
	r := NewRouter(WebTable(WebCallbacks{
		Danmaku: func(s Session, d events.Danmaku) { got = &d },
	}), WithLogger(quietLogger()))

	if err := r.Dispatch(context.Background(), fakeSession{}, []byte(danmakuBody)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got == nil {
		t.Fatal("Danmaku callback not invoked")
	}
	if got.UID != 42 || got.Uname != "alice" || got.Msg != "hello" || got.Timestamp != 1700000000123 {
		t.Errorf("Danmaku = %+v", *got)
	}
	if got.Medal.Level != 10 || got.Medal.Name != "medal" || got.UserLevel != 20 {
		t.Errorf("Danmaku medal/level = %+v / %d", got.Medal, got.UserLevel)
	}
}

func TestDispatchInteractWordVariants(t *testing.T) {
	var calls []int64
	r := NewRouter(WebTable(WebCallbacks{
		InteractWord: func(s Session, w events.InteractWord) { calls = append(calls, w.UID) },
	}), WithLogger(quietLogger()))

	bodies := []string{
		`{"cmd":"INTERACT_WORD","data":{"uid":1,"msg_type":1}}`,
		`{"cmd":"INTERACT_WORD_V2","data":{"pb":"CAI="}}`, // field 1 = 2
	}
	for _, b := range bodies {
		if err := r.Dispatch(context.Background(), fakeSession{}, []byte(b)); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", b, err)
		}
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("InteractWord calls = %v, want [1 2]", calls)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	called := false
	r := NewRouter(WebTable(WebCallbacks{
		Danmaku: func(Session, events.Danmaku) { called = true },
	}), WithLogger(quietLogger()))

	if err := r.Dispatch(context.Background(), fakeSession{}, []byte(`{"cmd":"SOMETHING_NEW"}`)); err != nil {
		t.Errorf("Dispatch() error = %v, want nil", err)
	}
	if called {
		t.Error("callback invoked for unknown command")
	}
}

func TestDispatchNilCallbackIsNoop(t *testing.T) {
	r := NewRouter(WebTable(WebCallbacks{}), WithLogger(quietLogger()))
	// The body would fail to decode; a nil callback must skip decoding.
	if err := r.Dispatch(context.Background(), fakeSession{}, []byte(`{"cmd":"SEND_GIFT","data":"x"}`)); err != nil {
		t.Errorf("Dispatch() error = %v, want nil", err)
	}
}

func TestDispatchErrorsAreContained(t *testing.T) {
	var gifts int
	r := NewRouter(WebTable(WebCallbacks{
		Gift: func(Session, events.Gift) { gifts++ },
		Danmaku: func(Session, events.Danmaku) {
			panic("boom")
		},
	}), WithLogger(quietLogger()))
	ctx := context.Background()

	t.Run("invalid_json", func(t *testing.T) {
		err := r.Dispatch(ctx, fakeSession{}, []byte(`not json`))
		var de *EventDecodeError
		if !errors.As(err, &de) {
			t.Fatalf("error = %v, want *EventDecodeError", err)
		}
		if de.Cmd != "" {
			t.Errorf("Cmd = %q, want empty", de.Cmd)
		}
	})

	t.Run("decode_error", func(t *testing.T) {
		err := r.Dispatch(ctx, fakeSession{}, []byte(`{"cmd":"SEND_GIFT","data":{"uid":"x"}}`))
		var de *EventDecodeError
		if !errors.As(err, &de) {
			t.Fatalf("error = %v, want *EventDecodeError", err)
		}
		if de.Cmd != events.CmdGift {
			t.Errorf("Cmd = %q, want %q", de.Cmd, events.CmdGift)
		}
	})

	t.Run("callback_panic", func(t *testing.T) {
		err := r.Dispatch(ctx, fakeSession{}, []byte(danmakuBody))
		var he *HandlerError
		if !errors.As(err, &he) {
			t.Fatalf("error = %v, want *HandlerError", err)
		}
		if he.Value != "boom" || len(he.Stack) == 0 {
			t.Errorf("HandlerError = %+v", he)
		}
	})

	t.Run("routing_continues", func(t *testing.T) {
		if err := r.Dispatch(ctx, fakeSession{}, []byte(`{"cmd":"SEND_GIFT","data":{"uid":1}}`)); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if gifts != 1 {
			t.Errorf("gifts = %d, want 1", gifts)
		}
	})
}

func TestDispatchObserver(t *testing.T) {
	type seen struct {
		cmd string
		raw string
	}
	var obs []seen
	r := NewRouter(WebTable(WebCallbacks{}),
		WithLogger(quietLogger()),
		WithObserver(func(s Session, cmd string, raw []byte) {
			obs = append(obs, seen{cmd, string(raw)})
		}),
	)

	bodies := []string{danmakuBody, `{"cmd":"UNKNOWN_CMD"}`}
	for _, b := range bodies {
		_ = r.Dispatch(context.Background(), fakeSession{}, []byte(b))
	}
	if len(obs) != 2 {
		t.Fatalf("observer saw %d notifications, want 2", len(obs))
	}
	if obs[0].cmd != "DANMU_MSG" || obs[0].raw != danmakuBody {
		t.Errorf("observer[0] = %+v", obs[0])
	}
	if obs[1].cmd != "UNKNOWN_CMD" {
		t.Errorf("observer[1] = %+v", obs[1])
	}
}

func TestDispatchObserverPanicIsContained(t *testing.T) {
	reg := prometheus.NewRegistry()
	var danmaku int
	r := NewRouter(WebTable(WebCallbacks{
		Danmaku: func(Session, events.Danmaku) { danmaku++ },
	}),
		WithLogger(quietLogger()),
		WithMetrics(metrics.New(metrics.WithRegistry(reg))),
		WithObserver(func(Session, string, []byte) { panic("observer boom") }),
	)

	for range 2 {
		if err := r.Dispatch(context.Background(), fakeSession{}, []byte(danmakuBody)); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if danmaku != 2 {
		t.Errorf("danmaku callbacks = %d, want 2", danmaku)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "blivedm_commands_total" {
			continue
		}
		for _, mm := range mf.GetMetric() {
			if labelValue(mm, "cmd") == "DANMU_MSG" {
				got[labelValue(mm, "status")] = mm.GetCounter().GetValue()
			}
		}
	}
	if got[metrics.StatusPanic] != 2 || got[metrics.StatusOK] != 2 {
		t.Errorf("DANMU_MSG commands_total = %v, want 2 panic and 2 ok", got)
	}
}

func TestDispatchOpenLive(t *testing.T) {
	var enters, ends int
	r := NewRouter(OpenLiveTable(OpenLiveCallbacks{
		Enter:   func(Session, events.OpenEnter) { enters++ },
		LiveEnd: func(Session, events.OpenLiveStatus) { ends++ },
	}), WithLogger(quietLogger()))

	for _, b := range []string{
		`{"cmd":"LIVE_OPEN_PLATFORM_LIVE_ROOM_ENTER","data":{"uid":1}}`,
		`{"cmd":"LIVE_OPEN_PLATFORM_USER_ENTER","data":{"uid":2}}`,
		`{"cmd":"LIVE_OPEN_PLATFORM_END","data":{"room_id":3}}`,
	} {
		if err := r.Dispatch(context.Background(), fakeSession{}, []byte(b)); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", b, err)
		}
	}
	if enters != 2 || ends != 1 {
		t.Errorf("enters = %d, ends = %d; want 2, 1", enters, ends)
	}
}

func TestTableWithIsCopyOnWrite(t *testing.T) {
	base := WebTable(WebCallbacks{})
	n := len(base)

	derived := base.With("CUSTOM", On(events.DecodeGeneric, func(Session, events.Generic) {}))
	if len(base) != n {
		t.Errorf("base table mutated: len %d, want %d", len(base), n)
	}
	if _, ok := base.Lookup("CUSTOM"); ok {
		t.Error("base table gained CUSTOM")
	}
	if e, ok := derived.Lookup("CUSTOM"); !ok || e.Noop() {
		t.Error("derived table missing CUSTOM")
	}

	merged := base.Merge(OpenLiveTable(OpenLiveCallbacks{}))
	if _, ok := merged.Lookup(events.CmdOpenDanmaku); !ok {
		t.Error("merged table missing open-platform command")
	}
	if _, ok := base.Lookup(events.CmdOpenDanmaku); ok {
		t.Error("Merge mutated the receiver")
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"DANMU_MSG", "DANMU_MSG"},
		{"DANMU_MSG:4:0:2:2:2:0", "DANMU_MSG"},
		{"", ""},
		{":x", ""},
	}
	for _, tc := range tests {
		if got := CommandName(tc.in); got != tc.want {
			t.Errorf("CommandName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDispatchMetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := NewRouter(WebTable(WebCallbacks{
		Danmaku: func(Session, events.Danmaku) {},
		Gift:    func(Session, events.Gift) {},
	}),
		WithLogger(quietLogger()),
		WithMetrics(m),
		WithTracer(tp.Tracer("test")),
	)
	ctx := context.Background()
	_ = r.Dispatch(ctx, fakeSession{}, []byte(danmakuBody))
	_ = r.Dispatch(ctx, fakeSession{}, []byte(`{"cmd":"SEND_GIFT","data":[]}`))
	_ = r.Dispatch(ctx, fakeSession{}, []byte(`{"cmd":"NOPE"}`))

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2 (unknown commands are not traced)", len(spans))
	}
	if spans[0].Name() != "dispatch DANMU_MSG" || spans[0].Status().Code != codes.Ok {
		t.Errorf("span[0] = %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("span[1] status = %v, want Error", spans[1].Status())
	}

	want := map[[2]string]float64{
		{"DANMU_MSG", metrics.StatusOK}:          1,
		{"SEND_GIFT", metrics.StatusDecodeError}: 1,
		{"NOPE", metrics.StatusUnhandled}:        1,
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := map[[2]string]float64{}
	for _, mf := range families {
		if mf.GetName() != "blivedm_commands_total" {
			continue
		}
		for _, mm := range mf.GetMetric() {
			got[[2]string{labelValue(mm, "cmd"), labelValue(mm, "status")}] = mm.GetCounter().GetValue()
		}
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("commands_total%v = %v, want %v", k, got[k], v)
		}
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
