package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xyself/blivedm/pkg/client"
)

// session is what the health endpoints need from a supervisor.
type session interface {
	State() client.State
	Current() *client.Client
	Attempts() int
}

// watched pairs a configured room with its supervisor.
type watched struct {
	room int64
	sess session
	run  func(context.Context) error
}

type roomStatus struct {
	Room      int64  `json:"room"`
	RoomID    int64  `json:"room_id,omitempty"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Attempts  int    `json:"attempts"`
}

func statusOf(w watched) roomStatus {
	st := roomStatus{
		Room:     w.room,
		State:    w.sess.State().String(),
		Attempts: w.sess.Attempts(),
	}
	if c := w.sess.Current(); c != nil {
		st.RoomID = c.RoomID()
		st.SessionID = c.ID()
		st.Variant = c.Variant().String()
	}
	return st
}

// newRouter serves /metrics from reg, /healthz with every room's state and
// /rooms/{room} with one room's state. /healthz answers 503 until every
// room is live.
func newRouter(reg *prometheus.Registry, rooms []watched) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		out := make([]roomStatus, len(rooms))
		for i, room := range rooms {
			out[i] = statusOf(room)
			if room.sess.State() != client.StateLive {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, map[string]any{"status": status, "rooms": out})
	})

	r.Get("/rooms/{room}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "room"), 10, 64)
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}
		for _, room := range rooms {
			if room.room == id {
				writeJSON(w, http.StatusOK, statusOf(room))
				return
			}
		}
		http.NotFound(w, req)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// serveHTTP serves h on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
