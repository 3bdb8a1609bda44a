package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xyself/blivedm/internal/config"
	"github.com/xyself/blivedm/internal/errors"
	"github.com/xyself/blivedm/pkg/archive"
	"github.com/xyself/blivedm/pkg/client"
)

func TestParseRooms(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int64
		wantErr bool
	}{
		{"none", nil, []int64{}, false},
		{"several", []string{"1", "21396545"}, []int64{1, 21396545}, false},
		{"zero", []string{"0"}, nil, true},
		{"word", []string{"lobby"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRooms(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRooms(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				var e *errors.Error
				if !stderrors.As(err, &e) || e.Category != errors.CategoryCLI {
					t.Errorf("error = %v, want a CLI error", err)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseRooms(%v) = %v, want %v", tt.args, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("room %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVersionShort(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version --short = %q, want %q", out.String(), version)
	}
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	db, err := archive.OpenSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	base := time.UnixMilli(1700000000000)
	err = db.Write(context.Background(), []archive.Record{
		{SessionID: "s", RoomID: 9, Cmd: "DANMU_MSG", ReceivedAt: base, Raw: json.RawMessage(`{"cmd":"DANMU_MSG"}`)},
		{SessionID: "s", RoomID: 9, Cmd: "SEND_GIFT", ReceivedAt: base.Add(time.Second), Raw: json.RawMessage(`{"cmd":"SEND_GIFT"}`)},
		{SessionID: "s", RoomID: 10, Cmd: "LIKE", ReceivedAt: base, Raw: json.RawMessage(`{}`)},
	})
	db.Close()
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"history", "9", "--config-dir", dir, "--sqlite", dbPath, "-n", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("history error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("history printed %d lines, want 2:\n%s", len(lines), out.String())
	}
	var first archive.Record
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Cmd != "SEND_GIFT" {
		t.Errorf("first record = %+v, want the newest", first)
	}
}

func TestHistoryRequiresArchive(t *testing.T) {
	t.Setenv("BLIVEDM_ARCHIVE_SQLITE", "")
	root := rootCmd()
	root.SetArgs([]string{"history", "9", "--config-dir", t.TempDir()})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "no SQLite archive") {
		t.Errorf("history error = %v", err)
	}
}

func TestNewAppOpensArchive(t *testing.T) {
	dir := t.TempDir()
	cfgJSON := `{"archive": {"sqlite": "` + filepath.ToSlash(filepath.Join(dir, "events.db")) + `"}}`
	if err := os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(cfgJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := newApp(context.Background(), &globalFlags{configDir: dir, logLevel: "error"}, nil)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.archiver == nil {
		t.Fatal("archiver not started for a configured SQLite path")
	}
	if len(a.clientOptions(client.ResolverFunc(nil), client.Handler{})) == 0 {
		t.Error("no client options")
	}
	if err := a.close(); err != nil {
		t.Errorf("close() = %v", err)
	}
}

func TestNewAppRejectsInvalidLevel(t *testing.T) {
	_, err := newApp(context.Background(), &globalFlags{configDir: t.TempDir(), logLevel: "loud"}, nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != "E201" {
		t.Errorf("newApp() = %v, want E201", err)
	}
}

func TestRunSessionsStopsOnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := &app{cfg: cfg, logger: quietLogger(), registry: prometheus.NewRegistry()}

	boom := stderrors.New("auth rejected")
	rooms := []watched{
		{room: 1, sess: fakeSession{}, run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
		{room: 2, sess: fakeSession{}, run: func(context.Context) error { return boom }},
	}

	done := make(chan error, 1)
	go func() { done <- runSessions(context.Background(), a, rooms) }()
	select {
	case err := <-done:
		if !stderrors.Is(err, boom) {
			t.Errorf("runSessions() = %v, want %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runSessions did not stop after a failure")
	}
}

func TestRunSessionsStopsServerWhenDone(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := &app{cfg: cfg, logger: quietLogger(), registry: prometheus.NewRegistry()}
	rooms := []watched{{room: 1, sess: fakeSession{}, run: func(context.Context) error { return nil }}}

	done := make(chan error, 1)
	go func() { done <- runSessions(context.Background(), a, rooms) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runSessions() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server kept running after every session returned")
	}
}
