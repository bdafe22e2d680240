package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/readyroom/internal/config"
	"github.com/vango-dev/readyroom/internal/console"
	"github.com/vango-dev/readyroom/internal/errors"
	"github.com/vango-dev/readyroom/pkg/game"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Capacity = 4
	cfg.Game.CountdownTicks = 2
	cfg.Game.Tick = config.Duration(20 * time.Millisecond)
	cfg.Game.TickInterval = config.Duration(time.Millisecond)
	cfg.Game.ExchangeInterval = config.Duration(5 * time.Millisecond)
	cfg.Game.Dwell = config.Duration(20 * time.Millisecond)
	cfg.Game.ReplyLines = []string{"pong"}
	return cfg
}

// startApp serves a wired app on a loopback listener.
func startApp(t *testing.T, cfg *config.Config) (*app, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, logger, game.Discard)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go a.driver.Run(ctx)
	go a.server.ServeTCP(ln)

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		a.server.Shutdown(shutdownCtx)
	})
	return a, ln.Addr().String()
}

func TestProbeFullSession(t *testing.T) {
	a, addr := startApp(t, testConfig())

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := probeOptions{addr: addr, chat: "hi there", input: "ping", rounds: 2}
	if err := runProbe(ctx, opts, console.New(&out, console.WithoutColor())); err != nil {
		t.Fatalf("runProbe() error = %v\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"accepted as client",
		"hi there",
		"roster complete",
		"starting in 1",
		"starting in 0",
		"game started",
		"server reply 1: pong",
		"server reply 2: pong",
		"left after 2 replies",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("probe output missing %q:\n%s", want, got)
		}
	}

	if a.driver.Status().Phase != game.PhaseRunning {
		t.Errorf("phase = %s, want running", a.driver.Status().Phase)
	}
	count, err := testutil.GatherAndCount(a.registry, "readyroom_phase_transitions_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("phase_transitions_total series = %d, want 2", count)
	}
}

func TestProbeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	err = runProbe(context.Background(), probeOptions{addr: addr, rounds: 1},
		console.New(io.Discard))
	if got := errors.Code(err); got != "E301" {
		t.Errorf("runProbe() code = %q, want E301 (err = %v)", got, err)
	}
}

func TestLoadServeConfigFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(path, []byte(`{"capacity": 12, "listen": {"tcp": "127.0.0.1:1"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--capacity", "6", "--http", "", "--dwell", "3s"}); err != nil {
		t.Fatal(err)
	}
	opts := serveOptions{configPath: path, capacity: 6, dwell: 3 * time.Second}
	cfg, err := loadServeConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}

	if cfg.Capacity != 6 {
		t.Errorf("Capacity = %d, want 6 (flag wins)", cfg.Capacity)
	}
	if cfg.Listen.TCP != "127.0.0.1:1" {
		t.Errorf("Listen.TCP = %q, want file value", cfg.Listen.TCP)
	}
	if cfg.Listen.HTTP != "" {
		t.Errorf("Listen.HTTP = %q, want disabled by flag", cfg.Listen.HTTP)
	}
	if cfg.Game.Dwell.Std() != 3*time.Second {
		t.Errorf("Dwell = %v, want 3s", cfg.Game.Dwell.Std())
	}
}

func TestLoadServeConfigInvalidFlag(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--capacity", "300"}); err != nil {
		t.Fatal(err)
	}
	_, err := loadServeConfig(cmd, serveOptions{capacity: 300})
	if got := errors.Code(err); got != "E102" {
		t.Errorf("loadServeConfig() code = %q, want E102", got)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "text", false},
		{"debug", "json", false},
		{"WARN", "", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			logger.Error("boom")
			if !strings.Contains(buf.String(), "boom") {
				t.Errorf("output = %q, want the message", buf.String())
			}
		})
	}
}

func TestArchiveRequiresBucket(t *testing.T) {
	cfg := testConfig()
	cfg.Archive.Enabled = true
	_, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), game.Discard)
	if got := errors.Code(err); got != "E400" {
		t.Errorf("newApp() code = %q, want E400 (err = %v)", got, err)
	}
}

func TestVersionShort(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}
