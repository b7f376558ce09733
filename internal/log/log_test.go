package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 45, 0, 0, time.UTC)

	tests := []struct {
		name   string
		fields []any
		want   string
	}{
		{"no fields", nil, "2026-01-02T10:45:00 [INFO] [api] fetched\n"},
		{"pairs", []any{"thread", "fb-1", "count", 2}, "2026-01-02T10:45:00 [INFO] [api] fetched thread=fb-1 count=2\n"},
		{"orphan key", []any{"thread"}, "2026-01-02T10:45:00 [INFO] [api] fetched thread=<missing>\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, format(ts, LevelInfo, CatAPI, "fetched", tt.fields...))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestInit_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	cleanup := Init(&buf, LevelWarn)
	defer cleanup()

	Debug(CatThread, "hidden")
	Info(CatThread, "hidden")
	Warn(CatThread, "shown", "thread", "fb-1")
	ErrorErr(CatTransport, "dial failed", errors.New("refused"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[WARN] [thread] shown thread=fb-1")
	require.Contains(t, out, "[ERROR] [transport] dial failed error=refused")

	SetMinLevel(LevelDebug)
	Debug(CatCache, "now visible")
	require.Contains(t, buf.String(), "[DEBUG] [cache] now visible")

	SetEnabled(false)
	Error(CatApp, "muted")
	require.NotContains(t, buf.String(), "muted")
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadsync.log")

	cleanup, err := InitFile(path, LevelInfo)
	require.NoError(t, err)
	Info(CatConfig, "loaded", "path", "config.yaml")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "[INFO] [config] loaded path=config.yaml\n"))

	// After cleanup nothing is written and nothing panics.
	Info(CatConfig, "after close")
}

func TestSubscribe(t *testing.T) {
	var buf bytes.Buffer
	cleanup := Init(&buf, LevelDebug)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Subscribe(ctx)
	require.NotNil(t, ch)

	Info(CatApp, "started")

	select {
	case ev := <-ch:
		require.Equal(t, EntryEvent, ev.Type)
		require.Contains(t, ev.Payload, "[INFO] [app] started")
	case <-time.After(time.Second):
		require.Fail(t, "no log event received")
	}
}

func TestUninitialised(t *testing.T) {
	cleanup := Init(&bytes.Buffer{}, LevelDebug)
	cleanup()

	require.Nil(t, Subscribe(context.Background()))
	Warn(CatApp, "dropped")
}
