package integration

import (
	"context"
	"testing"
	"time"

	"threadsync/internal/app"
	"threadsync/internal/config"
	"threadsync/internal/testutil"
	"threadsync/pkg/types"
)

// NewTestConfig points a configuration at peer with timings short enough for tests.
func NewTestConfig(peer *testutil.Peer, role types.Role) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Role = string(role)
	cfg.API.BaseURL = peer.URL()
	cfg.API.Timeout = 2 * time.Second
	cfg.Transport.URL = peer.WebSocketURL()
	cfg.Transport.PingInterval = time.Second
	cfg.Transport.ReadTimeout = 5 * time.Second
	cfg.Transport.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.Transport.ReconnectMaxDelay = 50 * time.Millisecond
	cfg.Typing.QuietPeriod = 150 * time.Millisecond
	return cfg
}

// NewTestApplication builds an application from cfg and stops it when the test ends.
func NewTestApplication(t *testing.T, cfg *config.Config) *app.Application {
	t.Helper()

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		if err := application.Stop(context.Background()); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})
	return application
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
