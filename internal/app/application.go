// Package app wires configuration into a running thread controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"threadsync/internal/api"
	"threadsync/internal/cache"
	"threadsync/internal/config"
	"threadsync/internal/log"
	"threadsync/internal/metrics"
	"threadsync/internal/natsbus"
	"threadsync/internal/thread"
	"threadsync/internal/tracing"
	"threadsync/internal/transport"
	"threadsync/internal/websocket"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// Application coordinates all components for one participant.
// Component initialization follows strict dependency order:
// Metrics → Tracing → API → Cache → Dialer → Controller → Metrics endpoint
type Application struct {
	config     *config.Config
	metrics    *metrics.Metrics
	tracing    *tracing.Provider
	api        *api.Client
	history    interfaces.HistorySource
	dialer     interfaces.Dialer
	controller *thread.Controller
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication builds every component from cfg. A nil cfg uses the defaults.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Metrics registry
	m := metrics.New()

	// STEP 2: Tracing
	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// STEP 3: REST collaborator
	client, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		api.WithMetrics(m), api.WithTracer(tp.Tracer()))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}

	// STEP 4: Optional history cache in front of the API
	history := cache.NewHistory(client, cfg.API.HistoryCacheTTL)

	// STEP 5: Live transport dialer
	dialer, err := newDialer(cfg.Transport)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	// STEP 6: Thread controller with a fresh session per thread
	sessionOpts := transport.Options{
		MaxReconnectAttempts: cfg.Transport.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Transport.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Transport.ReconnectMaxDelay,
		SendRPS:              cfg.Transport.SendRPS,
		SendBurst:            cfg.Transport.SendBurst,
		EventBuffer:          cfg.Transport.BufferSize,
		Metrics:              m,
		Tracer:               tp.Tracer(),
	}
	newSession := func() thread.Session {
		return transport.NewSession(dialer, sessionOpts)
	}
	controller := thread.NewController(history, newSession, thread.Options{
		Role:        types.Role(cfg.Role),
		QuietPeriod: cfg.Typing.QuietPeriod,
		Metrics:     m,
	})

	// STEP 7: Metrics endpoint, only when an address is configured
	var httpServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		httpServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return &Application{
		config:     cfg,
		metrics:    m,
		tracing:    tp,
		api:        client,
		history:    history,
		dialer:     dialer,
		controller: controller,
		httpServer: httpServer,
	}, nil
}

func newDialer(cfg config.TransportConfig) (interfaces.Dialer, error) {
	switch cfg.Kind {
	case config.TransportNATS:
		return natsbus.NewDialer(cfg.NATSURL, cfg.BufferSize), nil
	case config.TransportWebSocket, "":
		return websocket.NewDialer(cfg.URL, websocket.Options{
			PingInterval: cfg.PingInterval,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			BufferSize:   cfg.BufferSize,
		})
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// Start serves the metrics endpoint if one is configured.
// The listener is bound synchronously so address errors surface here.
func (app *Application) Start(ctx context.Context) error {
	if app.httpServer == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	app.listener = ln

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorErr(log.CatApp, "metrics server stopped", err)
		}
	}()
	log.Info(log.CatApp, "serving metrics", "addr", ln.Addr().String())
	return nil
}

// Stop tears down in reverse order: Controller → Metrics endpoint → Tracing.
func (app *Application) Stop(ctx context.Context) error {
	log.Info(log.CatApp, "shutting down")

	var errs []error
	if err := app.controller.Close(); err != nil {
		errs = append(errs, fmt.Errorf("controller: %w", err))
	}
	if app.httpServer != nil && app.listener != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := app.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}

// Controller returns the thread controller.
func (app *Application) Controller() *thread.Controller {
	return app.controller
}

// API returns the REST client, bypassing the history cache.
func (app *Application) API() *api.Client {
	return app.api
}

// History returns the history source the controller reads from.
func (app *Application) History() interfaces.HistorySource {
	return app.history
}

// Metrics returns the metrics registry.
func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (app *Application) MetricsAddr() string {
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.config
}
