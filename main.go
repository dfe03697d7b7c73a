// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/bridge"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/browser"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/config"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/discovery"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/history"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/portal"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/publisher"
)

const (
	signalChannelSize      = 1
	brokerDiscoveryTimeout = 10 * time.Second
	readinessCheckTimeout  = 2 * time.Second
	shutdownTimeout        = 5 * time.Second
	cycleTimeout           = 15 * time.Minute
)

// App wires the portal client, the MQTT publisher and the sync scheduler
// together.
type App struct {
	cfg           *config.Config
	metricsPort   string
	server        *http.Server
	pub           *publisher.Publisher
	sink          *history.InfluxSink
	br            *bridge.Bridge
	configWatcher *config.Watcher
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	mu        sync.Mutex // protects cfg and lastCycle
	lastCycle time.Time
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	logger.Info().Msg("Starting Minol MQTT Bridge")
	logger.Info().
		Dur("sync_interval", cfg.Sync.Interval()).
		Int("months_back", cfg.Sync.MonthsBack).
		Str("base_url", cfg.Minol.BaseURL).
		Msg("Configuration loaded")

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := New(cfg, *metricsPort, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	application.Run(configChan)
}

// New creates the application. A broker that cannot be reached is fatal;
// everything else degrades per cycle instead.
func New(cfg *config.Config, metricsPort string, configWatcher *config.Watcher) (*App, error) {
	app := &App{
		cfg:           cfg,
		metricsPort:   metricsPort,
		configWatcher: configWatcher,
	}

	host := cfg.MQTT.Host
	port := cfg.MQTT.Port
	if host == "" {
		broker, err := discoverBroker()
		if err != nil {
			return nil, fmt.Errorf("no broker configured and discovery failed: %w", err)
		}
		host = broker.Address.String()
		port = broker.Port
	}

	pub, err := publisher.Connect(publisher.Options{
		Host:     host,
		Port:     port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		ClientID: cfg.MQTT.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	app.pub = pub

	if cfg.HistoryEnabled() {
		sink, err := history.NewInfluxSink(
			cfg.History.URL,
			cfg.History.Token,
			cfg.History.Organization,
			cfg.History.Bucket,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("History sink unavailable, continuing without long-term storage")
		} else {
			app.sink = sink
		}
	}

	var sink bridge.HistorySink
	if app.sink != nil {
		sink = app.sink
	}
	app.br = bridge.New(app.newPortalSession, pub, sink, app.syncMonthsBack)

	app.server = app.buildMetricsServer()

	return app, nil
}

// currentConfig returns the live configuration. The pointer is swapped by
// the config watcher goroutine, so every read goes through the mutex.
func (a *App) currentConfig() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) syncMonthsBack() int {
	return a.currentConfig().Sync.MonthsBack
}

// newPortalSession builds a fresh portal client with its own browser
// authenticator. One session per sync cycle.
func (a *App) newPortalSession() (bridge.SnapshotSource, error) {
	cfg := a.currentConfig()

	auth := browser.New(cfg.Minol.BaseURL)
	return portal.NewClient(cfg.Minol.Email, cfg.Minol.Password, cfg.Minol.BaseURL, auth)
}

// Run starts all background goroutines and blocks in the sync loop until
// shutdown.
func (a *App) Run(configChan <-chan *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startMetricsServer()
	a.setupSignalHandler()
	a.startConfigWatcher(configChan)
	a.runSyncLoop(ctx)
}

// runSyncLoop runs the first sync immediately and then on every tick. A
// failed cycle is logged and the loop sleeps until the next attempt. The
// ticker is re-armed from the live configuration after each cycle so a
// reloaded interval applies without a restart.
func (a *App) runSyncLoop(ctx context.Context) {
	a.runCycle(ctx)

	ticker := time.NewTicker(a.currentConfig().Sync.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			a.performCleanup()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			a.runCycle(ctx)
			ticker.Reset(a.currentConfig().Sync.Interval())
		}
	}
}

func (a *App) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	if err := a.br.RunCycle(cycleCtx); err != nil {
		logger.Error().Err(err).Msg("Sync cycle failed")
	}

	a.mu.Lock()
	a.lastCycle = time.Now()
	a.mu.Unlock()

	logger.Info().Dur("sleep", a.currentConfig().Sync.Interval()).Msg("Sleeping until next sync")
}

// buildMetricsServer assembles the localhost-only metrics and health
// endpoint server.
func (a *App) buildMetricsServer() *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.sink)
	}))

	return &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.configWatcher.Stop()
	a.cancel()
}

// performCleanup disconnects external services and waits for goroutines.
func (a *App) performCleanup() {
	a.pub.Disconnect()
	if a.sink != nil {
		a.sink.Close()
	}

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// UpdateConfig applies a reloaded configuration. Credentials, the sync
// window and interval take effect on the next cycle and the log level is
// switched immediately; the broker connection is not re-established.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.mu.Lock()
	oldLevel := a.cfg.Logging.Level
	a.cfg = newCfg
	a.mu.Unlock()

	if newCfg.Logging.Level != oldLevel {
		logger.Initialize(newCfg.Logging.Level)
		logger.Info().Str("level", newCfg.Logging.Level).Msg("Log level changed")
	}
	logger.Info().Msg("Application configuration updated")
}

// startConfigWatcher starts a goroutine to listen for config file changes and reloads
func (a *App) startConfigWatcher(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	a.mu.Lock()
	lastCycle := a.lastCycle
	interval := a.cfg.Sync.Interval()
	a.mu.Unlock()

	logger.Info().
		Time("last_cycle", lastCycle).
		Dur("sync_interval", interval).
		Bool("history_enabled", a.sink != nil).
		Msg("Sync state")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// discoverBroker scans the local network for an advertised MQTT broker.
func discoverBroker() (*discovery.Broker, error) {
	logger.Info().Msg("No MQTT host configured, discovering broker via mDNS")
	scanner := discovery.NewScanner()

	ctx, cancel := context.WithTimeout(context.Background(), brokerDiscoveryTimeout)
	defer cancel()

	return scanner.First(ctx, brokerDiscoveryTimeout)
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports readiness. With no history sink configured
// the process is ready as soon as it runs; with one configured, readiness
// tracks InfluxDB health.
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, sink *history.InfluxSink) {
	if sink == nil {
		w.WriteHeader(http.StatusOK)
		if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	if !sink.Healthy(ctx) {
		logger.Warn().Msg("Readiness check failed: InfluxDB unhealthy")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: InfluxDB unhealthy")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}

// performHealthCheck performs a health check and returns exit code
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	if !cfg.HistoryEnabled() {
		fmt.Println("Health check passed: no external storage configured")
		return 0
	}

	sink, err := history.NewInfluxSink(
		cfg.History.URL,
		cfg.History.Token,
		cfg.History.Organization,
		cfg.History.Bucket,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not connect to InfluxDB: %v\n", err)
		return 1
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !sink.Healthy(ctx) {
		fmt.Fprintln(os.Stderr, "Health check failed: InfluxDB is unhealthy")
		return 1
	}

	fmt.Println("Health check passed: InfluxDB is healthy")
	return 0
}

// performConfigValidation validates the configuration file and returns exit code
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Portal Base URL: %s\n", cfg.Minol.BaseURL)
	fmt.Printf("  Portal Account: %s\n", cfg.Minol.Email)
	if cfg.MQTT.Host != "" {
		fmt.Printf("  MQTT Broker: %s:%d\n", cfg.MQTT.Host, cfg.MQTT.Port)
	} else {
		fmt.Println("  MQTT Broker: auto-discover via mDNS")
	}
	fmt.Printf("  MQTT Client ID: %s\n", cfg.MQTT.ClientID)
	fmt.Printf("  Sync Interval: %s\n", cfg.Sync.Interval())
	fmt.Printf("  Months Back: %d\n", cfg.Sync.MonthsBack)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	if cfg.HistoryEnabled() {
		fmt.Println("  Consumption History: Enabled (InfluxDB)")
	} else {
		fmt.Println("  Consumption History: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
