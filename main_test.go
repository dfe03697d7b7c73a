// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/config"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
)

func TestHealthCheckHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthCheckHandler(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthCheckHandler() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if w.Body.String() != "OK" {
		t.Errorf("healthCheckHandler() body = %s, want OK", w.Body.String())
	}
}

func TestReadinessCheckHandler_NoSink(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	readinessCheckHandler(w, req, nil)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("readinessCheckHandler() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if w.Body.String() != "READY" {
		t.Errorf("readinessCheckHandler() body = %s, want READY", w.Body.String())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// Zero-rate limiter rejects every request.
	limiter := rate.NewLimiter(0, 0)
	handler := rateLimitMiddleware(limiter, healthCheckHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("rate-limited request status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}

func TestRateLimitMiddlewareAllows(t *testing.T) {
	limiter := rate.NewLimiter(10, 20)
	handler := rateLimitMiddleware(limiter, healthCheckHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("allowed request status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestPerformConfigValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `minol:
  email: user@example.com
  password: secret
mqtt:
  host: localhost
logging:
  level: info
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if code := performConfigValidation(path); code != 0 {
		t.Errorf("performConfigValidation() = %d, want 0", code)
	}
}

func TestPerformConfigValidationInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `minol:
  email: user@example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if code := performConfigValidation(path); code == 0 {
		t.Error("performConfigValidation() = 0 for invalid config, want non-zero")
	}
}

func TestPerformHealthCheck_NoHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `minol:
  email: user@example.com
  password: secret
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if code := performHealthCheck(path); code != 0 {
		t.Errorf("performHealthCheck() = %d, want 0 with no external storage", code)
	}
}

func testConfig(monthsBack int, level string) *config.Config {
	return &config.Config{
		Sync:    config.SyncConfig{IntervalHours: 6, MonthsBack: monthsBack},
		Logging: config.LoggingConfig{Level: level},
	}
}

func TestUpdateConfig(t *testing.T) {
	logger.Initialize("info")
	defer logger.Initialize("info")

	app := &App{cfg: testConfig(12, "info")}
	newCfg := testConfig(6, "debug")

	app.UpdateConfig(newCfg)

	if app.currentConfig() != newCfg {
		t.Error("currentConfig() did not return the reloaded config")
	}
	if got := app.syncMonthsBack(); got != 6 {
		t.Errorf("syncMonthsBack() = %d, want 6", got)
	}
	if got := logger.Get().GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("log level after reload = %v, want debug", got)
	}
}

func TestCurrentConfigConcurrentReload(t *testing.T) {
	app := &App{cfg: testConfig(12, "info")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			app.UpdateConfig(testConfig(12, "info"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = app.currentConfig().Sync.Interval()
			_ = app.syncMonthsBack()
		}
	}()
	wg.Wait()
}
