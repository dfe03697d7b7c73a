// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the Minol MQTT bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCyclesTotal tracks the total number of sync cycles attempted
	SyncCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_sync_cycles_total",
		Help: "Total number of sync cycles attempted",
	})

	// SyncCycleErrors tracks the number of sync cycles that failed
	SyncCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_sync_cycle_errors_total",
		Help: "Total number of sync cycles that aborted with an error",
	})

	// SyncCycleDuration tracks how long a full sync cycle takes
	SyncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minol_sync_cycle_duration_seconds",
		Help:    "Duration of a full sync cycle in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// AuthFailures tracks failed portal authentication attempts
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_auth_failures_total",
		Help: "Total number of failed portal authentication attempts",
	})

	// AuthDuration tracks how long the SSO handshake takes
	AuthDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minol_auth_duration_seconds",
		Help:    "Duration of the portal SSO handshake in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	// CategoryFetchErrors tracks per-category fetch failures
	CategoryFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minol_category_fetch_errors_total",
		Help: "Total number of failed consumption category fetches",
	}, []string{"category"})

	// CategoryTotal exposes the most recent total consumption per category
	CategoryTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "minol_category_total_consumption",
		Help: "Most recent total consumption per category, in the vendor unit",
	}, []string{"category"})

	// SensorsPublished tracks the number of MQTT sensor publishes
	SensorsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_sensors_published_total",
		Help: "Total number of MQTT sensor state publishes",
	})

	// DiscoveryConfigsPublished tracks the number of MQTT discovery publishes
	DiscoveryConfigsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_discovery_configs_published_total",
		Help: "Total number of MQTT discovery configuration publishes",
	})

	// HistoryWritesTotal tracks writes to the optional history sink
	HistoryWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_history_writes_total",
		Help: "Total number of points written to the consumption history sink",
	})

	// HistoryWriteErrors tracks failed writes to the optional history sink
	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minol_history_write_errors_total",
		Help: "Total number of failed writes to the consumption history sink",
	})
)
