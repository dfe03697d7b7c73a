// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package history provides optional long-term storage of consumption
// snapshots in InfluxDB. The portal only serves a rolling window of
// monthly data, so persisting each snapshot preserves readings the portal
// will eventually drop.
package history

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/errors"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/metrics"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/portal"
)

const measurement = "minol_consumption"

// InfluxSink writes consumption snapshots to InfluxDB. Writes go through a
// circuit breaker so a down InfluxDB does not slow every sync cycle with
// connection timeouts.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
}

// NewInfluxSink connects to InfluxDB and verifies its health.
func NewInfluxSink(url, token, org, bucket string) (*InfluxSink, error) {
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, errors.NewStorageError("connect", err)
	}
	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, errors.NewStorageError("connect", fmt.Errorf("health check failed: %s", message))
	}

	logger.Info().Str("url", url).Msg("Connected to InfluxDB")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "influxdb",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		breaker:  breaker,
	}, nil
}

// RecordSnapshot writes the category totals and per-room readings of one
// snapshot. A tripped breaker turns the write into a cheap no-op error.
func (s *InfluxSink) RecordSnapshot(ctx context.Context, snap *portal.Snapshot) error {
	if snap == nil {
		return errors.NewStorageError("write", fmt.Errorf("snapshot cannot be nil"))
	}

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.writeSnapshot(ctx, snap)
	})
	if err != nil {
		metrics.HistoryWriteErrors.Inc()
		return errors.NewStorageError("write", err)
	}

	metrics.HistoryWritesTotal.Inc()
	return nil
}

func (s *InfluxSink) writeSnapshot(ctx context.Context, snap *portal.Snapshot) error {
	points := make([]*write.Point, 0)

	for _, cat := range portal.Categories() {
		category := snap.Category(cat)
		if category.Failed() {
			continue
		}

		points = append(points, influxdb2.NewPoint(
			measurement,
			map[string]string{
				"category": string(cat),
				"scope":    "total",
			},
			map[string]any{
				"consumption": category.Total,
			},
			snap.Timestamp,
		))

		for _, room := range category.ByRoom {
			points = append(points, influxdb2.NewPoint(
				measurement,
				map[string]string{
					"category": string(cat),
					"scope":    "room",
					"room":     room.Room,
					"device":   room.DeviceNumber,
				},
				map[string]any{
					"consumption":           room.Consumption,
					"consumption_evaluated": room.ConsumptionEvaluated,
					"reading":               room.Reading,
					"initial_reading":       room.InitialReading,
				},
				snap.Timestamp,
			))
		}
	}

	if len(points) == 0 {
		return nil
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return err
	}

	logger.Debug().Int("points", len(points)).Msg("Wrote snapshot to InfluxDB")
	return nil
}

// Healthy reports whether InfluxDB currently answers its health endpoint.
func (s *InfluxSink) Healthy(ctx context.Context) bool {
	health, err := s.client.Health(ctx)
	return err == nil && health.Status == "pass"
}

// Close flushes and closes the InfluxDB client.
func (s *InfluxSink) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.client.Close()
}
