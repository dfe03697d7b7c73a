// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/portal"
)

// fakeWriteAPI captures written points.
type fakeWriteAPI struct {
	points []*write.Point
	err    error
}

func (f *fakeWriteAPI) WriteRecord(_ context.Context, _ ...string) error { return f.err }

func (f *fakeWriteAPI) WritePoint(_ context.Context, points ...*write.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeWriteAPI) EnableBatching() {}

func (f *fakeWriteAPI) Flush(_ context.Context) error { return nil }

func newTestSink(api *fakeWriteAPI) *InfluxSink {
	return &InfluxSink{
		writeAPI: api,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "influxdb-test",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func testSnapshot() *portal.Snapshot {
	return &portal.Snapshot{
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Categories: map[portal.Category]*portal.ConsumptionCategory{
			portal.CategoryHeating: {
				ByRoom: []portal.RoomReading{
					{Room: "Wohnzimmer", DeviceNumber: "111", Consumption: 60},
					{Room: "Bad", DeviceNumber: "222", Consumption: 40},
				},
				Total: 100,
			},
			portal.CategoryHotWater: {
				ByRoom: []portal.RoomReading{{Room: "Bad", DeviceNumber: "333", Consumption: 12.5}},
				Total:  12.5,
			},
			portal.CategoryColdWater: {Err: "fetch failed"},
		},
	}
}

func TestRecordSnapshot(t *testing.T) {
	api := &fakeWriteAPI{}
	sink := newTestSink(api)

	if err := sink.RecordSnapshot(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	// One total point per healthy category plus one point per room:
	// heating (1 + 2) + hot water (1 + 1); the failed category writes
	// nothing.
	if len(api.points) != 5 {
		t.Errorf("points written = %d, want 5", len(api.points))
	}

	var totals, rooms int
	for _, p := range api.points {
		for _, tag := range p.TagList() {
			if tag.Key != "scope" {
				continue
			}
			switch tag.Value {
			case "total":
				totals++
			case "room":
				rooms++
			}
		}
	}
	if totals != 2 || rooms != 3 {
		t.Errorf("totals = %d, rooms = %d; want 2 and 3", totals, rooms)
	}
}

func TestRecordSnapshotNil(t *testing.T) {
	sink := newTestSink(&fakeWriteAPI{})
	if err := sink.RecordSnapshot(context.Background(), nil); err == nil {
		t.Error("RecordSnapshot(nil) expected error, got nil")
	}
}

func TestRecordSnapshotAllCategoriesFailed(t *testing.T) {
	api := &fakeWriteAPI{}
	sink := newTestSink(api)

	snap := &portal.Snapshot{
		Timestamp: time.Now(),
		Categories: map[portal.Category]*portal.ConsumptionCategory{
			portal.CategoryHeating:   {Err: "fail"},
			portal.CategoryHotWater:  {Err: "fail"},
			portal.CategoryColdWater: {Err: "fail"},
		},
	}
	if err := sink.RecordSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}
	if len(api.points) != 0 {
		t.Errorf("points written = %d, want 0", len(api.points))
	}
}

func TestRecordSnapshotBreakerTrips(t *testing.T) {
	api := &fakeWriteAPI{err: errors.New("connection refused")}
	sink := newTestSink(api)
	snap := testSnapshot()

	for i := 0; i < 3; i++ {
		if err := sink.RecordSnapshot(context.Background(), snap); err == nil {
			t.Fatalf("RecordSnapshot() call %d expected error", i+1)
		}
	}

	if state := sink.breaker.State(); state != gobreaker.StateOpen {
		t.Errorf("breaker state = %v, want open after consecutive failures", state)
	}

	// With the breaker open the write API is no longer reached.
	api.err = nil
	before := len(api.points)
	if err := sink.RecordSnapshot(context.Background(), snap); err == nil {
		t.Error("RecordSnapshot() with open breaker expected error")
	}
	if len(api.points) != before {
		t.Error("open breaker must not reach the write API")
	}
}
