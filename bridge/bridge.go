// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package bridge orchestrates the sync cycle: authenticate against the
// customer portal, fetch a fresh consumption snapshot and publish it as
// Home Assistant sensors over MQTT.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/interfaces"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/metrics"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/portal"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/publisher"
)

// SnapshotSource is the portal session a cycle runs against. A fresh
// source is created per cycle so a stale session from a failed run never
// leaks into the next one.
type SnapshotSource interface {
	Authenticate(ctx context.Context) error
	Snapshot(ctx context.Context, monthsBack int, forceRefresh bool) (*portal.Snapshot, error)
}

// HistorySink receives each successful snapshot for long-term storage.
type HistorySink interface {
	RecordSnapshot(ctx context.Context, snap *portal.Snapshot) error
}

// categoryMeta is the fixed Home Assistant presentation of one category.
type categoryMeta struct {
	name        string
	unit        string
	icon        string
	deviceClass string
}

var categoryPresentation = map[portal.Category]categoryMeta{
	portal.CategoryHeating:   {name: "Heating", unit: "kWh", icon: "mdi:radiator", deviceClass: publisher.DeviceClassEnergy},
	portal.CategoryHotWater:  {name: "Hot Water", unit: "m³", icon: "mdi:water-thermometer", deviceClass: publisher.DeviceClassWater},
	portal.CategoryColdWater: {name: "Cold Water", unit: "m³", icon: "mdi:water-pump", deviceClass: publisher.DeviceClassWater},
}

// Bridge runs sync cycles against one portal account and one broker.
type Bridge struct {
	newSource  func() (SnapshotSource, error)
	pub        interfaces.Publisher
	history    HistorySink
	monthsBack func() int
}

// New creates a bridge. newSource builds a fresh portal session per cycle
// and monthsBack is consulted per cycle so a reloaded sync window applies
// without a restart; history may be nil when no long-term storage is
// configured.
func New(newSource func() (SnapshotSource, error), pub interfaces.Publisher, history HistorySink, monthsBack func() int) *Bridge {
	return &Bridge{
		newSource:  newSource,
		pub:        pub,
		history:    history,
		monthsBack: monthsBack,
	}
}

// RunCycle executes one full sync. An authentication failure aborts the
// cycle before anything is published so retained sensor states from the
// previous successful run stay untouched. A single failed category only
// suppresses that category's sensors.
func (b *Bridge) RunCycle(ctx context.Context) error {
	start := time.Now()
	metrics.SyncCyclesTotal.Inc()
	defer func() {
		metrics.SyncCycleDuration.Observe(time.Since(start).Seconds())
	}()

	source, err := b.newSource()
	if err != nil {
		metrics.SyncCycleErrors.Inc()
		return fmt.Errorf("failed to create portal session: %w", err)
	}

	logger.Info().Msg("Starting authentication")
	if err := source.Authenticate(ctx); err != nil {
		metrics.SyncCycleErrors.Inc()
		logger.Error().Err(err).Msg("Authentication failed, retrying next cycle")
		return err
	}

	monthsBack := b.monthsBack()
	logger.Info().Int("months_back", monthsBack).Msg("Fetching consumption data")
	snap, err := source.Snapshot(ctx, monthsBack, true)
	if err != nil {
		metrics.SyncCycleErrors.Inc()
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	b.publishCustomerInfo(snap.Profile)

	for _, cat := range portal.Categories() {
		category := snap.Category(cat)
		if category.Failed() {
			logger.Warn().Str("category", string(cat)).Str("error", category.Err).Msg("Skipping failed category")
			continue
		}
		b.publishCategoryTotal(cat, category, snap.Timestamp)
		b.publishRooms(cat, category)
		b.publishDINComparison(cat, category)
		metrics.CategoryTotal.WithLabelValues(string(cat)).Set(category.Total)
	}

	if b.history != nil {
		if err := b.history.RecordSnapshot(ctx, snap); err != nil {
			logger.Warn().Err(err).Msg("History write failed")
		}
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Sync cycle completed")
	return nil
}

// publishCustomerInfo publishes the account profile as a diagnostic sensor.
// The state is the customer number; the profile fields ride as attributes.
func (b *Bridge) publishCustomerInfo(profile *portal.Profile) {
	if profile == nil {
		return
	}

	def := interfaces.SensorDefinition{
		ID:            "customer_info",
		Name:          "Minol Customer Info",
		Icon:          "mdi:account",
		HasAttributes: true,
	}
	if err := b.pub.PublishDiscovery(def); err != nil {
		logger.Error().Err(err).Msg("Failed to publish customer info discovery")
		return
	}

	state := profile.CustomerNumber
	if state == "" {
		state = "N/A"
	}
	if err := b.pub.PublishState(def.ID, state); err != nil {
		logger.Error().Err(err).Msg("Failed to publish customer info state")
		return
	}

	attrs := map[string]any{
		"email":           profile.Email,
		"customer_number": profile.CustomerNumber,
		"tenant_number":   profile.TenantNumber,
		"property_number": profile.PropertyNumber,
		"floor":           profile.Floor,
		"position":        profile.Position,
		"address":         profile.Address,
		"name":            profile.Name,
		"move_in_date":    profile.MoveInDate,
	}
	if err := b.pub.PublishAttributes(def.ID, attrs); err != nil {
		logger.Error().Err(err).Msg("Failed to publish customer info attributes")
	}
}

// publishCategoryTotal publishes the category's total consumption sensor
// with the monthly timeline and the DIN comparison as attributes.
func (b *Bridge) publishCategoryTotal(cat portal.Category, category *portal.ConsumptionCategory, timestamp time.Time) {
	meta := categoryPresentation[cat]
	id := string(cat) + "_total"

	def := interfaces.SensorDefinition{
		ID:            id,
		Name:          fmt.Sprintf("Minol %s Total", meta.name),
		Unit:          meta.unit,
		Icon:          meta.icon,
		DeviceClass:   meta.deviceClass,
		StateClass:    publisher.StateClassTotalIncreasing,
		HasAttributes: true,
	}
	if err := b.pub.PublishDiscovery(def); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish discovery")
		return
	}

	if err := b.pub.PublishState(id, formatValue(category.Total)); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish state")
		return
	}

	monthly := make([]map[string]any, 0, len(category.Timeline))
	for _, entry := range category.Timeline {
		monthly = append(monthly, map[string]any{
			"period": entry.Period,
			"value":  entry.Value,
			"label":  entry.Label,
		})
	}

	attrs := map[string]any{
		"monthly_data": monthly,
		"last_update":  timestamp.Format(time.RFC3339),
	}
	if pct, ok := portal.DINComparison(category.Timeline); ok {
		attrs["din_comparison_percent"] = pct
	} else {
		attrs["din_comparison_percent"] = nil
	}

	if err := b.pub.PublishAttributes(id, attrs); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish attributes")
	}
}

// publishRooms publishes one sensor per room/device row of the category.
// The vendor only delivers the timeline at account level, so each room
// sensor carries the overall timeline in its attributes with an explicit
// note.
func (b *Bridge) publishRooms(cat portal.Category, category *portal.ConsumptionCategory) {
	meta := categoryPresentation[cat]

	overall := make([]map[string]any, 0, len(category.Timeline))
	for _, entry := range category.Timeline {
		overall = append(overall, map[string]any{
			"period": entry.Period,
			"value":  entry.Value,
		})
	}

	for _, room := range category.ByRoom {
		id := Slug(cat, room.Room, room.DeviceNumber)

		name := fmt.Sprintf("Minol %s %s", room.Room, meta.name)
		if room.DeviceNumber != "" {
			name = fmt.Sprintf("%s (%s)", name, room.DeviceNumber)
		}

		def := interfaces.SensorDefinition{
			ID:            id,
			Name:          name,
			Unit:          meta.unit,
			Icon:          meta.icon,
			DeviceClass:   meta.deviceClass,
			StateClass:    publisher.StateClassTotalIncreasing,
			HasAttributes: true,
		}
		if err := b.pub.PublishDiscovery(def); err != nil {
			logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish discovery")
			continue
		}

		if err := b.pub.PublishState(id, formatValue(room.Consumption)); err != nil {
			logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish state")
			continue
		}

		attrs := map[string]any{
			"room_name":             room.Room,
			"device_number":         room.DeviceNumber,
			"current_reading":       room.Reading,
			"initial_reading":       room.InitialReading,
			"consumption":           room.Consumption,
			"evaluation_factor":     room.EvaluationScore,
			"unit_raw":              room.Unit,
			"consumption_evaluated": room.ConsumptionEvaluated,
			"monthly_history": map[string]any{
				"overall_timeline": overall,
				"note":             "Per-room timeline not available from API. Showing overall consumption timeline.",
			},
		}
		if err := b.pub.PublishAttributes(id, attrs); err != nil {
			logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish attributes")
		}
	}
}

// publishDINComparison publishes the category's DIN baseline deviation as
// its own sensor. The sensor is skipped entirely when no baseline data is
// present.
func (b *Bridge) publishDINComparison(cat portal.Category, category *portal.ConsumptionCategory) {
	pct, ok := portal.DINComparison(category.Timeline)
	if !ok {
		return
	}

	meta := categoryPresentation[cat]
	id := string(cat) + "_din_comparison"

	def := interfaces.SensorDefinition{
		ID:            id,
		Name:          fmt.Sprintf("Minol %s DIN Comparison", meta.name),
		Unit:          "%",
		Icon:          "mdi:chart-line",
		StateClass:    publisher.StateClassMeasurement,
		HasAttributes: true,
	}
	if err := b.pub.PublishDiscovery(def); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish discovery")
		return
	}

	if err := b.pub.PublishState(id, formatValue(pct)); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish state")
		return
	}

	attrs := map[string]any{
		"interpretation":         portal.Interpretation(pct),
		"din_comparison_percent": pct,
	}
	if err := b.pub.PublishAttributes(id, attrs); err != nil {
		logger.Error().Err(err).Str("sensor", id).Msg("Failed to publish attributes")
	}
}

// Slug derives the stable sensor ID for a room/device pair: the category
// key, the room name reduced to lowercase alphanumerics, and the device
// number reduced to alphanumerics. An empty device part is omitted along
// with its separator.
func Slug(cat portal.Category, room, device string) string {
	safeRoom := strings.ToLower(keepAlnum(room))
	safeDevice := keepAlnum(device)
	if safeDevice == "" {
		return fmt.Sprintf("%s_%s", cat, safeRoom)
	}
	return fmt.Sprintf("%s_%s_%s", cat, safeRoom, safeDevice)
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatValue renders a numeric state without trailing zeros.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
