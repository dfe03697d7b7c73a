// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package portal

import (
	"math"
	"strings"
)

// refMarker labels the vendor's DIN reference baseline entries in the chart
// series. Chart rows whose key figure carries the marker are excluded from
// the exposed timeline; rows whose label carries it feed only the DIN
// comparison.
const refMarker = "REF"

// Normalize reshapes a raw readData payload into a ConsumptionCategory.
//
// Table rows become per-room readings with zero defaults for missing
// numeric fields; the category total is the sum of the row consumptions as
// computed here, never a separately fetched figure. Chart rows keep their
// delivered order.
func Normalize(raw *RawConsumption) *ConsumptionCategory {
	out := &ConsumptionCategory{
		ByRoom:   make([]RoomReading, 0, len(raw.Table)),
		Timeline: make([]MonthlyPoint, 0, len(raw.Chart)),
	}

	for _, row := range raw.Table {
		room := RoomReading{
			Room:                 row.Raum,
			RoomKey:              string(row.RaumKey),
			DeviceNumber:         string(row.GerNr),
			Consumption:          float64(row.Consumption),
			Unit:                 row.Unit,
			ConsumptionEvaluated: float64(row.ConsumptionBew),
			EvaluationScore:      float64(row.Bewertung),
			Reading:              float64(row.Ablesung),
			InitialReading:       float64(row.Anfangsstand),
		}
		if room.Room == "" {
			room.Room = "Unknown"
		}
		if room.Unit == "" {
			room.Unit = "KWH"
		}
		out.ByRoom = append(out.ByRoom, room)
		out.Total += room.Consumption
	}

	for _, entry := range raw.Chart {
		if entry.KeyFigure == refMarker {
			continue
		}
		out.Timeline = append(out.Timeline, MonthlyPoint{
			Period:    entry.Category,
			PeriodInt: entry.CategoryInt,
			Value:     float64(entry.Value),
			Label:     entry.Label,
			NumValues: int(entry.AnzValues),
		})
	}

	return out
}

// DINComparison computes the percentage deviation of actual consumption
// from the vendor's DIN reference baseline over a timeline.
//
// Entries labeled with the baseline marker form the reference sum, all
// others the actual sum. The comparison is defined only when the reference
// sum is strictly positive; ok is false otherwise, and callers must publish
// nothing rather than zero. The result is rounded to one decimal place.
func DINComparison(points []MonthlyPoint) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}

	var actual, ref float64
	for _, p := range points {
		if p.Label == refMarker {
			ref += p.Value
		} else {
			actual += p.Value
		}
	}

	if ref <= 0 {
		return 0, false
	}

	pct := (actual - ref) / ref * 100
	return math.Round(pct*10) / 10, true
}

// Interpretation returns the human-readable reading of a DIN comparison
// percentage, chosen by sign.
func Interpretation(pct float64) string {
	if pct > 0 {
		return "above average"
	}
	return "below average"
}

// joinAddress assembles the profile address from its parts, skipping the
// empty ones.
func joinAddress(parts ...string) string {
	filled := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			filled = append(filled, p)
		}
	}
	return strings.TrimSpace(strings.Join(filled, " "))
}
