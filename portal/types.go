// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package portal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Category identifies one consumption category of the customer portal.
type Category string

const (
	// CategoryHeating is heating energy consumption (kWh).
	CategoryHeating Category = "heating"
	// CategoryHotWater is hot water consumption (m³).
	CategoryHotWater Category = "hot_water"
	// CategoryColdWater is cold water consumption (m³).
	CategoryColdWater Category = "cold_water"
)

// Categories returns all consumption categories in publish order.
func Categories() []Category {
	return []Category{CategoryHeating, CategoryHotWater, CategoryColdWater}
}

// categoryRequest maps a category to the vendor's consumption-type code and
// dialog key used in the readData request body.
var categoryRequest = map[Category]struct {
	consType string
	dlgKey   string
}{
	CategoryHeating:   {consType: "HEIZUNG", dlgKey: "100EH"},
	CategoryHotWater:  {consType: "WARMWASSER", dlgKey: "100WW"},
	CategoryColdWater: {consType: "KALTWASSER", dlgKey: "100KW"},
}

// RoomReading is the normalized form of one per-room table row.
type RoomReading struct {
	Room                 string  `json:"room_name"`
	RoomKey              string  `json:"room_key,omitempty"`
	DeviceNumber         string  `json:"device_number"`
	Consumption          float64 `json:"consumption"`
	Unit                 string  `json:"unit"`
	ConsumptionEvaluated float64 `json:"consumption_evaluated"`
	EvaluationScore      float64 `json:"evaluation_score"`
	Reading              float64 `json:"reading"`
	InitialReading       float64 `json:"initial_reading"`
}

// MonthlyPoint is one entry of the aggregate monthly timeline.
// The vendor only delivers the timeline at account level; there is no
// per-room history.
type MonthlyPoint struct {
	Period    string  `json:"period"`     // e.g. "202411"
	PeriodInt int64   `json:"period_int"` // integer-sortable period key
	Value     float64 `json:"value"`
	Label     string  `json:"label"` // "REF" marks the baseline entries
	NumValues int     `json:"num_values"`
}

// ConsumptionCategory holds the normalized result for one category.
// A non-empty Err means the fetch for this category failed and the other
// fields must be ignored by consumers.
type ConsumptionCategory struct {
	ByRoom   []RoomReading  `json:"by_room"`
	Timeline []MonthlyPoint `json:"timeline"`
	Total    float64        `json:"total_consumption"`
	Err      string         `json:"error,omitempty"`
}

// Failed reports whether the fetch for this category failed.
func (c *ConsumptionCategory) Failed() bool {
	return c == nil || c.Err != ""
}

// Profile carries the customer fields published on the info sensor.
type Profile struct {
	Email          string `json:"email"`
	CustomerNumber string `json:"customer_number"`
	TenantNumber   string `json:"tenant_number"`
	PropertyNumber string `json:"property_number"`
	Floor          string `json:"floor"`
	Position       string `json:"position"`
	Address        string `json:"address"`
	Name           string `json:"name"`
	MoveInDate     string `json:"move_in_date"`
}

// Snapshot is the full normalized consumption result for one sync attempt.
// It is created fresh per fetch and superseded entirely by the next one.
type Snapshot struct {
	Timestamp   time.Time                          `json:"timestamp"`
	PeriodStart string                             `json:"period_start"` // YYYYMM
	PeriodEnd   string                             `json:"period_end"`   // YYYYMM
	Categories  map[Category]*ConsumptionCategory  `json:"categories"`
	Profile     *Profile                           `json:"profile,omitempty"`
}

// Category returns the normalized data for one category, or nil.
func (s *Snapshot) Category(cat Category) *ConsumptionCategory {
	if s == nil {
		return nil
	}
	return s.Categories[cat]
}

// RawConsumption is the decoded readData response: a per-room table and a
// monthly chart series. The vendor schema is consumed as-is; unknown fields
// are ignored.
type RawConsumption struct {
	Table []RawRoomRow    `json:"table"`
	Chart []RawChartPoint `json:"chart"`
}

// RawRoomRow is one vendor table row.
type RawRoomRow struct {
	Raum           string     `json:"raum"`
	RaumKey        flexString `json:"raumKey"`
	GerNr          flexString `json:"gerNr"`
	Consumption    flexNumber `json:"consumption"`
	Unit           string     `json:"unit"`
	ConsumptionBew flexNumber `json:"consumptionBew"`
	Bewertung      flexNumber `json:"bewertung"`
	Ablesung       flexNumber `json:"ablesung"`
	Anfangsstand   flexNumber `json:"anfangsstand"`
}

// RawChartPoint is one vendor chart entry.
type RawChartPoint struct {
	Category    string     `json:"category"`
	CategoryInt int64      `json:"categoryInt"`
	Value       flexNumber `json:"value"`
	Label       string     `json:"label"`
	KeyFigure   string     `json:"keyFigure"`
	AnzValues   flexNumber `json:"anzValues"`
}

// rawTenant is one record of the getUserTenants response.
type rawTenant struct {
	UserNumber   flexString `json:"userNumber"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Nenr         string     `json:"nenr"`
	Lgnr         string     `json:"lgnr"`
	GeschossText string     `json:"geschossText"`
	LageText     string     `json:"lageText"`
	AddrStreet   string     `json:"addrStreet"`
	AddrHouseNum string     `json:"addrHouseNum"`
	AddrPostal   string     `json:"addrPostalCode"`
	AddrCity     string     `json:"addrCity"`
	EinzugMieter string     `json:"einzugMieter"`
}

// flexNumber is a tolerant JSON number: it accepts numbers, numeric strings
// and null. Anything that cannot be coerced decodes as zero for that single
// value instead of failing the whole document.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*n = 0
		return nil
	}
	*n = flexNumber(v)
	return nil
}

// flexString is a tolerant JSON string: it accepts strings, numbers and
// null. Device numbers in particular show up both quoted and unquoted.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			*s = ""
			return nil
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*s = ""
		return nil
	}
	*s = flexString(n.String())
	return nil
}
