package model

import "github.com/karpada/irrigation-console/internal/options"

// Zone is one controllable valve output. Identity is positional: a zone is
// addressed by its index in Document.Zones, and schedules reference zones by
// that index.
type Zone struct {
	Name         string `json:"name"`
	Master       bool   `json:"master"`
	ActiveIsHigh bool   `json:"active_is_high"`
	OnPin        int    `json:"on_pin"`
	OffPin       int    `json:"off_pin"` // equal to OnPin for non-latching valves

	// IrrigationFactorOverride scales watering time; -1 means compute
	// automatically from soil moisture.
	IrrigationFactorOverride float64 `json:"irrigation_factor_override"`
	SoilMoistureDry          int     `json:"soil_moisture_dry"`
	SoilMoistureWet          int     `json:"soil_moisture_wet"`
	ADCPinID                 int     `json:"adc_pin_id"`   // -1: no sensor
	PowerPinID               int     `json:"power_pin_id"` // -1: no sensor
}

// Schedule waters one zone at a recurring time of day.
type Schedule struct {
	Enabled bool `json:"enabled"`
	ZoneID  int  `json:"zone_id"` // index into Document.Zones

	StartSec    int `json:"start_sec"` // seconds since local midnight, [0,86399]
	DurationSec int `json:"duration_sec"`

	// DayMask has bit i set when weekday i is active, bit 0 = Monday.
	DayMask int `json:"day_mask"`

	EnableSoilMoistureSensor bool `json:"enable_soil_moisture_sensor"`

	// IntervalDurationSec is the pulse period for misting-style watering;
	// 0 means continuous. IntervalOnSec is the on-time within each period.
	IntervalDurationSec int `json:"interval_duration_sec"`
	IntervalOnSec       int `json:"interval_on_sec"`

	Expiry int64 `json:"expiry"` // epoch seconds, 0 = never expires
}

// Document is the device's full irrigation configuration: the exact shape the
// device serves on GET /config and accepts on POST /config.
type Document struct {
	Zones     []Zone         `json:"zones"`
	Schedules []Schedule     `json:"schedules"`
	Options   *options.Group `json:"options"`
}

// NewZone returns a zone with the editor's creation defaults.
func NewZone() Zone {
	return Zone{
		Name:                     "New Zone",
		Master:                   false,
		ActiveIsHigh:             true,
		OnPin:                    0,
		OffPin:                   0,
		IrrigationFactorOverride: -1,
		SoilMoistureDry:          300,
		SoilMoistureWet:          700,
		ADCPinID:                 12,
		PowerPinID:               13,
	}
}

// NewSchedule returns a schedule with the editor's creation defaults:
// enabled, first zone, 07:00 start, ten minutes, every weekday, no expiry.
func NewSchedule() Schedule {
	return Schedule{
		Enabled:                  true,
		ZoneID:                   0,
		StartSec:                 7 * 3600,
		DurationSec:              600,
		DayMask:                  0b1111111,
		EnableSoilMoistureSensor: true,
		IntervalDurationSec:      0,
		IntervalOnSec:            0,
		Expiry:                   0,
	}
}

// NewDocument returns an empty document with a non-nil options tree.
func NewDocument() *Document {
	return &Document{
		Zones:     []Zone{},
		Schedules: []Schedule{},
		Options:   options.NewGroup(),
	}
}

// Clone deep-copies the document so callers can hand a snapshot across
// goroutines without sharing the options tree.
func (d *Document) Clone() *Document {
	out := &Document{
		Zones:     make([]Zone, len(d.Zones)),
		Schedules: make([]Schedule, len(d.Schedules)),
		Options:   options.NewGroup(),
	}
	copy(out.Zones, d.Zones)
	copy(out.Schedules, d.Schedules)
	if d.Options != nil {
		out.Options = d.Options.Clone()
	}
	return out
}
