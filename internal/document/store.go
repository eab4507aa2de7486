// Package document owns the single in-memory configuration document and every
// mutation it supports. All edits go through the Store, which serializes them
// behind one mutex and keeps the zone/schedule invariant intact: every
// schedule's zone_id is a valid index into the zone list whenever the document
// is observable.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/karpada/irrigation-console/internal/codec"
	"github.com/karpada/irrigation-console/internal/model"
	"github.com/karpada/irrigation-console/internal/options"
)

// EditError is a user-correctable validation failure. The edit that produced
// it has not been applied.
type EditError string

func (e EditError) Error() string { return string(e) }

const (
	ErrNoZones          = EditError("cannot add a schedule without any zones")
	ErrZoneNotFound     = EditError("zone not found")
	ErrScheduleNotFound = EditError("schedule not found")
	ErrUnknownField     = EditError("unknown field")
)

// ErrMalformedDocument marks an import payload that did not parse as a
// configuration document. The in-memory document is untouched.
var ErrMalformedDocument = errors.New("malformed configuration document")

// Event tells subscribers how much of the document changed.
type Event int

const (
	// EventReplace: the whole document was swapped out; re-render everything.
	EventReplace Event = iota
	// EventStructure: entities were added or removed; re-render collections.
	EventStructure
	// EventField: a single field changed in place.
	EventField
)

type Listener func(Event)

// Store holds the one live document for the editor session. It is created
// empty, filled by Replace (load or import), mutated in place by user edits,
// and replaced wholesale by the next load or import. A replace that arrives
// while unsaved edits exist silently discards them; that is the documented
// contract, not an accident.
type Store struct {
	mu        sync.Mutex
	doc       *model.Document
	loc       *time.Location
	listeners []Listener
}

// NewStore returns a store with an empty document. loc is the operator's
// timezone, used by the expiry codec; nil means time.Local.
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{doc: model.NewDocument(), loc: loc}
}

// Subscribe registers a listener invoked after every successful mutation.
// Listeners run outside the store lock and may read the store.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) snapshot() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func notifyAll(ls []Listener, e Event) {
	for _, l := range ls {
		l(e)
	}
}

// Document returns a deep copy of the current document.
func (s *Store) Document() *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Location returns the timezone edits are interpreted in.
func (s *Store) Location() *time.Location { return s.loc }

// Replace swaps in a whole new document atomically and triggers a full
// re-render. Used by device load and by successful import.
func (s *Store) Replace(doc *model.Document) {
	if doc.Zones == nil {
		doc.Zones = []model.Zone{}
	}
	if doc.Schedules == nil {
		doc.Schedules = []model.Schedule{}
	}
	if doc.Options == nil {
		doc.Options = options.NewGroup()
	}
	s.mu.Lock()
	s.doc = doc
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventReplace)
}

// Export serializes the current document in the device wire shape.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	doc := s.doc.Clone()
	s.mu.Unlock()
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export document: %w", err)
	}
	return out, nil
}

// Import parses raw as a full document and replaces the current one. A parse
// failure leaves the in-memory document untouched and returns
// ErrMalformedDocument; parsing happens entirely on a scratch value before
// anything is swapped in.
func (s *Store) Import(raw []byte) error {
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	s.Replace(&doc)
	return nil
}

// AddZone appends a zone with creation defaults and returns its index.
// It always succeeds.
func (s *Store) AddZone() int {
	s.mu.Lock()
	s.doc.Zones = append(s.doc.Zones, model.NewZone())
	idx := len(s.doc.Zones) - 1
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventStructure)
	return idx
}

// RemoveZone removes the zone at index i and repairs the schedule collection
// in the same step: schedules targeting i are deleted, schedules targeting a
// later zone have their zone_id decremented, earlier ones are untouched.
// The cascade is applied as one edit; partial application is never observable.
func (s *Store) RemoveZone(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.doc.Zones) {
		s.mu.Unlock()
		return ErrZoneNotFound
	}
	s.doc.Zones = append(s.doc.Zones[:i], s.doc.Zones[i+1:]...)

	kept := make([]model.Schedule, 0, len(s.doc.Schedules))
	for _, sch := range s.doc.Schedules {
		switch {
		case sch.ZoneID == i:
			continue
		case sch.ZoneID > i:
			sch.ZoneID--
		}
		kept = append(kept, sch)
	}
	s.doc.Schedules = kept
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventStructure)
	return nil
}

// AddSchedule appends a schedule with creation defaults targeting zone 0.
// It fails without mutating anything when no zones exist.
func (s *Store) AddSchedule() (int, error) {
	s.mu.Lock()
	if len(s.doc.Zones) == 0 {
		s.mu.Unlock()
		return 0, ErrNoZones
	}
	s.doc.Schedules = append(s.doc.Schedules, model.NewSchedule())
	idx := len(s.doc.Schedules) - 1
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventStructure)
	return idx, nil
}

// RemoveSchedule removes the schedule at index i.
func (s *Store) RemoveSchedule(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.doc.Schedules) {
		s.mu.Unlock()
		return ErrScheduleNotFound
	}
	s.doc.Schedules = append(s.doc.Schedules[:i], s.doc.Schedules[i+1:]...)
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventStructure)
	return nil
}

// UpdateZone writes one zone field. value carries the UI form and is routed
// through the field's codec before it lands in the document. A failed edit
// leaves the zone exactly as it was; conversion happens on a scratch value
// and the struct is only written after every check has passed.
func (s *Store) UpdateZone(i int, field string, value any) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.doc.Zones) {
		s.mu.Unlock()
		return ErrZoneNotFound
	}
	z := &s.doc.Zones[i]
	var apply func()
	var err error
	switch field {
	case "name":
		var v string
		if v, err = asText(value); err == nil {
			apply = func() { z.Name = v }
		}
	case "master":
		var v bool
		if v, err = asBool(value); err == nil {
			apply = func() { z.Master = v }
		}
	case "active_is_high":
		var v bool
		if v, err = asBool(value); err == nil {
			apply = func() { z.ActiveIsHigh = v }
		}
	case "on_pin":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.OnPin = v }
		}
	case "off_pin":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.OffPin = v }
		}
	case "irrigation_factor_override":
		var v float64
		if v, err = asNumber(value); err == nil {
			apply = func() { z.IrrigationFactorOverride = v }
		}
	case "soil_moisture_dry":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.SoilMoistureDry = v }
		}
	case "soil_moisture_wet":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.SoilMoistureWet = v }
		}
	case "adc_pin_id":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.ADCPinID = v }
		}
	case "power_pin_id":
		var v int
		if v, err = asInt(value); err == nil {
			apply = func() { z.PowerPinID = v }
		}
	default:
		err = fmt.Errorf("%w: zone field %q", ErrUnknownField, field)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	apply()
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventField)
	return nil
}

// UpdateSchedule writes one schedule field from its UI form: "start_time" is
// "HH:MM", "duration_min" decimal minutes, "expiry" a local date-time string
// (empty = never), and "day_mask.K" toggles weekday bit K with a boolean.
// A failed edit leaves the schedule exactly as it was; nothing is written to
// the struct until conversion and validation have both passed.
func (s *Store) UpdateSchedule(i int, field string, value any) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.doc.Schedules) {
		s.mu.Unlock()
		return ErrScheduleNotFound
	}
	sch := &s.doc.Schedules[i]
	var apply func()
	var err error
	switch {
	case field == "enabled":
		var v bool
		if v, err = asBool(value); err == nil {
			apply = func() { sch.Enabled = v }
		}
	case field == "zone_id":
		var id int
		if id, err = asInt(value); err == nil {
			if id < 0 || id >= len(s.doc.Zones) {
				err = ErrZoneNotFound
			} else {
				apply = func() { sch.ZoneID = id }
			}
		}
	case field == "start_time":
		var raw string
		if raw, err = asText(value); err == nil {
			var sec int
			if sec, err = codec.DecodeClock(raw); err == nil {
				apply = func() { sch.StartSec = sec }
			}
		}
	case field == "duration_min":
		var min float64
		if min, err = asNumber(value); err == nil {
			if min < 0 {
				err = EditError("duration must not be negative")
			} else {
				sec := codec.DecodeMinutes(min)
				apply = func() { sch.DurationSec = sec }
			}
		}
	case strings.HasPrefix(field, "day_mask."):
		var day int
		var on bool
		if day, err = strconv.Atoi(strings.TrimPrefix(field, "day_mask.")); err != nil || day < 0 || day > 6 {
			err = fmt.Errorf("%w: schedule field %q", ErrUnknownField, field)
		} else if on, err = asBool(value); err == nil {
			apply = func() { sch.DayMask = codec.DayMaskSet(sch.DayMask, day, on) }
		}
	case field == "enable_soil_moisture_sensor":
		var v bool
		if v, err = asBool(value); err == nil {
			apply = func() { sch.EnableSoilMoistureSensor = v }
		}
	case field == "interval_duration_sec":
		var v int
		if v, err = asInt(value); err == nil {
			if v < 0 {
				err = EditError("interval duration must not be negative")
			} else {
				apply = func() { sch.IntervalDurationSec = v }
			}
		}
	case field == "interval_on_sec":
		var v int
		if v, err = asInt(value); err == nil {
			if v < 0 {
				err = EditError("interval on-time must not be negative")
			} else {
				apply = func() { sch.IntervalOnSec = v }
			}
		}
	case field == "expiry":
		var raw string
		if raw, err = asText(value); err == nil {
			var epoch int64
			if epoch, err = codec.DecodeExpiry(raw, s.loc); err == nil {
				apply = func() { sch.Expiry = epoch }
			}
		}
	default:
		err = fmt.Errorf("%w: schedule field %q", ErrUnknownField, field)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	apply()
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventField)
	return nil
}

// SetOption writes an options leaf in its frozen kind. path is relative to
// the options root, e.g. "wifi.ssid".
func (s *Store) SetOption(path string, value any) error {
	var v options.Value
	switch t := value.(type) {
	case bool:
		v = options.Bool(t)
	case string:
		v = options.Text(t)
	case float64:
		v = options.Number(t)
	case int:
		v = options.Number(float64(t))
	default:
		return EditError(fmt.Sprintf("option value for %q must be bool, text or number", path))
	}
	s.mu.Lock()
	if err := s.doc.Options.Set(path, v); err != nil {
		s.mu.Unlock()
		return EditError(err.Error())
	}
	ls := s.snapshot()
	s.mu.Unlock()
	notifyAll(ls, EventField)
	return nil
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, EditError(fmt.Sprintf("expected boolean, got %T", v))
	}
	return b, nil
}

func asText(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", EditError(fmt.Sprintf("expected text, got %T", v))
	}
	return s, nil
}

func asNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	default:
		return 0, EditError(fmt.Sprintf("expected number, got %T", v))
	}
}

func asInt(v any) (int, error) {
	f, err := asNumber(v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
