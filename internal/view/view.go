// Package view renders the configuration document into a widget tree the
// frontend can lay out as editable fields, and routes edit events from those
// widgets back into document mutations. Widget values are UI-form, produced
// by the field codecs; edits travel the opposite direction through the same
// codecs.
package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karpada/irrigation-console/internal/codec"
	"github.com/karpada/irrigation-console/internal/document"
	"github.com/karpada/irrigation-console/internal/model"
	"github.com/karpada/irrigation-console/internal/options"
)

type WidgetKind string

const (
	KindCheckbox WidgetKind = "checkbox"
	KindText     WidgetKind = "text"
	KindNumber   WidgetKind = "number"
	KindTime     WidgetKind = "time"
	KindMinutes  WidgetKind = "minutes"
	KindWeekday  WidgetKind = "weekday"
	KindDateTime WidgetKind = "datetime"
	KindSelect   WidgetKind = "select"
	KindGroup    WidgetKind = "group"
)

// SelectOption is one choice in a select widget.
type SelectOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Widget is one editable field or a labeled container of them. ID is an
// opaque identifier minted per render; Path is the edit-routing address
// (e.g. "schedules.1.start_time" or "options.wifi.ssid").
type Widget struct {
	ID       string         `json:"id"`
	Path     string         `json:"path,omitempty"`
	Label    string         `json:"label"`
	Kind     WidgetKind     `json:"kind"`
	Value    any            `json:"value,omitempty"`
	Options  []SelectOption `json:"options,omitempty"`
	Children []Widget       `json:"children,omitempty"`
}

// Form is the whole document rendered for editing.
type Form struct {
	Zones     []Widget `json:"zones"`
	Schedules []Widget `json:"schedules"`
	Options   Widget   `json:"options"`
}

// Render builds the widget tree for doc. Zone selectors on schedules offer
// only non-master zones; a master zone is never a schedulable target, and
// keeping it out of the widget is how that rule is enforced.
func Render(doc *model.Document, loc *time.Location) *Form {
	form := &Form{
		Zones:     make([]Widget, 0, len(doc.Zones)),
		Schedules: make([]Widget, 0, len(doc.Schedules)),
	}

	zoneChoices := make([]SelectOption, 0, len(doc.Zones))
	for i, z := range doc.Zones {
		if !z.Master {
			zoneChoices = append(zoneChoices, SelectOption{Value: i, Label: z.Name})
		}
	}

	for i, z := range doc.Zones {
		form.Zones = append(form.Zones, renderZone(i, z))
	}
	for i, sch := range doc.Schedules {
		form.Schedules = append(form.Schedules, renderSchedule(i, sch, zoneChoices, loc))
	}
	form.Options = renderOptionsGroup("Options", "options", doc.Options)
	return form
}

func field(path, label string, kind WidgetKind, value any) Widget {
	return Widget{
		ID:    uuid.NewString(),
		Path:  path,
		Label: label,
		Kind:  kind,
		Value: value,
	}
}

func renderZone(i int, z model.Zone) Widget {
	base := fmt.Sprintf("zones.%d.", i)
	return Widget{
		ID:    uuid.NewString(),
		Label: z.Name,
		Kind:  KindGroup,
		Children: []Widget{
			field(base+"name", "Name", KindText, z.Name),
			field(base+"master", "Master", KindCheckbox, z.Master),
			field(base+"active_is_high", "Active high", KindCheckbox, z.ActiveIsHigh),
			field(base+"on_pin", "On pin", KindNumber, z.OnPin),
			field(base+"off_pin", "Off pin", KindNumber, z.OffPin),
			field(base+"irrigation_factor_override", "Irrigation factor", KindNumber, z.IrrigationFactorOverride),
			field(base+"soil_moisture_dry", "Soil moisture dry", KindNumber, z.SoilMoistureDry),
			field(base+"soil_moisture_wet", "Soil moisture wet", KindNumber, z.SoilMoistureWet),
			field(base+"adc_pin_id", "ADC pin", KindNumber, z.ADCPinID),
			field(base+"power_pin_id", "Power pin", KindNumber, z.PowerPinID),
		},
	}
}

func renderSchedule(i int, sch model.Schedule, zoneChoices []SelectOption, loc *time.Location) Widget {
	base := fmt.Sprintf("schedules.%d.", i)

	zoneSel := field(base+"zone_id", "Zone", KindSelect, sch.ZoneID)
	zoneSel.Options = zoneChoices

	children := []Widget{
		field(base+"enabled", "Enabled", KindCheckbox, sch.Enabled),
		zoneSel,
		field(base+"start_time", "Start", KindTime, codec.EncodeClock(sch.StartSec)),
		field(base+"duration_min", "Duration (min)", KindMinutes, codec.EncodeMinutes(sch.DurationSec)),
	}
	for day := 0; day < 7; day++ {
		children = append(children, field(
			fmt.Sprintf("%sday_mask.%d", base, day),
			codec.Weekdays[day],
			KindWeekday,
			codec.DayMaskGet(sch.DayMask, day),
		))
	}
	children = append(children,
		field(base+"enable_soil_moisture_sensor", "Soil moisture sensor", KindCheckbox, sch.EnableSoilMoistureSensor),
		field(base+"interval_duration_sec", "Interval (sec)", KindNumber, sch.IntervalDurationSec),
		field(base+"interval_on_sec", "Interval on (sec)", KindNumber, sch.IntervalOnSec),
		field(base+"expiry", "Expires", KindDateTime, codec.EncodeExpiry(sch.Expiry, loc)),
	)

	return Widget{
		ID:       uuid.NewString(),
		Label:    fmt.Sprintf("Schedule %d", i+1),
		Kind:     KindGroup,
		Children: children,
	}
}

// renderOptionsGroup walks the schema-free options tree. There is no declared
// shape: whatever groups and leaves the loaded document contained become
// containers and fields, to arbitrary depth. An empty group renders as a
// labeled container with zero children.
func renderOptionsGroup(label, path string, g *options.Group) Widget {
	w := Widget{
		ID:       uuid.NewString(),
		Label:    label,
		Kind:     KindGroup,
		Children: []Widget{},
	}
	if g == nil {
		return w
	}
	for _, name := range g.Keys() {
		v, _ := g.Get(name)
		child := path + "." + name
		switch t := v.(type) {
		case *options.Group:
			w.Children = append(w.Children, renderOptionsGroup(name, child, t))
		case options.Bool:
			w.Children = append(w.Children, field(child, name, KindCheckbox, bool(t)))
		case options.Text:
			w.Children = append(w.Children, field(child, name, KindText, string(t)))
		case options.Number:
			w.Children = append(w.Children, field(child, name, KindNumber, float64(t)))
		}
	}
	return w
}

// Edit is one change event from a widget: the widget's path and its new
// UI-form value.
type Edit struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Apply routes an edit event into the matching store mutation.
func Apply(store *document.Store, e Edit) error {
	if rest, ok := strings.CutPrefix(e.Path, "options."); ok {
		return store.SetOption(rest, e.Value)
	}

	parts := strings.SplitN(e.Path, ".", 3)
	if len(parts) != 3 {
		return document.EditError(fmt.Sprintf("unroutable edit path %q", e.Path))
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return document.EditError(fmt.Sprintf("unroutable edit path %q", e.Path))
	}
	switch parts[0] {
	case "zones":
		return store.UpdateZone(idx, parts[2], e.Value)
	case "schedules":
		return store.UpdateSchedule(idx, parts[2], e.Value)
	default:
		return document.EditError(fmt.Sprintf("unroutable edit path %q", e.Path))
	}
}
