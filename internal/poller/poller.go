// Package poller watches the device on a fixed interval and keeps a read-only
// activity snapshot for the UI: which valves and schedules are currently
// running, plus the latest telemetry. It is a one-way channel — the poller
// never touches the editable configuration document.
package poller

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/karpada/irrigation-console/db"
	"github.com/karpada/irrigation-console/internal/gateway"
	"github.com/karpada/irrigation-console/internal/metrics"
	"github.com/karpada/irrigation-console/internal/notifications"
)

// offlineThreshold is how many consecutive failed polls mark the device
// offline and raise a notification.
const offlineThreshold = 3

// Activity is a point-in-time view of what the device is doing.
// ValveActive[i] is true while zone i's valve is open; ScheduleActive[i] is
// true while schedule i is inside its watering window.
type Activity struct {
	Online         bool            `json:"online"`
	LastSeen       time.Time       `json:"last_seen"`
	Status         *gateway.Status `json:"status,omitempty"`
	ValveActive    []bool          `json:"valve_active"`
	ScheduleActive []bool          `json:"schedule_active"`
}

type Poller struct {
	client   *gateway.Client
	archive  *sql.DB
	notifier *notifications.Notifier
	interval time.Duration

	mu       sync.Mutex
	online   bool
	failures int
	last     *gateway.Status
	lastSeen time.Time
}

func New(client *gateway.Client, archive *sql.DB, notifier *notifications.Notifier, interval time.Duration) *Poller {
	return &Poller{
		client:   client,
		archive:  archive,
		notifier: notifier,
		interval: interval,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// Snapshot returns the current activity view.
func (p *Poller) Snapshot() Activity {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := Activity{
		Online:         p.online,
		LastSeen:       p.lastSeen,
		Status:         p.last,
		ValveActive:    []bool{},
		ScheduleActive: []bool{},
	}
	if p.last != nil {
		a.ValveActive = ParseBitstring(p.last.ValveStatus)
		a.ScheduleActive = ParseBitstring(p.last.ScheduleStatus)
	}
	return a
}

// ParseBitstring decodes the device's "%08b"-style status strings. The
// rightmost character is bit 0, so index i of the result is zone/schedule i.
func ParseBitstring(s string) []bool {
	out := make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = s[len(s)-1-i] == '1'
	}
	return out
}

func (p *Poller) pollOnce(ctx context.Context) {
	st, err := p.client.Status(ctx)
	if err != nil {
		p.recordFailure(err)
		return
	}
	p.recordSuccess(st)

	if p.archive != nil {
		sample := db.StatusSample{
			SampledAt:      time.Now().Unix(),
			LocalTimestamp: st.LocalTimestamp,
			SoilMoisture:   st.SoilMoisture,
			ValveStatus:    st.ValveStatus,
			ScheduleStatus: st.ScheduleStatus,
			MCUTemperature: st.MCUTemperature,
			MemAlloc:       st.MemAlloc,
		}
		if err := db.InsertStatusSample(p.archive, sample); err != nil {
			log.Warn().Err(err).Msg("Failed to archive status sample")
		}
	}

	p.emitMetrics(st)
	p.collectLog(ctx)
}

func (p *Poller) collectLog(ctx context.Context) {
	if p.archive == nil {
		return
	}
	entries, err := p.client.Log(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to fetch device log")
		return
	}
	rows := make([]db.DeviceLogEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, db.DeviceLogEntry{
			Timestamp:  e.Timestamp,
			Level:      e.Level,
			ZoneID:     e.ZoneID,
			ScheduleID: e.ScheduleID,
			Message:    e.Message,
		})
	}
	if err := db.InsertDeviceLog(p.archive, rows); err != nil {
		log.Warn().Err(err).Msg("Failed to archive device log")
	}
}

func (p *Poller) recordSuccess(st *gateway.Status) {
	p.mu.Lock()
	wasOffline := !p.online && p.failures >= offlineThreshold
	p.online = true
	p.failures = 0
	p.last = st
	p.lastSeen = time.Now()
	p.mu.Unlock()

	if wasOffline {
		log.Info().Msg("Device is back online")
		if err := p.notifier.Send("Irrigation device online", "The device is reachable again"); err != nil {
			log.Warn().Err(err).Msg("Failed to send recovery notification")
		}
	}
}

func (p *Poller) recordFailure(cause error) {
	metrics.Count("poll.failures", 1)

	p.mu.Lock()
	p.failures++
	wentOffline := p.online && p.failures >= offlineThreshold
	if wentOffline {
		p.online = false
	}
	failures := p.failures
	p.mu.Unlock()

	log.Warn().Err(cause).Int("consecutive_failures", failures).Msg("Status poll failed")
	if wentOffline {
		if err := p.notifier.Send("Irrigation device offline",
			fmt.Sprintf("%d consecutive polls failed: %v", failures, cause)); err != nil {
			log.Warn().Err(err).Msg("Failed to send offline notification")
		}
	}
}

func (p *Poller) emitMetrics(st *gateway.Status) {
	if st.SoilMoisture != nil {
		metrics.Gauge("device.soil_moisture", float64(*st.SoilMoisture))
	}
	metrics.Gauge("device.mcu_temperature", st.MCUTemperature)
	metrics.Gauge("device.mem_alloc", float64(st.MemAlloc))

	open := 0
	for _, on := range ParseBitstring(st.ValveStatus) {
		if on {
			open++
		}
	}
	metrics.Gauge("device.valves_open", float64(open))
}
