// Package db is the console's local SQLite archive of device telemetry. The
// device keeps its status in RAM and loses it on reboot; the console records
// each polled status sample and log line so history survives on this side.
// The archive never stores the editable configuration document.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS status_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sampled_at INTEGER NOT NULL,
	local_timestamp INTEGER NOT NULL,
	soil_moisture INTEGER,
	valve_status TEXT NOT NULL,
	schedule_status TEXT NOT NULL,
	mcu_temperature REAL NOT NULL,
	mem_alloc INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS device_log (
	timestamp INTEGER NOT NULL,
	level TEXT NOT NULL,
	zone_id INTEGER,
	schedule_id INTEGER,
	message TEXT NOT NULL,
	UNIQUE(timestamp, level, message) ON CONFLICT IGNORE
);
`

// Open opens (creating if needed) the archive database and applies the schema.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}
	return conn, nil
}

// StatusSample is one polled /status response. SampledAt is the console's
// clock; LocalTimestamp is the device's.
type StatusSample struct {
	SampledAt      int64
	LocalTimestamp int64
	SoilMoisture   *int
	ValveStatus    string
	ScheduleStatus string
	MCUTemperature float64
	MemAlloc       int64
}

// DeviceLogEntry is one line of the device's log.
type DeviceLogEntry struct {
	Timestamp  int64  `json:"timestamp"`
	Level      string `json:"level"`
	ZoneID     *int   `json:"zone_id"`
	ScheduleID *int   `json:"schedule_id"`
	Message    string `json:"message"`
}

// InsertStatusSample records one poll result.
func InsertStatusSample(conn *sql.DB, s StatusSample) error {
	_, err := conn.Exec(
		`INSERT INTO status_samples (sampled_at, local_timestamp, soil_moisture, valve_status, schedule_status, mcu_temperature, mem_alloc) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SampledAt, s.LocalTimestamp, s.SoilMoisture, s.ValveStatus, s.ScheduleStatus, s.MCUTemperature, s.MemAlloc)
	if err != nil {
		return fmt.Errorf("failed to insert status sample: %w", err)
	}
	return nil
}

// InsertDeviceLog records a batch of log lines in one transaction. Lines the
// archive has already seen are skipped by the unique constraint, so repeated
// polls of the same device log are harmless.
func InsertDeviceLog(conn *sql.DB, entries []DeviceLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.Exec(
			`INSERT INTO device_log (timestamp, level, zone_id, schedule_id, message) VALUES (?, ?, ?, ?, ?)`,
			e.Timestamp, e.Level, e.ZoneID, e.ScheduleID, e.Message); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}
	return tx.Commit()
}

// RecentDeviceLog returns up to limit log lines, newest first.
func RecentDeviceLog(conn *sql.DB, limit int) ([]DeviceLogEntry, error) {
	rows, err := conn.Query(
		`SELECT timestamp, level, zone_id, schedule_id, message FROM device_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query device log: %w", err)
	}
	defer rows.Close()

	var out []DeviceLogEntry
	for rows.Next() {
		var e DeviceLogEntry
		if err := rows.Scan(&e.Timestamp, &e.Level, &e.ZoneID, &e.ScheduleID, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentStatusSamples returns up to limit samples, newest first.
func RecentStatusSamples(conn *sql.DB, limit int) ([]StatusSample, error) {
	rows, err := conn.Query(
		`SELECT sampled_at, local_timestamp, soil_moisture, valve_status, schedule_status, mcu_temperature, mem_alloc FROM status_samples ORDER BY sampled_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query status samples: %w", err)
	}
	defer rows.Close()

	var out []StatusSample
	for rows.Next() {
		var s StatusSample
		if err := rows.Scan(&s.SampledAt, &s.LocalTimestamp, &s.SoilMoisture, &s.ValveStatus, &s.ScheduleStatus, &s.MCUTemperature, &s.MemAlloc); err != nil {
			return nil, fmt.Errorf("failed to scan status sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
