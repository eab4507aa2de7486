// Package gateway is the HTTP client for the irrigation device itself: the
// one collaborator that persists and executes the configuration. All calls
// are context-bound, return typed transport errors, and never retry; failure
// handling is the caller's decision.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/karpada/irrigation-console/internal/model"
)

// TransportError is a device call that did not complete: unreachable host or
// a non-success status. No local state changed as a result.
type TransportError struct {
	Op     string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("device %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Status is the device's self-report, served on GET /status. ValveStatus and
// ScheduleStatus are bitstrings, rightmost character = zone/schedule 0.
type Status struct {
	Hostname       string  `json:"hostname"`
	LocalTimestamp int64   `json:"local_timestamp"`
	SoilMoisture   *int    `json:"soil_moisture"` // null when no sensor fitted
	ValveStatus    string  `json:"valve_status"`
	ScheduleStatus string  `json:"schedule_status"`
	MCUTemperature float64 `json:"mcu_temperature"`
	MemAlloc       int64   `json:"gc.mem_alloc"`
}

// LogEntry is one line of the device's in-memory log, served on GET /log.
type LogEntry struct {
	Timestamp  int64  `json:"timestamp"`
	Level      string `json:"level"`
	ZoneID     *int   `json:"zone_id"`
	ScheduleID *int   `json:"schedule_id"`
	Message    string `json:"message"`
}

type logResponse struct {
	Log []LogEntry `json:"log"`
}

// Client talks to one device.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("device url: %w", err)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch retrieves the full configuration document from the device.
func (c *Client) Fetch(ctx context.Context) (*model.Document, error) {
	body, err := c.do(ctx, http.MethodGet, "/config", nil, nil)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &TransportError{Op: "fetch config", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &doc, nil
}

// Persist sends the full document to the device, which applies it and stores
// it to flash. The console's local model is not changed by this call in
// either outcome.
func (c *Client) Persist(ctx context.Context, doc *model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/config", nil, raw)
	return err
}

// Pause suspends all scheduled irrigation for durationSec seconds.
func (c *Client) Pause(ctx context.Context, durationSec int) error {
	q := url.Values{"duration_sec": {strconv.Itoa(durationSec)}}
	_, err := c.do(ctx, http.MethodPut, "/pause", q, nil)
	return err
}

// RunAdhoc starts a one-off run of a single zone; durationSec 0 stops a run
// already in progress.
func (c *Client) RunAdhoc(ctx context.Context, zoneID, durationSec int) error {
	q := url.Values{
		"zone_id":      {strconv.Itoa(zoneID)},
		"duration_sec": {strconv.Itoa(durationSec)},
	}
	_, err := c.do(ctx, http.MethodPut, "/adhoc", q, nil)
	return err
}

// Status fetches the device's current self-report.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	body, err := c.do(ctx, http.MethodGet, "/status", nil, nil)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, &TransportError{Op: "status", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &st, nil
}

// Log fetches the device's recent log lines.
func (c *Client) Log(ctx context.Context) ([]LogEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/log", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp logResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Op: "log", Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Log, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	op := fmt.Sprintf("%s %s", method, path)

	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, Status: resp.StatusCode}
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return out, nil
}
