package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karpada/irrigation-console/db"
	"github.com/karpada/irrigation-console/internal/document"
	"github.com/karpada/irrigation-console/internal/gateway"
	"github.com/karpada/irrigation-console/internal/model"
	"github.com/karpada/irrigation-console/internal/notifications"
	"github.com/karpada/irrigation-console/internal/poller"
)

const deviceConfig = `{
	"zones": [
		{"name": "Lawn", "master": false, "active_is_high": true, "on_pin": 4, "off_pin": 4,
		 "irrigation_factor_override": -1, "soil_moisture_dry": 300, "soil_moisture_wet": 700,
		 "adc_pin_id": 12, "power_pin_id": 13},
		{"name": "Beds", "master": false, "active_is_high": true, "on_pin": 5, "off_pin": 5,
		 "irrigation_factor_override": -1, "soil_moisture_dry": 300, "soil_moisture_wet": 700,
		 "adc_pin_id": 12, "power_pin_id": 13},
		{"name": "Trees", "master": false, "active_is_high": true, "on_pin": 6, "off_pin": 6,
		 "irrigation_factor_override": -1, "soil_moisture_dry": 300, "soil_moisture_wet": 700,
		 "adc_pin_id": 12, "power_pin_id": 13}
	],
	"schedules": [
		{"enabled": true, "zone_id": 0, "start_sec": 25200, "duration_sec": 600,
		 "day_mask": 127, "enable_soil_moisture_sensor": true,
		 "interval_duration_sec": 0, "interval_on_sec": 0, "expiry": 0},
		{"enabled": true, "zone_id": 1, "start_sec": 25200, "duration_sec": 600,
		 "day_mask": 127, "enable_soil_moisture_sensor": true,
		 "interval_duration_sec": 0, "interval_on_sec": 0, "expiry": 0},
		{"enabled": true, "zone_id": 2, "start_sec": 25200, "duration_sec": 600,
		 "day_mask": 127, "enable_soil_moisture_sensor": true,
		 "interval_duration_sec": 0, "interval_on_sec": 0, "expiry": 0},
		{"enabled": true, "zone_id": 2, "start_sec": 43200, "duration_sec": 300,
		 "day_mask": 127, "enable_soil_moisture_sensor": false,
		 "interval_duration_sec": 0, "interval_on_sec": 0, "expiry": 0}
	],
	"options": {"wifi": {"ssid": "home"}, "settings": {"timezone_offset": -7}}
}`

type fakeDevice struct {
	persisted [][]byte
	pauses    []string
	adhocs    []string
	broken    bool
}

func (f *fakeDevice) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.broken {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/config":
			w.Write([]byte(deviceConfig))
		case r.Method == http.MethodPost && r.URL.Path == "/config":
			var buf bytes.Buffer
			buf.ReadFrom(r.Body)
			f.persisted = append(f.persisted, buf.Bytes())
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/pause":
			f.pauses = append(f.pauses, r.URL.RawQuery)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/adhoc":
			f.adhocs = append(f.adhocs, r.URL.RawQuery)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func setup(t *testing.T) (*httptest.Server, *fakeDevice, *document.Store) {
	t.Helper()

	fake := &fakeDevice{}
	deviceSrv := httptest.NewServer(fake.handler())
	t.Cleanup(deviceSrv.Close)

	client, err := gateway.New(deviceSrv.URL, 2*time.Second)
	require.NoError(t, err)

	archive, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	store := document.NewStore(time.UTC)
	require.NoError(t, store.Import([]byte(deviceConfig)))

	p := poller.New(client, archive, notifications.New(""), time.Minute)
	srv := httptest.NewServer(NewServer(store, client, archive, p, nil).Router())
	t.Cleanup(srv.Close)

	return srv, fake, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetDocument(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/api/document")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc model.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Len(t, doc.Zones, 3)
	assert.Len(t, doc.Schedules, 4)
}

func TestRemoveZoneCascadesOverAPI(t *testing.T) {
	srv, _, store := setup(t)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/zones/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := store.Document()
	require.Len(t, doc.Zones, 2)
	ids := []int{}
	for _, sch := range doc.Schedules {
		ids = append(ids, sch.ZoneID)
	}
	assert.Equal(t, []int{0, 1, 1}, ids)
}

func TestRemoveMissingZone(t *testing.T) {
	srv, _, _ := setup(t)
	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/zones/9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddScheduleGuard(t *testing.T) {
	srv, _, store := setup(t)
	store.Replace(model.NewDocument())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/schedules", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, store.Document().Schedules)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/zones", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/schedules", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var idx IndexResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&idx))
	assert.Equal(t, 0, idx.Index)
}

func TestUpdateScheduleField(t *testing.T) {
	srv, _, store := setup(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/schedules/0",
		FieldEditRequest{Field: "start_time", Value: "06:45"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6*3600+45*60, store.Document().Schedules[0].StartSec)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/schedules/0",
		FieldEditRequest{Field: "nonsense", Value: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUpdateOption(t *testing.T) {
	srv, _, store := setup(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/options",
		OptionEditRequest{Path: "settings.timezone_offset", Value: -8})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	v, err := store.Document().Options.Resolve("settings.timezone_offset")
	require.NoError(t, err)
	assert.EqualValues(t, -8.0, v)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/options",
		OptionEditRequest{Path: "settings.timezone_offset", Value: "west"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestImportRejectsMalformedPayload(t *testing.T) {
	srv, _, store := setup(t)
	before, err := store.Export()
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/document/import",
		bytes.NewReader([]byte(`{"zones": [`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	after, err := store.Export()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestExportImportRoundTripOverAPI(t *testing.T) {
	srv, _, store := setup(t)

	resp, err := http.Get(srv.URL + "/api/document/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)

	store.Replace(model.NewDocument())
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/document/import", &buf)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	doc := store.Document()
	assert.Len(t, doc.Zones, 3)
	assert.Len(t, doc.Schedules, 4)
}

func TestLoadAndPersist(t *testing.T) {
	srv, fake, store := setup(t)
	store.Replace(model.NewDocument())

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/document/load", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, store.Document().Zones, 3)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/document/persist", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fake.persisted, 1)

	var sent model.Document
	require.NoError(t, json.Unmarshal(fake.persisted[0], &sent))
	assert.Len(t, sent.Zones, 3)
}

func TestTransportFailureMapsToBadGateway(t *testing.T) {
	srv, fake, store := setup(t)
	before, err := store.Export()
	require.NoError(t, err)

	fake.broken = true
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/document/load", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// a failed load leaves the local document alone
	after, err := store.Export()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPauseAndAdhocPassThrough(t *testing.T) {
	srv, fake, _ := setup(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/pause?duration_sec=3600", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fake.pauses, 1)
	assert.Equal(t, "duration_sec=3600", fake.pauses[0])

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/adhoc?zone_id=2&duration_sec=300", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fake.adhocs, 1)
	assert.Equal(t, "duration_sec=300&zone_id=2", fake.adhocs[0])

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/pause?duration_sec=soon", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFormEndpoint(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/api/form")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var form struct {
		Zones     []json.RawMessage `json:"zones"`
		Schedules []json.RawMessage `json:"schedules"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&form))
	assert.Len(t, form.Zones, 3)
	assert.Len(t, form.Schedules, 4)

	resp2 := doJSON(t, http.MethodPost, srv.URL+"/api/form/edit",
		map[string]any{"path": "zones.0.name", "value": "Front Lawn"})
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestRecentLogEmptyArchive(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/api/log/recent")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Log []json.RawMessage `json:"log"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Log)
}
