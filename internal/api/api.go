// Package api is the editor's HTTP surface: document CRUD, structural edits,
// field edits routed through the view binding, and pass-through device
// actions (pause, ad-hoc run). Handlers mutate only through the document
// store, so every response reflects a fully-applied or fully-rejected edit.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/karpada/irrigation-console/db"
	"github.com/karpada/irrigation-console/internal/document"
	"github.com/karpada/irrigation-console/internal/gateway"
	"github.com/karpada/irrigation-console/internal/poller"
	"github.com/karpada/irrigation-console/internal/view"
)

type Server struct {
	store   *document.Store
	device  *gateway.Client
	archive *sql.DB
	poller  *poller.Poller
	backup  *document.FileStore // nil when no backup file configured
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type IndexResponse struct {
	Index int `json:"index"`
}

type FieldEditRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type OptionEditRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func NewServer(store *document.Store, device *gateway.Client, archive *sql.DB, p *poller.Poller, backup *document.FileStore) *Server {
	return &Server{
		store:   store,
		device:  device,
		archive: archive,
		poller:  p,
		backup:  backup,
	}
}

// Router builds the chi routing tree for the editor API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/document", s.getDocument)
		r.Post("/document/load", s.loadDocument)
		r.Post("/document/persist", s.persistDocument)
		r.Get("/document/export", s.exportDocument)
		r.Post("/document/import", s.importDocument)

		r.Get("/form", s.getForm)
		r.Post("/form/edit", s.applyEdit)

		r.Post("/zones", s.addZone)
		r.Delete("/zones/{index}", s.removeZone)
		r.Patch("/zones/{index}", s.updateZone)

		r.Post("/schedules", s.addSchedule)
		r.Delete("/schedules/{index}", s.removeSchedule)
		r.Patch("/schedules/{index}", s.updateSchedule)

		r.Patch("/options", s.updateOption)

		r.Put("/pause", s.pause)
		r.Put("/adhoc", s.adhoc)

		r.Get("/activity", s.getActivity)
		r.Get("/log/recent", s.recentLog)
		r.Get("/status/recent", s.recentStatus)
	})

	return r
}

// Start serves the editor API on addr.
func (s *Server) Start(addr string) error {
	log.Info().Str("address", addr).Msg("Starting editor API server")
	return http.ListenAndServe(addr, s.Router())
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Document())
}

func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.device.Fetch(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load document from device")
		s.writeErrorFor(w, err)
		return
	}
	s.store.Replace(doc)
	log.Info().
		Int("zones", len(doc.Zones)).
		Int("schedules", len(doc.Schedules)).
		Msg("Document loaded from device")
	s.writeJSON(w, http.StatusOK, s.store.Document())
}

func (s *Server) persistDocument(w http.ResponseWriter, r *http.Request) {
	doc := s.store.Document()
	if err := s.device.Persist(r.Context(), doc); err != nil {
		log.Error().Err(err).Msg("Failed to persist document to device")
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Msg("Document persisted to device")

	if s.backup != nil {
		raw, err := s.store.Export()
		if err == nil {
			err = s.backup.Save(raw)
		}
		if err != nil {
			log.Warn().Err(err).Str("path", s.backup.Path()).Msg("Failed to write local backup")
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) exportDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := s.store.Export()
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="irrigation-config.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) importDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := s.store.Import(raw); err != nil {
		log.Warn().Err(err).Msg("Rejected document import")
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Msg("Document imported")
	s.writeJSON(w, http.StatusOK, s.store.Document())
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request) {
	form := view.Render(s.store.Document(), s.store.Location())
	s.writeJSON(w, http.StatusOK, form)
}

func (s *Server) applyEdit(w http.ResponseWriter, r *http.Request) {
	var edit view.Edit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := view.Apply(s.store, edit); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) addZone(w http.ResponseWriter, r *http.Request) {
	idx := s.store.AddZone()
	log.Info().Int("index", idx).Msg("Zone added")
	s.writeJSON(w, http.StatusCreated, IndexResponse{Index: idx})
}

func (s *Server) removeZone(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveZone(idx); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Int("index", idx).Msg("Zone removed")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updateZone(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	var req FieldEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := s.store.UpdateZone(idx, req.Field, req.Value); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) {
	idx, err := s.store.AddSchedule()
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Int("index", idx).Msg("Schedule added")
	s.writeJSON(w, http.StatusCreated, IndexResponse{Index: idx})
}

func (s *Server) removeSchedule(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveSchedule(idx); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Int("index", idx).Msg("Schedule removed")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	var req FieldEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := s.store.UpdateSchedule(idx, req.Field, req.Value); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updateOption(w http.ResponseWriter, r *http.Request) {
	var req OptionEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := s.store.SetOption(req.Path, req.Value); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	durationSec, err := strconv.Atoi(r.URL.Query().Get("duration_sec"))
	if err != nil || durationSec < 0 {
		s.writeError(w, http.StatusBadRequest, "duration_sec must be a non-negative integer")
		return
	}
	if err := s.device.Pause(r.Context(), durationSec); err != nil {
		log.Error().Err(err).Int("duration_sec", durationSec).Msg("Failed to pause schedules")
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Int("duration_sec", durationSec).Msg("Schedules paused")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) adhoc(w http.ResponseWriter, r *http.Request) {
	zoneID, err := strconv.Atoi(r.URL.Query().Get("zone_id"))
	if err != nil || zoneID < 0 {
		s.writeError(w, http.StatusBadRequest, "zone_id must be a non-negative integer")
		return
	}
	durationSec, err := strconv.Atoi(r.URL.Query().Get("duration_sec"))
	if err != nil || durationSec < 0 {
		s.writeError(w, http.StatusBadRequest, "duration_sec must be a non-negative integer")
		return
	}
	if err := s.device.RunAdhoc(r.Context(), zoneID, durationSec); err != nil {
		log.Error().Err(err).Int("zone_id", zoneID).Msg("Failed to start ad-hoc run")
		s.writeErrorFor(w, err)
		return
	}
	log.Info().Int("zone_id", zoneID).Int("duration_sec", durationSec).Msg("Ad-hoc run requested")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		s.writeError(w, http.StatusNotFound, "activity polling is not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.poller.Snapshot())
}

func (s *Server) recentLog(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	entries, err := db.RecentDeviceLog(s.archive, queryLimit(r, 100))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query device log archive")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []db.DeviceLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"log": entries})
}

func (s *Server) recentStatus(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	samples, err := db.RecentStatusSamples(s.archive, queryLimit(r, 100))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query status archive")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if samples == nil {
		samples = []db.StatusSample{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return idx, true
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// writeErrorFor maps the error taxonomy to HTTP statuses: missing entities to
// 404, other validation errors to 422, malformed imports to 400, device
// transport failures to 502.
func (s *Server) writeErrorFor(w http.ResponseWriter, err error) {
	var editErr document.EditError
	var transportErr *gateway.TransportError

	switch {
	case errors.Is(err, document.ErrZoneNotFound), errors.Is(err, document.ErrScheduleNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &editErr):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, document.ErrMalformedDocument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transportErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
