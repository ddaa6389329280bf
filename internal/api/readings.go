package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/petcare-core/internal/telemetry"
)

// createReadingRequest is the body of POST /readings. Ids may be sent as
// numbers or strings.
type createReadingRequest struct {
	SensorName          string           `json:"sensorName"`
	Identifier          string           `json:"identifier"`
	Value               *float64         `json:"value"`
	DeviceID            telemetry.FlexID `json:"deviceId"`
	DeviceEnvironmentID telemetry.FlexID `json:"deviceEnvirId"`
	SensorID            telemetry.FlexID `json:"sensorId"`
	Timestamp           *time.Time       `json:"timestamp"`
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeUnavailable(w, "reading store not available")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", telemetry.DefaultPageSize)

	result, err := s.readings.ListByDevice(r.Context(), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if result.Readings == nil {
		result.Readings = []telemetry.Reading{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReadingsRange(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeUnavailable(w, "reading store not available")
		return
	}

	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		writeBadRequest(w, "from and to must be RFC 3339 timestamps")
		return
	}
	if to.Before(from) {
		writeBadRequest(w, "to must not be before from")
		return
	}

	readings, err := s.readings.ListByRange(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

func (s *Server) handleReadingStats(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeUnavailable(w, "reading store not available")
		return
	}

	deviceID := chi.URLParam(r, "id")
	stats, err := s.readings.Stats(r.Context(), deviceID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if stats == nil {
		stats = []telemetry.SensorStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": deviceID,
		"stats":    stats,
	})
}

// handleCreateReading stores a reading through the ingestor, the same path
// MQTT messages take.
func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		writeUnavailable(w, "reading store not available")
		return
	}

	var req createReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "value is required")
		return
	}

	reading := &telemetry.Reading{
		SensorName:          req.SensorName,
		Identifier:          req.Identifier,
		Value:               *req.Value,
		DeviceID:            req.DeviceID.String(),
		DeviceEnvironmentID: req.DeviceEnvironmentID.String(),
		SensorID:            req.SensorID.String(),
	}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	}

	stored, err := s.ingestor.Store(r.Context(), reading, "api")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
