package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/petcare-core/internal/device"
)

// createLinkRequest is the body of POST /device-environments.
type createLinkRequest struct {
	Alias         string   `json:"alias"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	Interval      *int     `json:"intervalo"`
	FoodGrams     *float64 `json:"comida"`
	Identifier    string   `json:"identifier"`
	DeviceID      int64    `json:"deviceId"`
	EnvironmentID int64    `json:"environmentId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type intervalRequest struct {
	Interval *int `json:"intervalo"`
}

// foodRequest accepts "comida" (absolute amount) or "cantidad" (delta).
// Op defaults to set with comida and add with cantidad.
type foodRequest struct {
	Op     string   `json:"op"`
	Amount *float64 `json:"comida"`
	Delta  *float64 `json:"cantidad"`
}

type reminderRequest struct {
	MinutesUntilNext int `json:"minutesUntilNext"`
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := device.LinkFilter{Type: device.Type(q.Get("type"))}
	if v := q.Get("environmentId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, "invalid environmentId")
			return
		}
		filter.EnvironmentID = id
	}
	if v := q.Get("deviceId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, "invalid deviceId")
			return
		}
		filter.DeviceID = id
	}
	if filter.Type != "" {
		if err := device.ValidateType(filter.Type); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}

	links, err := s.devices.ListLinks(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if links == nil {
		links = []device.Link{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceEnvironments": links,
		"count":              len(links),
	})
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	l := &device.Link{
		Alias:         req.Alias,
		Type:          device.Type(req.Type),
		Status:        device.Status(req.Status),
		Interval:      req.Interval,
		FoodGrams:     req.FoodGrams,
		Identifier:    req.Identifier,
		DeviceID:      req.DeviceID,
		EnvironmentID: req.EnvironmentID,
	}
	if err := s.devices.CreateLink(r.Context(), l); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	l, err := s.devices.GetLink(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	l, err := s.devices.UpdateStatus(r.Context(), id, device.Status(req.Status))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleUpdateInterval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	var req intervalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Interval == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "intervalo is required")
		return
	}

	l, err := s.devices.UpdateInterval(r.Context(), id, *req.Interval)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleUpdateFood(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	var req foodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	change, ok := req.change()
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "comida or cantidad is required")
		return
	}

	result, err := s.devices.UpdateFood(r.Context(), id, change)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (req foodRequest) change() (device.FoodChange, bool) {
	switch {
	case req.Amount != nil:
		op := device.FoodOp(req.Op)
		if op == "" {
			op = device.FoodSet
		}
		return device.FoodChange{Op: op, Grams: *req.Amount}, true
	case req.Delta != nil:
		op := device.FoodOp(req.Op)
		if op == "" {
			op = device.FoodAdd
		}
		return device.FoodChange{Op: op, Grams: *req.Delta}, true
	default:
		return device.FoodChange{}, false
	}
}

func (s *Server) handleStartCleaning(w http.ResponseWriter, r *http.Request) {
	s.linkAction(w, r, s.devices.StartCleaning)
}

func (s *Server) handleCompleteCleaning(w http.ResponseWriter, r *http.Request) {
	s.linkAction(w, r, s.devices.CompleteCleaning)
}

func (s *Server) handleCleaningReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	l, err := s.devices.CleaningReminder(r.Context(), id, req.MinutesUntilNext)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":           l,
		"minutesUntilNext": req.MinutesUntilNext,
	})
}

// linkAction runs a body-less mutation on the link named in the path.
func (s *Server) linkAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*device.Link, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device-environment id")
		return
	}

	l, err := fn(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
