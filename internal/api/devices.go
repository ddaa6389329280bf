package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/petcare-core/internal/device"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/petcare-core/internal/realtime"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Name          string `json:"name"`
	EnvironmentID *int64 `json:"environmentId"`
}

// deviceActionRequest is the body of POST /devices/{id}/actions.
type deviceActionRequest struct {
	Action     string         `json:"action"`
	DeviceType string         `json:"deviceType"`
	Data       map[string]any `json:"data"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d := &device.Device{Name: req.Name, EnvironmentID: req.EnvironmentID}
	if err := s.devices.RegisterDevice(r.Context(), d); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device id")
		return
	}

	d, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeviceAction relays a command to WebSocket clients as device_action
// and, when a command publisher is wired, to the device over MQTT.
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid device id")
		return
	}

	var req deviceActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Action = strings.TrimSpace(req.Action)
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	if req.DeviceType != "" {
		if err := device.ValidateType(device.Type(req.DeviceType)); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}

	d, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	deviceID := strconv.FormatInt(d.ID, 10)
	payload := map[string]any{
		"action":      req.Action,
		"deviceId":    deviceID,
		"requestedBy": "api",
	}
	if req.DeviceType != "" {
		payload["deviceType"] = req.DeviceType
	}
	if len(req.Data) > 0 {
		payload["data"] = req.Data
	}

	action := realtime.Action{
		Kind:       realtime.MsgDeviceAction,
		DeviceID:   deviceID,
		DeviceType: req.DeviceType,
		Payload:    payload,
	}
	if d.EnvironmentID != nil {
		action.EnvironmentID = strconv.FormatInt(*d.EnvironmentID, 10)
		payload["environmentId"] = action.EnvironmentID
	}
	if s.broadcaster != nil {
		s.broadcaster.DeviceAction(action)
	}

	forwarded := false
	if s.commands != nil {
		topic := mqtt.Topics{}.DeviceCommand(deviceID)
		if err := s.commands.PublishJSON(topic, payload); err != nil {
			s.logger.Warn("failed to forward device command", "topic", topic, "error", err)
		} else {
			forwarded = true
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"action":    req.Action,
		"deviceId":  deviceID,
		"forwarded": forwarded,
	})
}
