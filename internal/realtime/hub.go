package realtime

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/petcare-core/internal/infrastructure/config"
	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/petcare-core/internal/metrics"
	"github.com/nerrad567/petcare-core/internal/telemetry"
)

// Transport defaults, used when the config leaves a value at zero.
const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultSendBuffer     = 256
	defaultMessageRate    = 20
	defaultMessageBurst   = 40
)

// CommandPublisher forwards device commands to the devices.
// *mqtt.Client implements it.
type CommandPublisher interface {
	PublishJSON(topic string, v any) error
}

// HubConfig holds transport settings.
type HubConfig struct {
	MaxMessageSize    int64
	PingInterval      time.Duration
	PongTimeout       time.Duration
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
}

// HubConfigFrom converts the YAML section, filling defaults.
func HubConfigFrom(cfg config.WebSocketConfig) HubConfig {
	hc := HubConfig{
		MaxMessageSize:    int64(cfg.MaxMessageSize),
		PingInterval:      time.Duration(cfg.PingInterval) * time.Second,
		PongTimeout:       time.Duration(cfg.PongTimeout) * time.Second,
		SendBuffer:        cfg.SendBuffer,
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessageBurst:      cfg.MessageBurst,
	}
	if hc.MaxMessageSize <= 0 {
		hc.MaxMessageSize = defaultMaxMessageSize
	}
	if hc.PingInterval <= 0 {
		hc.PingInterval = defaultPingInterval
	}
	if hc.PongTimeout <= 0 {
		hc.PongTimeout = defaultPongTimeout
	}
	if hc.SendBuffer <= 0 {
		hc.SendBuffer = defaultSendBuffer
	}
	if hc.MessagesPerSecond <= 0 {
		hc.MessagesPerSecond = defaultMessageRate
	}
	if hc.MessageBurst <= 0 {
		hc.MessageBurst = defaultMessageBurst
	}
	return hc
}

// Hub owns the WebSocket transport: it upgrades connections, registers
// them and answers their inbound messages.
type Hub struct {
	cfg         HubConfig
	registry    *Registry
	broadcaster *Broadcaster
	responder   *Responder
	logger      *logging.Logger
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	now         func() time.Time

	mu       sync.RWMutex
	commands CommandPublisher
	closed   bool
}

// NewHub creates a Hub and attaches the broadcaster to its Registry.
// responder may be nil, in which case request_initial_data reports
// service_unavailable.
func NewHub(cfg HubConfig, broadcaster *Broadcaster, responder *Responder, logger *logging.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		cfg:         cfg,
		registry:    NewRegistry(),
		broadcaster: broadcaster,
		responder:   responder,
		logger:      logger.Component("websocket"),
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
		now: time.Now,
	}
	broadcaster.Attach(h.registry)
	return h
}

// SetCommandPublisher enables forwarding of feeder and control commands.
func (h *Hub) SetCommandPublisher(p CommandPublisher) {
	h.mu.Lock()
	h.commands = p
	h.mu.Unlock()
}

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.registry.Count()
}

// Run blocks until ctx is cancelled, then closes the Hub.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close detaches the broadcaster and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.broadcaster.Detach()
	for _, conn := range h.registry.All() {
		if c, ok := conn.(*client); ok {
			h.unregister(c)
			c.closeConn()
		} else {
			h.registry.Deregister(conn)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection.
// No authentication is performed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "websocket hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.registry.Register(c)
	h.metrics.ConnectionOpened()
	h.logger.Debug("websocket client connected", "conn_id", c.id, "clients", h.registry.Count())
}

// unregister removes the client. Only the call that actually removes it
// closes the send channel.
func (h *Hub) unregister(c *client) {
	if !h.registry.Deregister(c) {
		return
	}
	close(c.send)
	h.metrics.ConnectionClosed()
	h.logger.Debug("websocket client disconnected", "conn_id", c.id, "clients", h.registry.Count())
}

// HandleMessage processes one inbound frame from conn.
func (h *Hub) HandleMessage(ctx context.Context, conn Conn, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.replyError(conn, "", ErrTypeInvalidMessage, "invalid JSON message")
		return
	}

	switch msg.Type {
	case MsgRequestInitialData:
		h.handleInitialData(ctx, conn, msg)
	case MsgSubscribeDevice:
		h.handleJoin(conn, msg, "deviceId", DeviceTopic)
	case MsgUnsubscribeDevice:
		h.handleLeave(conn, msg, "deviceId", DeviceTopic)
	case MsgSubscribeEnvironment:
		h.handleJoin(conn, msg, "environmentId", EnvironmentTopic)
	case MsgSubscribeDeviceType:
		h.handleJoin(conn, msg, "deviceType", TypeTopic)
	case MsgSubscribeAll:
		h.confirm(conn, msg.ID, h.registry.Join(conn, TopicAll))
	case MsgGetRoomsInfo:
		h.handleRoomsInfo(conn, msg)
	case MsgStartDispenseFood, MsgStopDispenseFood:
		h.handleDispense(conn, msg)
	case MsgControl:
		h.handleControl(conn, msg)
	case MsgTestMessage:
		h.handleTest(conn, msg)
	default:
		h.replyError(conn, msg.ID, ErrTypeUnknownMessage, "unknown message type: "+msg.Type)
	}
}

func (h *Hub) handleInitialData(ctx context.Context, conn Conn, msg Message) {
	var req InitialDataRequest
	if len(bytes.TrimSpace(msg.Payload)) > 0 && !bytes.Equal(bytes.TrimSpace(msg.Payload), []byte("null")) {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			h.replyError(conn, msg.ID, ErrTypeInvalidMessage, "invalid request_initial_data payload")
			return
		}
	}

	if h.responder == nil {
		h.replyError(conn, msg.ID, ErrTypeServiceUnavailable, "readings store not configured")
		return
	}

	go h.responder.Respond(context.WithoutCancel(ctx), conn, msg.ID, req)
}

func (h *Hub) handleJoin(conn Conn, msg Message, field string, topic func(string) Topic) {
	h.confirm(conn, msg.ID, h.registry.Join(conn, topic(subscriptionTarget(msg.Payload, field))))
}

func (h *Hub) handleLeave(conn Conn, msg Message, field string, topic func(string) Topic) {
	h.confirm(conn, msg.ID, h.registry.Leave(conn, topic(subscriptionTarget(msg.Payload, field))))
}

func (h *Hub) confirm(conn Conn, id string, ack JoinAck) {
	payload := ack.Payload()
	if ack.Subscribed {
		payload["message"] = "Suscrito a " + ack.Topic.String()
	} else {
		payload["message"] = "Desuscrito de " + ack.Topic.String()
	}
	sendTo(conn, MsgSubscriptionConfirmed, id, payload, h.now())
}

func (h *Hub) handleRoomsInfo(conn Conn, msg Message) {
	counts := h.registry.TopicCounts()
	rooms := make(map[string]int, len(counts))
	for topic, n := range counts {
		rooms[topic.String()] = n
	}

	own := h.registry.Topics(conn)
	joined := make([]string, 0, len(own))
	for _, t := range own {
		joined = append(joined, t.String())
	}

	sendTo(conn, MsgRoomsInfo, msg.ID, map[string]any{
		"rooms":            rooms,
		"totalConnections": h.registry.Count(),
		"joined":           joined,
	}, h.now())
}

// dispenseRequest is the start/stop_dispense_food payload. It may also
// be a bare device id.
type dispenseRequest struct {
	DeviceID      telemetry.FlexID `json:"deviceId"`
	DeviceType    string           `json:"deviceType"`
	EnvironmentID telemetry.FlexID `json:"environmentId"`
	Grams         *float64         `json:"grams,omitempty"`
}

func (h *Hub) handleDispense(conn Conn, msg Message) {
	var req dispenseRequest
	if isObject(msg.Payload) {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			h.replyError(conn, msg.ID, ErrTypeInvalidMessage, "invalid "+msg.Type+" payload")
			return
		}
	} else if err := json.Unmarshal(msg.Payload, &req.DeviceID); err != nil {
		h.replyError(conn, msg.ID, ErrTypeInvalidMessage, "invalid "+msg.Type+" payload")
		return
	}
	if req.DeviceID == "" {
		h.replyError(conn, msg.ID, ErrTypeInvalidMessage, "deviceId is required")
		return
	}
	if req.DeviceType == "" {
		req.DeviceType = TypeFeeder
	}

	payload := map[string]any{
		"action":      msg.Type,
		"deviceId":    req.DeviceID.String(),
		"deviceType":  req.DeviceType,
		"requestedBy": conn.ID(),
	}
	if req.EnvironmentID != "" {
		payload["environmentId"] = req.EnvironmentID.String()
	}
	if req.Grams != nil {
		payload["grams"] = *req.Grams
	}

	h.broadcaster.DeviceAction(Action{
		Kind:          MsgFeederAction,
		DeviceID:      req.DeviceID.String(),
		DeviceType:    req.DeviceType,
		EnvironmentID: req.EnvironmentID.String(),
		Payload:       payload,
	})
	h.forwardCommand(req.DeviceID.String(), payload)
}

// controlRequest is the object form of a control payload. The plain form
// is a JSON array of command strings.
type controlRequest struct {
	DeviceID   telemetry.FlexID `json:"deviceId"`
	DeviceType string           `json:"deviceType"`
	Commands   []string         `json:"commands"`
}

func (h *Hub) handleControl(conn Conn, msg Message) {
	var req controlRequest
	var err error
	if isObject(msg.Payload) {
		err = json.Unmarshal(msg.Payload, &req)
	} else {
		err = json.Unmarshal(msg.Payload, &req.Commands)
	}
	if err != nil || len(req.Commands) == 0 || strings.TrimSpace(req.Commands[0]) == "" {
		h.replyError(conn, msg.ID, ErrTypeInvalidMessage, "control expects a non-empty list of commands")
		return
	}

	payload := map[string]any{
		"command":     req.Commands[0],
		"requestedBy": conn.ID(),
	}
	if req.DeviceID != "" {
		payload["deviceId"] = req.DeviceID.String()
	}
	if req.DeviceType != "" {
		payload["deviceType"] = req.DeviceType
	}

	h.broadcaster.DeviceAction(Action{
		Kind:       MsgControlAction,
		DeviceID:   req.DeviceID.String(),
		DeviceType: req.DeviceType,
		Payload:    payload,
	})
	if req.DeviceID != "" {
		h.forwardCommand(req.DeviceID.String(), payload)
	}
}

func (h *Hub) handleTest(conn Conn, msg Message) {
	var received any
	if len(msg.Payload) > 0 {
		//nolint:errcheck // echo is best-effort; undecodable payloads echo as null
		json.Unmarshal(msg.Payload, &received)
	}
	sendTo(conn, MsgTestResponse, msg.ID, map[string]any{
		"message":  "Mensaje de prueba recibido correctamente",
		"received": received,
	}, h.now())
}

func (h *Hub) forwardCommand(deviceID string, payload map[string]any) {
	h.mu.RLock()
	p := h.commands
	h.mu.RUnlock()
	if p == nil {
		return
	}

	topic := mqtt.Topics{}.DeviceCommand(deviceID)
	if err := p.PublishJSON(topic, payload); err != nil {
		h.logger.Warn("failed to forward device command", "topic", topic, "error", err)
	}
}

func (h *Hub) replyError(conn Conn, id, errType, message string) {
	sendTo(conn, MsgError, id, errorPayload(errType, message), h.now())
}

// missingTarget names the topic joined when a subscription carries no id.
const missingTarget = "undefined"

// subscriptionTarget reads a subscription target that is either a bare id
// or an object holding field. It never rejects: a missing id becomes
// "undefined" and a non-scalar id keeps its compact JSON text, so the
// client still gets a confirmation for whatever topic it ended up in.
func subscriptionTarget(raw json.RawMessage, field string) string {
	raw = bytes.TrimSpace(raw)
	if isObject(raw) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return compactJSON(raw)
		}
		raw = bytes.TrimSpace(fields[field])
	}
	if len(raw) == 0 {
		return missingTarget
	}

	var id telemetry.FlexID
	if err := json.Unmarshal(raw, &id); err != nil {
		return compactJSON(raw)
	}
	if target := strings.TrimSpace(id.String()); target != "" {
		return target
	}
	if bytes.Equal(raw, []byte("null")) {
		return "null"
	}
	return ""
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
