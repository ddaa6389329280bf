package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/petcare-core/internal/metrics"
)

// defaultInsertTimeout bounds one MongoDB insert from the MQTT path.
const defaultInsertTimeout = 10 * time.Second

// ReadingStore is the write side of the readings collection.
type ReadingStore interface {
	Insert(ctx context.Context, reading *Reading) error
}

// Mirror receives a numeric copy of each stored reading (InfluxDB).
type Mirror interface {
	WriteReading(deviceID, sensorName string, value float64, ts time.Time)
}

// ReadingMessage is the JSON body devices publish on
// petcare/devices/{id}/readings. A message may also be an array of these.
type ReadingMessage struct {
	SensorName          string     `json:"sensorName"`
	Identifier          string     `json:"identifier"`
	Value               *float64   `json:"value"`
	DeviceEnvironmentID FlexID     `json:"deviceEnvirId"`
	SensorID            FlexID     `json:"sensorId"`
	Timestamp           *time.Time `json:"timestamp"`
}

// Notifier is called after a reading has been stored.
type Notifier func(r *Reading)

// PayloadNotifier receives each decodable device payload as published,
// before its readings are stored.
type PayloadNotifier func(deviceID string, payload json.RawMessage)

// Ingestor turns device MQTT messages into stored readings.
//
// The change stream on the readings collection fans inserts out to every
// WebSocket client. The optional Notifier only feeds topic-scoped
// consumers (device and environment subscribers).
type Ingestor struct {
	store   ReadingStore
	mirror  Mirror
	logger  *logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	notify    Notifier
	notifyRaw PayloadNotifier
}

// NewIngestor creates an Ingestor. mirror and m may be nil.
func NewIngestor(store ReadingStore, mirror Mirror, logger *logging.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		store:   store,
		mirror:  mirror,
		logger:  logger.Component("telemetry"),
		metrics: m,
		timeout: defaultInsertTimeout,
	}
}

// SetNotifier installs fn as the post-store hook. Call before Subscribe.
func (i *Ingestor) SetNotifier(fn Notifier) {
	i.notify = fn
}

// SetPayloadNotifier installs fn as the raw payload hook. Call before
// Subscribe.
func (i *Ingestor) SetPayloadNotifier(fn PayloadNotifier) {
	i.notifyRaw = fn
}

// Subscribe registers the ingestor on the all-devices readings wildcard.
func (i *Ingestor) Subscribe(client *mqtt.Client, qos byte) error {
	return client.Subscribe(mqtt.Topics{}.AllDeviceReadings(), qos, i.HandleMessage)
}

// HandleMessage is an mqtt.MessageHandler. The device id comes from the
// topic; the payload is one ReadingMessage or an array of them.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || kind != mqtt.KindReadings {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidReading, topic)
	}

	messages, err := decodeReadingMessages(payload)
	if err != nil {
		i.metrics.ReadingRejected("mqtt")
		return err
	}
	if i.notifyRaw != nil {
		i.notifyRaw(deviceID, json.RawMessage(bytes.TrimSpace(payload)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	var firstErr error
	for _, msg := range messages {
		reading, err := msg.toReading(deviceID)
		if err == nil {
			_, err = i.Store(ctx, reading, "mqtt")
		}
		if err != nil {
			i.metrics.ReadingRejected("mqtt")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Store inserts a reading and mirrors it. Used by both MQTT and REST paths.
func (i *Ingestor) Store(ctx context.Context, reading *Reading, source string) (*Reading, error) {
	if err := i.store.Insert(ctx, reading); err != nil {
		return nil, err
	}

	i.metrics.ReadingIngested(source)
	if i.mirror != nil {
		i.mirror.WriteReading(reading.DeviceID, reading.SensorName, reading.Value, reading.Timestamp)
	}
	if i.notify != nil {
		i.notify(reading)
	}

	i.logger.Debug("reading stored",
		"device_id", reading.DeviceID,
		"sensor", reading.SensorName,
		"source", source,
	)
	return reading, nil
}

func decodeReadingMessages(payload []byte) ([]ReadingMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidReading)
	}

	if trimmed[0] == '[' {
		var batch []ReadingMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidReading, err)
		}
		return batch, nil
	}

	var msg ReadingMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return []ReadingMessage{msg}, nil
}

func (m ReadingMessage) toReading(deviceID string) (*Reading, error) {
	if m.Value == nil {
		return nil, fmt.Errorf("%w: missing value", ErrInvalidReading)
	}

	r := &Reading{
		SensorName:          m.SensorName,
		Identifier:          m.Identifier,
		Value:               *m.Value,
		DeviceID:            deviceID,
		DeviceEnvironmentID: m.DeviceEnvironmentID.String(),
		SensorID:            m.SensorID.String(),
	}
	if m.Timestamp != nil {
		r.Timestamp = m.Timestamp.UTC()
	}
	return r, nil
}
