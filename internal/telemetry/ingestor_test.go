package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/metrics"
)

type fakeStore struct {
	mu       sync.Mutex
	readings []Reading
	err      error
}

func (s *fakeStore) Insert(_ context.Context, r *Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	r.Normalize(base)
	if err := r.Validate(); err != nil {
		return err
	}
	s.readings = append(s.readings, *r)
	return nil
}

type mirrored struct {
	deviceID, sensor string
	value            float64
}

type fakeMirror struct {
	points []mirrored
}

func (m *fakeMirror) WriteReading(deviceID, sensorName string, value float64, _ time.Time) {
	m.points = append(m.points, mirrored{deviceID, sensorName, value})
}

func newTestIngestor(store ReadingStore, mirror Mirror) *Ingestor {
	return NewIngestor(store, mirror, logging.Discard(), metrics.New())
}

func TestIngestor_SingleMessage(t *testing.T) {
	store := &fakeStore{}
	mirror := &fakeMirror{}
	ing := newTestIngestor(store, mirror)

	payload := []byte(`{"sensorName":"peso","identifier":"hx711","value":412.5,"deviceEnvirId":3,"timestamp":"2026-03-01T10:00:00Z"}`)
	require.NoError(t, ing.HandleMessage("petcare/devices/7/readings", payload))

	require.Len(t, store.readings, 1)
	got := store.readings[0]
	assert.Equal(t, "7", got.DeviceID)
	assert.Equal(t, "3", got.DeviceEnvironmentID)
	assert.Equal(t, 412.5, got.Value)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), got.Timestamp)

	assert.Equal(t, []mirrored{{"7", "peso", 412.5}}, mirror.points)
}

func TestIngestor_BatchMessage(t *testing.T) {
	store := &fakeStore{}
	ing := newTestIngestor(store, nil)

	payload := []byte(`[
		{"sensorName":"peso","identifier":"hx711","value":10},
		{"sensorName":"nivel","identifier":"us-100","value":0}
	]`)
	require.NoError(t, ing.HandleMessage("petcare/devices/feeder-1/readings", payload))

	require.Len(t, store.readings, 2)
	assert.Equal(t, "nivel", store.readings[1].SensorName)
	assert.Equal(t, 0.0, store.readings[1].Value)
	assert.Equal(t, base, store.readings[1].Timestamp)
}

func TestIngestor_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{name: "wrong topic kind", topic: "petcare/devices/7/status", payload: `{}`},
		{name: "foreign topic", topic: "other/7/readings", payload: `{}`},
		{name: "empty payload", topic: "petcare/devices/7/readings", payload: `  `},
		{name: "malformed json", topic: "petcare/devices/7/readings", payload: `{"value":`},
		{name: "missing value", topic: "petcare/devices/7/readings", payload: `{"sensorName":"peso","identifier":"x"}`},
		{name: "missing sensor", topic: "petcare/devices/7/readings", payload: `{"identifier":"x","value":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			ing := newTestIngestor(store, nil)

			err := ing.HandleMessage(tt.topic, []byte(tt.payload))

			assert.True(t, errors.Is(err, ErrInvalidReading), "got %v", err)
			assert.Empty(t, store.readings)
		})
	}
}

func TestIngestor_PartialBatchKeepsValidReadings(t *testing.T) {
	store := &fakeStore{}
	ing := newTestIngestor(store, nil)

	payload := []byte(`[{"sensorName":"peso","identifier":"x"},{"sensorName":"peso","identifier":"x","value":2}]`)
	err := ing.HandleMessage("petcare/devices/7/readings", payload)

	assert.ErrorIs(t, err, ErrInvalidReading)
	require.Len(t, store.readings, 1)
	assert.Equal(t, 2.0, store.readings[0].Value)
}

func TestIngestor_StoreFailureSkipsMirror(t *testing.T) {
	storeErr := errors.New("mongo down")
	mirror := &fakeMirror{}
	ing := NewIngestor(&fakeStore{err: storeErr}, mirror, logging.Discard(), nil)

	_, err := ing.Store(context.Background(), &Reading{SensorName: "peso", Identifier: "x", DeviceID: "1"}, "api")

	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, mirror.points)
}

func TestIngestor_NotifiesAfterStore(t *testing.T) {
	store := &fakeStore{}
	ing := newTestIngestor(store, nil)

	var notified []Reading
	ing.SetNotifier(func(r *Reading) { notified = append(notified, *r) })

	err := ing.HandleMessage("petcare/devices/7/readings",
		[]byte(`[{"sensorName":"peso","identifier":"x","value":1},{"sensorName":"peso","value":2}]`))
	require.ErrorIs(t, err, ErrInvalidReading)
	require.Len(t, notified, 1)
	assert.Equal(t, "7", notified[0].DeviceID)
	assert.Equal(t, 1.0, notified[0].Value)

	store.err = errors.New("mongo down")
	_, err = ing.Store(context.Background(), &Reading{SensorName: "peso", Identifier: "x", DeviceID: "7"}, "api")
	require.Error(t, err)
	assert.Len(t, notified, 1)
}

func TestIngestor_PayloadNotifier(t *testing.T) {
	store := &fakeStore{}
	ing := newTestIngestor(store, nil)

	type raw struct {
		deviceID string
		payload  string
	}
	var seen []raw
	ing.SetPayloadNotifier(func(deviceID string, payload json.RawMessage) {
		seen = append(seen, raw{deviceID, string(payload)})
	})

	batch := `[{"sensorName":"peso","identifier":"x","value":1},{"sensorName":"agua","identifier":"y","value":2}]`
	require.NoError(t, ing.HandleMessage("petcare/devices/7/readings", []byte(" "+batch+"\n")))
	require.Len(t, seen, 1, "one notification per device message, not per reading")
	assert.Equal(t, raw{"7", batch}, seen[0])
	assert.Len(t, store.readings, 2)

	err := ing.HandleMessage("petcare/devices/7/readings", []byte(`{not json`))
	require.ErrorIs(t, err, ErrInvalidReading)
	assert.Len(t, seen, 1, "undecodable payloads are not relayed")
}
