package realtime

import (
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/metrics"
)

// DeviceLink identifies a device assigned to an environment, as carried
// in status, alert, cleaning and food payloads.
type DeviceLink struct {
	ID            int64
	EnvironmentID int64
	DeviceID      int64
	Alias         string
	Type          string
}

func (l DeviceLink) fields() map[string]any {
	return map[string]any{
		"deviceEnvirId": l.ID,
		"environmentId": l.EnvironmentID,
		"deviceId":      l.DeviceID,
		"alias":         l.Alias,
		"type":          l.Type,
	}
}

func (l DeviceLink) routing(kind string, collection string, payload map[string]any) Event {
	return Event{
		Kind:          kind,
		Collection:    collection,
		DeviceID:      idString(l.DeviceID),
		EnvironmentID: idString(l.EnvironmentID),
		DeviceType:    l.Type,
		Payload:       payload,
	}
}

// Action is a device, feeder or control command relayed to clients.
type Action struct {
	Kind          string // MsgDeviceAction, MsgFeederAction or MsgControlAction
	DeviceID      string
	DeviceType    string
	EnvironmentID string
	Payload       map[string]any
}

// Broadcaster delivers Events to the connections of an attached Registry.
//
// Until Attach is called (and after Detach) every call logs a warning and
// returns without effect. Delivery failures on individual connections are
// counted but never reported to the caller.
type Broadcaster struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	registry *Registry
}

// NewBroadcaster creates a Broadcaster with no transport attached.
func NewBroadcaster(logger *logging.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		logger:  logger.Component("broadcaster"),
		metrics: m,
		now:     time.Now,
	}
}

// Attach connects the Broadcaster to a transport's Registry.
func (b *Broadcaster) Attach(r *Registry) {
	b.mu.Lock()
	b.registry = r
	b.mu.Unlock()
}

// Detach disconnects the transport. Later broadcasts are dropped.
func (b *Broadcaster) Detach() {
	b.mu.Lock()
	b.registry = nil
	b.mu.Unlock()
}

// Ready reports whether a transport is attached.
func (b *Broadcaster) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry != nil
}

// ConnectedClients returns the number of registered connections.
func (b *Broadcaster) ConnectedClients() int {
	b.mu.RLock()
	r := b.registry
	b.mu.RUnlock()
	if r == nil {
		return 0
	}
	return r.Count()
}

// Publish routes an Event according to its kind:
//
//   - new_sensor_reading: every connection, plus device_reading to device:<id>
//   - database_change on readings: every connection, plus device:<id>
//   - device/feeder/control actions: device, type and all topics, plus every connection
//   - realtime_reading: device and environment topics only
//   - anything else: every connection
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	r := b.registry
	b.mu.RUnlock()

	if r == nil {
		b.logger.Warn("websocket transport not initialised, dropping event", "event", e.Kind)
		return
	}

	now := b.now()
	switch e.Kind {
	case MsgNewSensorReading:
		b.deliver(e.Kind, r.All(), e.Payload, now)
		b.toTopics(r, MsgDeviceReading, e.Payload, now, scopedTopic(DeviceTopic, e.DeviceID))
	case MsgDatabaseChange:
		b.deliver(e.Kind, r.All(), e.Payload, now)
		if e.Collection == collectionReadings {
			b.toTopics(r, e.Kind, e.Payload, now, scopedTopic(DeviceTopic, e.DeviceID))
		}
	case MsgDeviceAction, MsgFeederAction, MsgControlAction:
		b.toTopics(r, e.Kind, e.Payload, now,
			scopedTopic(DeviceTopic, e.DeviceID),
			scopedTopic(TypeTopic, e.DeviceType),
			TopicAll,
		)
		b.deliver(e.Kind, r.All(), e.Payload, now)
	case MsgRealtimeReading:
		b.toTopics(r, e.Kind, e.Payload, now,
			scopedTopic(DeviceTopic, e.DeviceID),
			scopedTopic(EnvironmentTopic, e.EnvironmentID),
		)
	default:
		b.deliver(e.Kind, r.All(), e.Payload, now)
	}
}

// toTopics delivers once to the union of the topics' members.
func (b *Broadcaster) toTopics(r *Registry, name string, payload map[string]any, now time.Time, topics ...Topic) {
	seen := make(map[string]struct{})
	var targets []Conn
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		for _, conn := range r.Members(topic) {
			if _, dup := seen[conn.ID()]; dup {
				continue
			}
			seen[conn.ID()] = struct{}{}
			targets = append(targets, conn)
		}
	}
	b.deliver(name, targets, payload, now)
}

func (b *Broadcaster) deliver(name string, conns []Conn, payload map[string]any, now time.Time) {
	if len(conns) == 0 {
		return
	}

	data, err := encode(name, "", payload, now)
	if err != nil {
		b.logger.Error("failed to encode broadcast", "event", name, "error", err)
		return
	}

	delivered, dropped := 0, 0
	for _, conn := range conns {
		if conn.Send(data) {
			delivered++
		} else {
			dropped++
		}
	}
	b.metrics.EventBroadcast(name, delivered, dropped)
	b.logger.Debug("broadcast sent", "event", name, "recipients", delivered, "dropped", dropped)
}

// StatusChanged announces a device-environment status change.
func (b *Broadcaster) StatusChanged(link DeviceLink, status string) {
	b.Publish(statusChangedEvent(link, status))
}

func statusChangedEvent(link DeviceLink, status string) Event {
	payload := link.fields()
	payload["status"] = status
	return link.routing(MsgDeviceStatusChanged, collectionDeviceEnvironments, payload)
}

// CriticalAlert announces an alerting status with its severity and message.
func (b *Broadcaster) CriticalAlert(link DeviceLink, status string) {
	payload := link.fields()
	payload["status"] = status
	payload["severity"] = string(SeverityFor(status))
	payload["message"] = AlertMessage(link.Type, status)
	b.Publish(link.routing(MsgCriticalAlert, collectionDeviceEnvironments, payload))
}

// SensorData relays a device's raw sensor payload to every connection.
func (b *Broadcaster) SensorData(deviceID string, data any) {
	b.Publish(Event{
		Kind:     MsgSensorData,
		DeviceID: deviceID,
		Payload: map[string]any{
			"deviceId":   deviceID,
			"sensorData": data,
		},
	})
}

// IntervalChanged announces a new litter box cleaning interval.
func (b *Broadcaster) IntervalChanged(link DeviceLink, minutes int) {
	payload := link.fields()
	payload["intervalo"] = minutes
	payload["intervaloEnHoras"] = HoursFromMinutes(minutes)
	b.Publish(link.routing(MsgIntervalChanged, collectionDeviceEnvironments, payload))
}

// CleaningStarted announces an automatic cleaning run.
func (b *Broadcaster) CleaningStarted(link DeviceLink) {
	payload := link.fields()
	payload["message"] = "Limpieza automática iniciada para " + link.Alias
	b.Publish(link.routing(MsgCleaningStarted, collectionDeviceEnvironments, payload))
}

// CleaningCompleted announces the end of an automatic cleaning run.
func (b *Broadcaster) CleaningCompleted(link DeviceLink) {
	payload := link.fields()
	payload["message"] = "Limpieza automática completada para " + link.Alias
	b.Publish(link.routing(MsgCleaningCompleted, collectionDeviceEnvironments, payload))
}

// CleaningReminder announces the time left until the next cleaning.
func (b *Broadcaster) CleaningReminder(link DeviceLink, minutesUntilNext int) {
	payload := link.fields()
	payload["minutesUntilNext"] = minutesUntilNext
	payload["hoursUntilNext"] = HoursFromMinutes(minutesUntilNext)
	payload["message"] = "Próxima limpieza de " + link.Alias + " en " + strconv.Itoa(minutesUntilNext) + " minutos"
	b.Publish(link.routing(MsgCleaningReminder, collectionDeviceEnvironments, payload))
}

// FoodUpdated announces a feeder's new food level. previous is nil when
// the level was never set.
func (b *Broadcaster) FoodUpdated(link DeviceLink, grams float64, previous *float64) {
	payload := link.fields()
	payload["comidaGramos"] = grams
	if previous != nil {
		payload["comidaAnterior"] = *previous
	} else {
		payload["comidaAnterior"] = nil
	}
	payload["diferencia"] = FoodDifference(grams, previous)
	payload["mensaje"] = FoodUpdateMessage(link.Alias, grams, previous)
	b.Publish(link.routing(MsgFoodUpdated, collectionDeviceEnvironments, payload))
}

// LowFoodAlert warns that a feeder is at or below threshold grams.
func (b *Broadcaster) LowFoodAlert(link DeviceLink, grams, threshold float64) {
	payload := link.fields()
	payload["comidaActual"] = grams
	payload["umbral"] = threshold
	payload["severity"] = string(LowFoodSeverity(grams))
	payload["message"] = LowFoodMessage(link.Alias, grams)
	b.Publish(link.routing(MsgLowFoodAlert, collectionDeviceEnvironments, payload))
}

// DeviceAction relays a device, feeder or control command.
func (b *Broadcaster) DeviceAction(a Action) {
	b.Publish(Event{
		Kind:          a.Kind,
		DeviceID:      a.DeviceID,
		DeviceType:    a.DeviceType,
		EnvironmentID: a.EnvironmentID,
		Payload:       a.Payload,
	})
}

// RealtimeReading relays a live reading to the device and environment topics.
func (b *Broadcaster) RealtimeReading(deviceID, environmentID string, payload map[string]any) {
	b.Publish(Event{
		Kind:          MsgRealtimeReading,
		Collection:    collectionReadings,
		DeviceID:      deviceID,
		EnvironmentID: environmentID,
		Payload:       payload,
	})
}

func scopedTopic(build func(string) Topic, id string) Topic {
	if id == "" {
		return ""
	}
	return build(id)
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
