package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
)

var litterBox = DeviceLink{ID: 5, EnvironmentID: 2, DeviceID: 42, Alias: "Arenero sala", Type: TypeLitterBox}
var feeder = DeviceLink{ID: 6, EnvironmentID: 2, DeviceID: 43, Alias: "Comedero Michi", Type: TypeFeeder}

func TestBroadcaster_NotAttachedIsSilent(t *testing.T) {
	b := NewBroadcaster(logging.Discard(), nil)
	assert.False(t, b.Ready())
	assert.Zero(t, b.ConnectedClients())

	assert.NotPanics(t, func() {
		b.StatusChanged(litterBox, StatusDirty)
		b.CriticalAlert(litterBox, StatusDirty)
		b.Publish(Event{Kind: MsgNewSensorReading, DeviceID: "42"})
	})
}

func TestBroadcaster_DetachStopsDelivery(t *testing.T) {
	b, r := newAttached()
	conn := newFakeConn("a")
	r.Register(conn)

	b.Detach()
	b.StatusChanged(litterBox, StatusDirty)

	assert.False(t, b.Ready())
	assert.Zero(t, conn.count())
}

func TestBroadcaster_NoConnectionsIsNoop(t *testing.T) {
	b, _ := newAttached()

	assert.NotPanics(t, func() {
		b.StatusChanged(litterBox, StatusDirty)
		b.RealtimeReading("42", "", map[string]any{"value": 1})
	})
}

func TestBroadcaster_BroadcastToAllKinds(t *testing.T) {
	calls := map[string]func(b *Broadcaster){
		MsgDeviceStatusChanged: func(b *Broadcaster) { b.StatusChanged(litterBox, StatusDirty) },
		MsgCriticalAlert:       func(b *Broadcaster) { b.CriticalAlert(litterBox, StatusDirty) },
		MsgIntervalChanged:     func(b *Broadcaster) { b.IntervalChanged(litterBox, 90) },
		MsgCleaningStarted:     func(b *Broadcaster) { b.CleaningStarted(litterBox) },
		MsgCleaningCompleted:   func(b *Broadcaster) { b.CleaningCompleted(litterBox) },
		MsgCleaningReminder:    func(b *Broadcaster) { b.CleaningReminder(litterBox, 30) },
		MsgFoodUpdated:         func(b *Broadcaster) { b.FoodUpdated(feeder, 100, ptr(250)) },
		MsgLowFoodAlert:        func(b *Broadcaster) { b.LowFoodAlert(feeder, 10, DefaultLowFoodThreshold) },
		MsgSensorData:          func(b *Broadcaster) { b.SensorData("42", map[string]any{"peso": 3}) },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			b, r := newAttached()
			deviceSub := newFakeConn("device-sub")
			allSub := newFakeConn("all-sub")
			otherType := newFakeConn("other-type")
			silent := newFakeConn("silent")
			registerAll(r, deviceSub, allSub, otherType, silent)
			r.Join(deviceSub, DeviceTopic("42"))
			r.Join(allSub, TopicAll)
			r.Join(otherType, TypeTopic(TypeWaterer))

			call(b)

			for _, c := range []*fakeConn{deviceSub, allSub, otherType, silent} {
				assert.Equal(t, []string{name}, c.types(t), c.id)
			}
		})
	}
}

func TestBroadcaster_StatusPayload(t *testing.T) {
	b, r := newAttached()
	conn := newFakeConn("a")
	r.Register(conn)

	b.StatusChanged(litterBox, StatusDirty)

	got := conn.received(t)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{
		"deviceEnvirId": 5.0,
		"environmentId": 2.0,
		"deviceId":      42.0,
		"alias":         "Arenero sala",
		"type":          TypeLitterBox,
		"status":        StatusDirty,
		"timestamp":     "2026-03-01T12:30:00.000Z",
	}, got[0].Payload)
}

func TestBroadcaster_CriticalAlertSeverity(t *testing.T) {
	tests := map[string]string{
		StatusNoFood:   "critical",
		StatusNoWater:  "critical",
		StatusNoLitter: "high",
		StatusDirty:    "high",
		StatusSupplied: "low",
		StatusFull:     "medium",
	}

	for status, want := range tests {
		b, r := newAttached()
		conn := newFakeConn("a")
		r.Register(conn)

		b.CriticalAlert(feeder, status)

		got := conn.received(t)
		require.Len(t, got, 1)
		assert.Equal(t, MsgCriticalAlert, got[0].Type)
		assert.Equal(t, want, got[0].Payload["severity"], status)
		assert.Equal(t, AlertMessage(TypeFeeder, status), got[0].Payload["message"])
	}
}

func TestBroadcaster_TimestampOverridesCaller(t *testing.T) {
	b, r := newAttached()
	conn := newFakeConn("a")
	r.Register(conn)
	r.Join(conn, DeviceTopic("42"))

	payload := map[string]any{"value": 3.5, "timestamp": "1999-01-01"}
	b.RealtimeReading("42", "", payload)

	got := conn.received(t)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-03-01T12:30:00.000Z", got[0].Payload["timestamp"])
	assert.Equal(t, "1999-01-01", payload["timestamp"], "caller payload must not be modified")
}

func TestBroadcaster_SensorReadingScenario(t *testing.T) {
	b, r := newAttached()
	a := newFakeConn("A")
	bConn := newFakeConn("B")
	registerAll(r, a, bConn)
	r.Join(a, DeviceTopic("42"))

	b.Publish(Event{
		Kind:       MsgNewSensorReading,
		Collection: collectionReadings,
		DeviceID:   "42",
		Payload:    map[string]any{"deviceId": "42", "value": 12.0},
	})

	assert.ElementsMatch(t, []string{MsgNewSensorReading, MsgDeviceReading}, a.types(t))
	assert.Equal(t, []string{MsgNewSensorReading}, bConn.types(t))
}

func TestBroadcaster_ReadingDatabaseChangeDuplicatesToTopic(t *testing.T) {
	b, r := newAttached()
	a := newFakeConn("A")
	other := newFakeConn("B")
	registerAll(r, a, other)
	r.Join(a, DeviceTopic("42"))

	b.Publish(Event{Kind: MsgDatabaseChange, Collection: collectionReadings, DeviceID: "42", Payload: map[string]any{"type": ChangeReadingInserted}})
	b.Publish(Event{Kind: MsgDatabaseChange, Collection: collectionDevices, Payload: map[string]any{"type": ChangeDeviceInserted}})

	assert.Equal(t, []string{MsgDatabaseChange, MsgDatabaseChange, MsgDatabaseChange}, a.types(t))
	assert.Equal(t, []string{MsgDatabaseChange, MsgDatabaseChange}, other.types(t))
}

func TestBroadcaster_DeviceActionRouting(t *testing.T) {
	b, r := newAttached()
	device := newFakeConn("device")
	typeSub := newFakeConn("type")
	both := newFakeConn("both")
	all := newFakeConn("all")
	none := newFakeConn("none")
	registerAll(r, device, typeSub, both, all, none)
	r.Join(device, DeviceTopic("7"))
	r.Join(typeSub, TypeTopic(TypeFeeder))
	r.Join(both, DeviceTopic("7"))
	r.Join(both, TypeTopic(TypeFeeder))
	r.Join(all, TopicAll)

	b.DeviceAction(Action{
		Kind:       MsgFeederAction,
		DeviceID:   "7",
		DeviceType: TypeFeeder,
		Payload:    map[string]any{"action": MsgStartDispenseFood},
	})

	assert.Equal(t, 2, device.count())
	assert.Equal(t, 2, typeSub.count())
	assert.Equal(t, 2, both.count(), "topic union delivers once")
	assert.Equal(t, 2, all.count())
	assert.Equal(t, 1, none.count())
	assert.Equal(t, []string{MsgFeederAction}, none.types(t))
}

func TestBroadcaster_RealtimeReadingIsScoped(t *testing.T) {
	b, r := newAttached()
	device := newFakeConn("device")
	env := newFakeConn("env")
	all := newFakeConn("all")
	none := newFakeConn("none")
	registerAll(r, device, env, all, none)
	r.Join(device, DeviceTopic("42"))
	r.Join(env, EnvironmentTopic("2"))
	r.Join(all, TopicAll)

	b.RealtimeReading("42", "2", map[string]any{"value": 1.0})

	assert.Equal(t, 1, device.count())
	assert.Equal(t, 1, env.count())
	assert.Zero(t, all.count())
	assert.Zero(t, none.count())
}

func TestBroadcaster_FullBufferDoesNotAffectOthers(t *testing.T) {
	b, r := newAttached()
	slow := newFakeConn("slow")
	slow.full = true
	fast := newFakeConn("fast")
	registerAll(r, slow, fast)

	assert.NotPanics(t, func() { b.StatusChanged(feeder, StatusFull) })

	assert.Zero(t, slow.count())
	assert.Equal(t, 1, fast.count())
}

func TestBroadcaster_FoodPayload(t *testing.T) {
	b, r := newAttached()
	conn := newFakeConn("a")
	r.Register(conn)

	b.FoodUpdated(feeder, 300, nil)
	b.FoodUpdated(feeder, 150, ptr(200))
	b.LowFoodAlert(feeder, 15, 50)

	got := conn.received(t)
	require.Len(t, got, 3)

	assert.Nil(t, got[0].Payload["comidaAnterior"])
	assert.Equal(t, 300.0, got[0].Payload["diferencia"])
	assert.Equal(t, "Comedero Michi: comida configurada a 300g", got[0].Payload["mensaje"])

	assert.Equal(t, 200.0, got[1].Payload["comidaAnterior"])
	assert.Equal(t, -50.0, got[1].Payload["diferencia"])

	assert.Equal(t, 15.0, got[2].Payload["comidaActual"])
	assert.Equal(t, 50.0, got[2].Payload["umbral"])
	assert.Equal(t, "high", got[2].Payload["severity"])
}

func TestBroadcaster_IntervalAndReminderHours(t *testing.T) {
	b, r := newAttached()
	conn := newFakeConn("a")
	r.Register(conn)

	b.IntervalChanged(litterBox, 100)
	b.CleaningReminder(litterBox, 45)

	got := conn.received(t)
	require.Len(t, got, 2)
	assert.Equal(t, 100.0, got[0].Payload["intervalo"])
	assert.Equal(t, 1.67, got[0].Payload["intervaloEnHoras"])
	assert.Equal(t, 0.75, got[1].Payload["hoursUntilNext"])
	assert.Equal(t, "Próxima limpieza de Arenero sala en 45 minutos", got[1].Payload["message"])
}
