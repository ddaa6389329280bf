package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mongodb"
	"github.com/nerrad567/petcare-core/internal/metrics"
)

const (
	collectionReadings           = mongodb.CollectionReadings
	collectionDevices            = mongodb.CollectionDevices
	collectionDeviceEnvironments = mongodb.CollectionDeviceEnvironments
)

// closeTimeout bounds closing one change stream cursor.
const closeTimeout = 5 * time.Second

// ErrAdapterClosed is returned by Start and Restart after Close.
var ErrAdapterClosed = errors.New("realtime: change stream adapter closed")

// Watcher opens change streams. *mongodb.Client implements it.
type Watcher interface {
	WaitReady(ctx context.Context) error
	Watch(ctx context.Context, collection string, pipeline mongo.Pipeline) (mongodb.ChangeStream, error)
}

// watchedStream describes one watched collection.
type watchedStream struct {
	name       string
	collection string
	pipeline   mongo.Pipeline
	convert    func(change bson.M) []Event
}

// watchTask is one running stream.
type watchTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Adapter turns MongoDB change streams into Events.
//
// Each stream runs in its own goroutine and delivers in the order the
// server reports changes. A failing stream is logged and left stopped;
// the others keep running. Restart is the only recovery path.
type Adapter struct {
	watcher Watcher
	sink    EventSink
	logger  *logging.Logger
	metrics *metrics.Metrics
	streams []watchedStream

	// lifecycle serialises Start, Restart and Close, which do network I/O
	// and wait on goroutines. mu only guards tasks and closed, so Running
	// never waits behind a slow handshake.
	lifecycle sync.Mutex
	mu        sync.Mutex
	tasks     map[string]*watchTask
	closed    bool
}

// NewAdapter creates an Adapter for the readings, device_environments and
// devices collections.
func NewAdapter(watcher Watcher, sink EventSink, logger *logging.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		watcher: watcher,
		sink:    sink,
		logger:  logger.Component("changestream"),
		metrics: m,
		streams: defaultStreams(),
		tasks:   make(map[string]*watchTask),
	}
}

func defaultStreams() []watchedStream {
	return []watchedStream{
		{
			name:       collectionReadings,
			collection: collectionReadings,
			pipeline:   insertPipeline(),
			convert:    readingChangeEvents,
		},
		{
			name:       collectionDeviceEnvironments,
			collection: collectionDeviceEnvironments,
			pipeline:   statusUpdatePipeline(),
			convert:    deviceEnvironmentChangeEvents,
		},
		{
			name:       collectionDevices,
			collection: collectionDevices,
			pipeline:   insertPipeline(),
			convert:    deviceChangeEvents,
		},
	}
}

func insertPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{"insert"}},
		}}},
	}
}

func statusUpdatePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType":                          bson.M{"$in": bson.A{"update", "replace"}},
			"updateDescription.updatedFields.status": bson.M{"$exists": true},
		}}},
	}
}

// Start waits for the store to be ready, then opens every stream.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.watcher.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for document store: %w", err)
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	old, err := a.takeTasks(false)
	if err != nil {
		return err
	}
	stopTasks(old)

	opened := a.openAll(ctx)

	a.mu.Lock()
	a.tasks = opened
	a.mu.Unlock()
	return nil
}

// Restart stops every stream, waits for their goroutines to exit, then
// reopens them. Events are neither duplicated nor lost across the swap for
// changes made after Restart returns.
func (a *Adapter) Restart(ctx context.Context) error {
	a.logger.Info("restarting change streams")
	return a.Start(ctx)
}

// Close stops every stream. The Adapter cannot be started again.
func (a *Adapter) Close() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	old, _ := a.takeTasks(true)
	stopTasks(old)
	a.logger.Info("change streams closed")
}

// Running returns the names of streams whose goroutine is still active.
func (a *Adapter) Running() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var names []string
	for _, ws := range a.streams {
		task, ok := a.tasks[ws.name]
		if !ok {
			continue
		}
		select {
		case <-task.done:
		default:
			names = append(names, ws.name)
		}
	}
	return names
}

// takeTasks detaches the current tasks. With closing set it also marks the
// Adapter closed; otherwise a closed Adapter yields ErrAdapterClosed.
func (a *Adapter) takeTasks(closing bool) (map[string]*watchTask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed && !closing {
		return nil, ErrAdapterClosed
	}
	a.closed = a.closed || closing

	old := a.tasks
	a.tasks = make(map[string]*watchTask)
	return old, nil
}

// openAll opens every stream and starts its goroutine. Streams that fail
// to open are logged and skipped.
func (a *Adapter) openAll(ctx context.Context) map[string]*watchTask {
	opened := make(map[string]*watchTask, len(a.streams))
	for _, ws := range a.streams {
		streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

		cs, err := a.watcher.Watch(streamCtx, ws.collection, ws.pipeline)
		if err != nil {
			cancel()
			a.metrics.ChangeStreamError(ws.name)
			a.logger.Error("failed to open change stream", "stream", ws.name, "error", err)
			continue
		}

		task := &watchTask{cancel: cancel, done: make(chan struct{})}
		opened[ws.name] = task
		go a.run(streamCtx, ws, cs, task.done)

		a.logger.Info("change stream opened", "stream", ws.name)
	}
	return opened
}

func stopTasks(tasks map[string]*watchTask) {
	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

func (a *Adapter) run(ctx context.Context, ws watchedStream, cs mongodb.ChangeStream, done chan<- struct{}) {
	defer close(done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := cs.Close(closeCtx); err != nil {
			a.logger.Debug("closing change stream", "stream", ws.name, "error", err)
		}
	}()

	for cs.Next(ctx) {
		var change bson.M
		if err := cs.Decode(&change); err != nil {
			a.metrics.ChangeStreamError(ws.name)
			a.logger.Warn("undecodable change event", "stream", ws.name, "error", err)
			continue
		}

		a.metrics.ChangeStreamEvent(ws.name)
		for _, e := range ws.convert(change) {
			a.sink.Publish(e)
		}
	}

	if err := cs.Err(); err != nil && ctx.Err() == nil {
		a.metrics.ChangeStreamError(ws.name)
		a.logger.Error("change stream failed", "stream", ws.name, "error", err)
	}
}

// readingChangeEvents turns a readings insert into database_change and
// new_sensor_reading.
func readingChangeEvents(change bson.M) []Event {
	doc, ok := fullDocument(change, "insert")
	if !ok {
		return nil
	}

	deviceID := stringField(doc, "deviceId")
	sensorName := stringField(doc, "sensorName")
	readingTime := timeField(doc, "timestamp")

	return []Event{
		{
			Kind:       MsgDatabaseChange,
			Collection: collectionReadings,
			DeviceID:   deviceID,
			Payload: map[string]any{
				"type":       ChangeReadingInserted,
				"collection": collectionReadings,
				"data": map[string]any{
					"id":         idValue(doc["_id"]),
					"deviceId":   deviceID,
					"sensorType": sensorName,
					"sensorName": sensorName,
					"value":      doc["value"],
					"timestamp":  readingTime,
					"identifier": stringField(doc, "identifier"),
				},
			},
		},
		{
			Kind:       MsgNewSensorReading,
			Collection: collectionReadings,
			DeviceID:   deviceID,
			Payload: map[string]any{
				"deviceId":         deviceID,
				"sensorType":       sensorName,
				"sensorName":       sensorName,
				"value":            doc["value"],
				"identifier":       stringField(doc, "identifier"),
				"readingTimestamp": readingTime,
			},
		},
	}
}

// deviceEnvironmentChangeEvents turns a status update into database_change
// and the same device_status_changed event a direct status change produces.
func deviceEnvironmentChangeEvents(change bson.M) []Event {
	doc, ok := fullDocument(change, "update", "replace")
	if !ok {
		return nil
	}

	updated := bson.M{}
	if desc, ok := asDocument(change["updateDescription"]); ok {
		if fields, ok := asDocument(desc["updatedFields"]); ok {
			updated = fields
		}
	}

	link := DeviceLink{
		ID:            int64Field(doc, "id"),
		EnvironmentID: int64Field(doc, "id_environment"),
		DeviceID:      int64Field(doc, "id_device"),
		Alias:         stringField(doc, "alias"),
		Type:          stringField(doc, "type"),
	}
	status := stringField(doc, "status")

	events := []Event{
		{
			Kind:          MsgDatabaseChange,
			Collection:    collectionDeviceEnvironments,
			DeviceID:      idString(link.DeviceID),
			EnvironmentID: idString(link.EnvironmentID),
			DeviceType:    link.Type,
			Payload: map[string]any{
				"type":       ChangeDeviceEnvironmentUpdated,
				"collection": collectionDeviceEnvironments,
				"data": map[string]any{
					"id":            idValue(doc["_id"]),
					"deviceId":      doc["id_device"],
					"environmentId": doc["id_environment"],
					"status":        status,
					"alias":         link.Alias,
					"type":          link.Type,
					"updatedFields": map[string]any(updated),
				},
			},
		},
	}

	if _, changed := updated["status"]; changed {
		events = append(events, statusChangedEvent(link, status))
	}
	return events
}

// deviceChangeEvents turns a devices insert into database_change and new_device.
func deviceChangeEvents(change bson.M) []Event {
	doc, ok := fullDocument(change, "insert")
	if !ok {
		return nil
	}

	data := map[string]any{
		"id":        idValue(doc["_id"]),
		"name":      stringField(doc, "name"),
		"createdAt": timeField(doc, "created_at"),
	}

	return []Event{
		{
			Kind:       MsgDatabaseChange,
			Collection: collectionDevices,
			Payload: map[string]any{
				"type":       ChangeDeviceInserted,
				"collection": collectionDevices,
				"data":       data,
			},
		},
		{
			Kind:       MsgNewDevice,
			Collection: collectionDevices,
			Payload:    data,
		},
	}
}

func fullDocument(change bson.M, operations ...string) (bson.M, bool) {
	op, _ := change["operationType"].(string)
	matched := false
	for _, want := range operations {
		if op == want {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}
	return asDocument(change["fullDocument"])
}

// asDocument accepts the shapes an embedded document decodes to.
func asDocument(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, d != nil
	case map[string]any:
		return bson.M(d), d != nil
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	default:
		return nil, false
	}
}

func idValue(v any) any {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return v
}

func stringField(doc bson.M, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case primitive.ObjectID:
		return v.Hex()
	default:
		return ""
	}
}

func int64Field(doc bson.M, key string) int64 {
	switch v := doc[key].(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64) //nolint:errcheck // non-numeric ids read as zero
		return n
	default:
		return 0
	}
}

// timeField renders a BSON date as ISO-8601. Other values pass through.
func timeField(doc bson.M, key string) any {
	switch v := doc[key].(type) {
	case primitive.DateTime:
		return formatTime(v.Time())
	case time.Time:
		return formatTime(v)
	default:
		return v
	}
}
