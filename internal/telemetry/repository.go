package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Query limits.
const (
	// DefaultPageSize is used when a caller asks for page size 0.
	DefaultPageSize = 50

	// MaxPageSize caps ListByDevice pages.
	MaxPageSize = 500
)

// Page is one page of a device's readings, newest first.
type Page struct {
	Readings   []Reading  `json:"readings"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes a Page.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// SensorStats aggregates one sensor's readings for a device.
type SensorStats struct {
	SensorName  string    `bson:"_id" json:"sensorName"`
	Count       int64     `bson:"count" json:"count"`
	AvgValue    float64   `bson:"avgValue" json:"avgValue"`
	MinValue    float64   `bson:"minValue" json:"minValue"`
	MaxValue    float64   `bson:"maxValue" json:"maxValue"`
	LastReading time.Time `bson:"lastReading" json:"lastReading"`
}

// MongoRepository persists readings in a MongoDB collection.
//
// Thread Safety:
//   - Safe for concurrent use; *mongo.Collection is goroutine-safe.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoRepository creates a repository over the readings collection.
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll, now: time.Now}
}

// EnsureIndexes creates {deviceId:1, timestamp:-1} and {sensorName:1}.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "sensorName", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: creating indexes: %w", ErrQueryFailed, err)
	}
	return nil
}

// Insert validates and stores a reading, filling ID and timestamps.
func (r *MongoRepository) Insert(ctx context.Context, reading *Reading) error {
	now := r.now().UTC()
	reading.Normalize(now)
	if err := reading.Validate(); err != nil {
		return err
	}
	reading.CreatedAt = now
	reading.UpdatedAt = now

	res, err := r.coll.InsertOne(ctx, reading)
	if err != nil {
		return fmt.Errorf("%w: insert: %w", ErrQueryFailed, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		reading.ID = oid
	}
	return nil
}

// RecentByDevice returns up to perDevice newest readings for each device id,
// computed server-side. An empty id list matches every device.
func (r *MongoRepository) RecentByDevice(ctx context.Context, deviceIDs []string, perDevice int) ([]Reading, error) {
	opts := options.Aggregate().SetAllowDiskUse(true)
	cursor, err := r.coll.Aggregate(ctx, recentByDevicePipeline(deviceIDs, perDevice), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: recent by device: %w", ErrQueryFailed, err)
	}

	var readings []Reading
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("%w: decoding readings: %w", ErrQueryFailed, err)
	}
	return readings, nil
}

// Latest returns the max newest readings across all devices.
func (r *MongoRepository) Latest(ctx context.Context, max int) ([]Reading, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(max))

	return r.find(ctx, bson.M{}, opts)
}

// ListByDevice returns one page of a device's readings, newest first.
func (r *MongoRepository) ListByDevice(ctx context.Context, deviceID string, page, limit int) (Page, error) {
	page, limit = normalizePage(page, limit)
	filter := bson.M{"deviceId": deviceID}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	readings, err := r.find(ctx, filter, opts)
	if err != nil {
		return Page{}, err
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("%w: count: %w", ErrQueryFailed, err)
	}

	return Page{
		Readings:   readings,
		Pagination: paginate(page, limit, total),
	}, nil
}

// ListByRange returns a device's readings with from <= timestamp <= to,
// newest first.
func (r *MongoRepository) ListByRange(ctx context.Context, deviceID string, from, to time.Time) ([]Reading, error) {
	filter := bson.M{
		"deviceId": deviceID,
		"timestamp": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	return r.find(ctx, filter, opts)
}

// Stats aggregates a device's readings per sensor name.
func (r *MongoRepository) Stats(ctx context.Context, deviceID string) ([]SensorStats, error) {
	cursor, err := r.coll.Aggregate(ctx, statsPipeline(deviceID))
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %w", ErrQueryFailed, err)
	}

	var stats []SensorStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("%w: decoding stats: %w", ErrQueryFailed, err)
	}
	return stats, nil
}

func (r *MongoRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]Reading, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %w", ErrQueryFailed, err)
	}

	readings := []Reading{}
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("%w: decoding readings: %w", ErrQueryFailed, err)
	}
	return readings, nil
}

// recentByDevicePipeline keeps the perDevice newest documents of each
// device inside the $group stage ($topN, MongoDB 5.2+), so no group ever
// holds more than perDevice readings.
func recentByDevicePipeline(deviceIDs []string, perDevice int) mongo.Pipeline {
	var pipeline mongo.Pipeline
	if len(deviceIDs) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"deviceId": bson.M{"$in": deviceIDs},
		}}})
	}

	return append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$deviceId"},
			{Key: "readings", Value: bson.M{"$topN": bson.D{
				{Key: "n", Value: perDevice},
				{Key: "sortBy", Value: bson.D{{Key: "timestamp", Value: -1}}},
				{Key: "output", Value: "$$ROOT"},
			}}},
		}}},
		bson.D{{Key: "$unwind", Value: "$readings"}},
		bson.D{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$readings"}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
	)
}

func statsPipeline(deviceID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"deviceId": deviceID}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sensorName"},
			{Key: "count", Value: bson.M{"$sum": 1}},
			{Key: "avgValue", Value: bson.M{"$avg": "$value"}},
			{Key: "minValue", Value: bson.M{"$min": "$value"}},
			{Key: "maxValue", Value: bson.M{"$max": "$value"}},
			{Key: "lastReading", Value: bson.M{"$max": "$timestamp"}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func paginate(page, limit int, total int64) Pagination {
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}
}
