package device

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoMirror copies registered devices into the document store so the
// devices change stream can announce them.
type MongoMirror struct {
	coll *mongo.Collection
}

// NewMongoMirror creates a mirror writing to coll (the devices collection).
func NewMongoMirror(coll *mongo.Collection) *MongoMirror {
	return &MongoMirror{coll: coll}
}

// MirrorDevice inserts the device document. The relational id is the
// document _id.
func (m *MongoMirror) MirrorDevice(ctx context.Context, d *Device) error {
	if _, err := m.coll.InsertOne(ctx, deviceDocument(d)); err != nil {
		return fmt.Errorf("mirroring device %d: %w", d.ID, err)
	}
	return nil
}

func deviceDocument(d *Device) bson.M {
	doc := bson.M{
		"_id":        d.ID,
		"name":       d.Name,
		"created_at": d.CreatedAt,
	}
	if d.EnvironmentID != nil {
		doc["environment_id"] = *d.EnvironmentID
	}
	return doc
}
