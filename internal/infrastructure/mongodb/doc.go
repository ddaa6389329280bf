// Package mongodb provides the MongoDB document store connection for PetCare Core.
//
// MongoDB holds the time-series sensor readings and a mirror of registered
// devices. Its change streams feed the realtime package, so the server must
// run as a replica set (a single-node set is enough for development).
//
// Usage:
//
//	client, err := mongodb.Connect(ctx, cfg.MongoDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	readings := client.Collection(mongodb.CollectionReadings)
//	stream, err := client.Watch(ctx, mongodb.CollectionReadings, pipeline)
//
// Thread Safety:
//   - Client is safe for concurrent use; the driver pools connections.
package mongodb
