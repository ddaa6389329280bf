package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nerrad567/petcare-core/internal/infrastructure/config"
)

// Collection names used across PetCare Core.
const (
	CollectionReadings           = "readings"
	CollectionDevices            = "devices"
	CollectionDeviceEnvironments = "device_environments"
)

const (
	appName = "petcare-core"

	defaultPingTimeout = 5 * time.Second

	// readyPollInterval is the delay between pings in WaitReady.
	readyPollInterval = 500 * time.Millisecond
)

// ChangeStream is the subset of *mongo.ChangeStream the realtime adapter
// consumes. Tests substitute an in-memory implementation.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Client wraps the MongoDB driver client bound to one database.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    config.MongoDBConfig

	mu        sync.RWMutex
	connected bool
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
//
// Parameters:
//   - ctx: Context bounding connection and the initial ping
//   - cfg: MongoDB configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed wrapping the driver error
func Connect(ctx context.Context, cfg config.MongoDBConfig) (*Client, error) {
	opts := clientOptions(cfg)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid options: %w", ErrConnectionFailed, err)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, secondsOr(cfg.ServerSelectionTimeout, defaultPingTimeout))
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}

	return &Client{
		client:    client,
		db:        client.Database(cfg.Database),
		cfg:       cfg,
		connected: true,
	}, nil
}

// clientOptions maps configuration onto driver options.
func clientOptions(cfg config.MongoDBConfig) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName)

	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(time.Duration(cfg.ServerSelectionTimeout) * time.Second)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}
	if cfg.SocketTimeout > 0 {
		opts.SetSocketTimeout(time.Duration(cfg.SocketTimeout) * time.Second)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	return opts
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Close disconnects from MongoDB. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if !wasConnected || c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting mongodb: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the primary with a bounded timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.client.Ping(checkCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// WaitReady blocks until a ping succeeds or ctx is done.
// Change streams are only opened once the server answers.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if err := c.HealthCheck(ctx); err == nil {
			return nil
		} else if !c.IsConnected() {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection returns a handle to the named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Watch opens a change stream on a collection. Update events carry the
// post-image of the document (fullDocument: updateLookup).
//
// Parameters:
//   - ctx: Context bounding the stream's lifetime
//   - collection: Collection name
//   - pipeline: Server-side aggregation stages, usually a $match
//
// Returns:
//   - ChangeStream: Open stream; the caller must Close it
//   - error: ErrWatchFailed wrapping the driver error
func (c *Client) Watch(ctx context.Context, collection string, pipeline mongo.Pipeline) (ChangeStream, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := c.db.Collection(collection).Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrWatchFailed, collection, err)
	}
	return stream, nil
}
