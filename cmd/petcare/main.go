// PetCare Core - IoT pet-care backend
//
// This is the main entry point for the PetCare Core service. It serves the
// REST API for environments, devices and feeder/waterer/litter box links,
// ingests device telemetry over MQTT and fans state changes out to
// WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/petcare-core/internal/api"
	"github.com/nerrad567/petcare-core/internal/device"
	"github.com/nerrad567/petcare-core/internal/environment"
	"github.com/nerrad567/petcare-core/internal/infrastructure/config"
	"github.com/nerrad567/petcare-core/internal/infrastructure/database"
	"github.com/nerrad567/petcare-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mongodb"
	"github.com/nerrad567/petcare-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/petcare-core/internal/metrics"
	"github.com/nerrad567/petcare-core/internal/realtime"
	"github.com/nerrad567/petcare-core/internal/telemetry"
	"github.com/nerrad567/petcare-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the MongoDB disconnect on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PetCare Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Relational store
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Document store
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("connecting to MongoDB: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MongoDB")
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if closeErr := mongoClient.Close(closeCtx); closeErr != nil {
			log.Error("error closing MongoDB", "error", closeErr)
		}
	}()
	log.Info("MongoDB connected",
		"uri", logging.RedactURI(cfg.MongoDB.URI),
		"database", cfg.MongoDB.Database,
	)

	readings := telemetry.NewMongoRepository(mongoClient.Collection(mongodb.CollectionReadings))
	if indexErr := readings.EnsureIndexes(ctx); indexErr != nil {
		log.Warn("failed to ensure reading indexes", "error", indexErr)
	}

	// Time-series mirror (optional)
	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	m := metrics.New()

	// Realtime layer
	broadcaster := realtime.NewBroadcaster(log, m)
	responder := realtime.NewResponder(readings, realtime.ResponderConfig{
		Timeout:         time.Duration(cfg.Realtime.InitialDataTimeout) * time.Second,
		FallbackTimeout: time.Duration(cfg.Realtime.FallbackTimeout) * time.Second,
		DefaultLimit:    cfg.Realtime.DefaultLimit,
		MaxLimit:        cfg.Realtime.MaxLimit,
	}, log, m)
	hub := realtime.NewHub(realtime.HubConfigFrom(cfg.WebSocket), broadcaster, responder, log, m)
	go hub.Run(ctx)
	defer hub.Close()

	adapter := realtime.NewAdapter(mongoClient, broadcaster, log, m)
	if cfg.Realtime.ChangeStreams {
		if startErr := adapter.Start(ctx); startErr != nil {
			return fmt.Errorf("starting change streams: %w", startErr)
		}
		log.Info("change streams started", "streams", adapter.Running())
	} else {
		log.Info("change streams disabled")
	}
	defer adapter.Close()

	// Telemetry ingestion
	ingestor := telemetry.NewIngestor(readings, readingMirror(influxClient), log, m)
	ingestor.SetNotifier(readingNotifier(broadcaster))
	ingestor.SetPayloadNotifier(sensorDataNotifier(broadcaster))

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated 0..2 by config
		if subErr := ingestor.Subscribe(mqttClient, qos); subErr != nil {
			return fmt.Errorf("subscribing to device readings: %w", subErr)
		}
		hub.SetCommandPublisher(mqttClient)
		log.Info("telemetry ingestion subscribed", "topic", mqtt.Topics{}.AllDeviceReadings())
	} else {
		log.Info("MQTT disabled")
	}

	// Domain services
	devices := device.NewService(device.NewSQLiteRepository(db.DB), log, device.Options{
		Announcer:        broadcaster,
		Recorder:         eventRecorder(influxClient),
		Mirror:           device.NewMongoMirror(mongoClient.Collection(mongodb.CollectionDevices)),
		LowFoodThreshold: cfg.Realtime.LowFoodThreshold,
	})

	checks := map[string]api.HealthChecker{
		"sqlite":  db,
		"mongodb": mongoClient,
	}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	deps := api.Deps{
		Config:       cfg.API,
		Logger:       log,
		Metrics:      m,
		Environments: environment.NewSQLiteRepository(db.DB),
		Devices:      devices,
		Readings:     readings,
		Ingestor:     ingestor,
		Hub:          hub,
		WSPath:       cfg.WebSocket.Path,
		Broadcaster:  broadcaster,
		Streams:      adapter,
		Checks:       checks,
		DB:           db.DB,
		Version:      version,
	}
	if mqttClient != nil {
		deps.Commands = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, MQTT,
	// change streams, hub, InfluxDB, MongoDB, database.

	log.Info("PetCare Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PETCARE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PETCARE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux returns nil without error when InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// readingMirror and eventRecorder keep a nil *influxdb.Client from becoming
// a non-nil interface.
func readingMirror(c *influxdb.Client) telemetry.Mirror {
	if c == nil {
		return nil
	}
	return c
}

func eventRecorder(c *influxdb.Client) device.EventRecorder {
	if c == nil {
		return nil
	}
	return c
}

// readingNotifier relays stored readings to device and environment
// subscribers as realtime_reading.
func readingNotifier(b *realtime.Broadcaster) telemetry.Notifier {
	return func(r *telemetry.Reading) {
		payload := map[string]any{
			"deviceId":         r.DeviceID,
			"sensorName":       r.SensorName,
			"identifier":       r.Identifier,
			"value":            r.Value,
			"readingTimestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if r.DeviceEnvironmentID != "" {
			payload["deviceEnvirId"] = r.DeviceEnvironmentID
		}
		if r.SensorID != "" {
			payload["sensorId"] = r.SensorID
		}
		b.RealtimeReading(r.DeviceID, "", payload)
	}
}

// sensorDataNotifier relays each raw device payload to every client as
// sensor_data.
func sensorDataNotifier(b *realtime.Broadcaster) telemetry.PayloadNotifier {
	return func(deviceID string, payload json.RawMessage) {
		b.SensorData(deviceID, payload)
	}
}

// healthCheck verifies every infrastructure connection once at startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, checker := range checks {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
