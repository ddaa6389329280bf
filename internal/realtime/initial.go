package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/metrics"
	"github.com/nerrad567/petcare-core/internal/telemetry"
)

// Responder defaults.
const (
	defaultInitialTimeout  = 30 * time.Second
	defaultFallbackTimeout = 10 * time.Second
	defaultInitialLimit    = 10
	defaultMaxInitialLimit = 100
	defaultFallbackMax     = 50
)

// ReadingFinder is the read side of the readings store used for snapshots.
// telemetry.MongoRepository implements it.
type ReadingFinder interface {
	// RecentByDevice returns up to perDevice newest readings per device.
	RecentByDevice(ctx context.Context, deviceIDs []string, perDevice int) ([]telemetry.Reading, error)

	// Latest returns the max newest readings across all devices.
	Latest(ctx context.Context, max int) ([]telemetry.Reading, error)
}

// InitialDataRequest is the request_initial_data payload.
// Device ids may be JSON numbers or strings.
type InitialDataRequest struct {
	DeviceIDs []telemetry.FlexID `json:"deviceIds"`
	Limit     *float64           `json:"limit"`
}

// ResponderConfig bounds snapshot queries. Zero values take defaults.
type ResponderConfig struct {
	Timeout         time.Duration
	FallbackTimeout time.Duration
	DefaultLimit    int
	MaxLimit        int
	FallbackMax     int
}

func (c ResponderConfig) withDefaults() ResponderConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultInitialTimeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = defaultFallbackTimeout
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultInitialLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = defaultMaxInitialLimit
	}
	if c.FallbackMax <= 0 {
		c.FallbackMax = defaultFallbackMax
	}
	return c
}

// Snapshot is the result of an initial data query.
type Snapshot struct {
	Groups   []telemetry.DeviceReadings
	Degraded bool
}

// Responder answers request_initial_data to the requesting connection only.
type Responder struct {
	finder  ReadingFinder
	cfg     ResponderConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewResponder creates a Responder over finder.
func NewResponder(finder ReadingFinder, cfg ResponderConfig, logger *logging.Logger, m *metrics.Metrics) *Responder {
	return &Responder{
		finder:  finder,
		cfg:     cfg.withDefaults(),
		logger:  logger.Component("initial_data"),
		metrics: m,
		now:     time.Now,
	}
}

// Respond runs the snapshot query and replies to conn with initial_data,
// or with an error of type service_unavailable if both queries fail.
func (r *Responder) Respond(ctx context.Context, conn Conn, requestID string, req InitialDataRequest) {
	snap, err := r.Snapshot(ctx, req)
	if err != nil {
		r.logger.Error("initial data unavailable", "conn_id", conn.ID(), "error", err)
		sendTo(conn, MsgError, requestID,
			errorPayload(ErrTypeServiceUnavailable, "No se pudieron obtener los datos iniciales"),
			r.now())
		return
	}

	message := fmt.Sprintf("Datos iniciales de %d dispositivos", len(snap.Groups))
	if snap.Degraded {
		message += " (modo degradado)"
	}

	sendTo(conn, MsgInitialData, requestID, map[string]any{
		"type":     "recent_readings",
		"data":     snap.Groups,
		"message":  message,
		"degraded": snap.Degraded,
	}, r.now())
}

// Snapshot returns the newest readings grouped per device. The primary
// query is bounded by cfg.Timeout; on failure a smaller unfiltered query
// bounded by cfg.FallbackTimeout is tried and filtered here.
func (r *Responder) Snapshot(ctx context.Context, req InitialDataRequest) (Snapshot, error) {
	ids := telemetry.FlexIDs(req.DeviceIDs)
	limit := r.limit(req.Limit)

	primaryCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	readings, err := r.finder.RecentByDevice(primaryCtx, ids, limit)
	cancel()
	if err == nil {
		r.metrics.InitialData(metrics.InitialDataOK)
		return Snapshot{Groups: telemetry.GroupByDevice(readings, ids, limit)}, nil
	}

	r.logger.Warn("initial data query failed, trying fallback", "error", err)

	fallbackCtx, cancel := context.WithTimeout(ctx, r.cfg.FallbackTimeout)
	readings, fallbackErr := r.finder.Latest(fallbackCtx, r.cfg.FallbackMax)
	cancel()
	if fallbackErr != nil {
		r.metrics.InitialData(metrics.InitialDataFailed)
		return Snapshot{}, fmt.Errorf("initial data: %w (fallback: %w)", err, fallbackErr)
	}

	r.metrics.InitialData(metrics.InitialDataFallback)
	return Snapshot{
		Groups:   telemetry.GroupByDevice(readings, ids, limit),
		Degraded: true,
	}, nil
}

func (r *Responder) limit(requested *float64) int {
	if requested == nil || *requested < 1 {
		return r.cfg.DefaultLimit
	}
	n := int(*requested)
	if n > r.cfg.MaxLimit {
		return r.cfg.MaxLimit
	}
	return n
}
