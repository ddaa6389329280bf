package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/realtime"
)

// Announcer publishes link changes to realtime clients.
// *realtime.Broadcaster implements it.
type Announcer interface {
	StatusChanged(link realtime.DeviceLink, status string)
	CriticalAlert(link realtime.DeviceLink, status string)
	IntervalChanged(link realtime.DeviceLink, minutes int)
	CleaningStarted(link realtime.DeviceLink)
	CleaningCompleted(link realtime.DeviceLink)
	CleaningReminder(link realtime.DeviceLink, minutesUntilNext int)
	FoodUpdated(link realtime.DeviceLink, grams float64, previous *float64)
	LowFoodAlert(link realtime.DeviceLink, grams, threshold float64)
}

// EventRecorder keeps a time-series history of link changes.
// *influxdb.Client implements it.
type EventRecorder interface {
	WriteFoodLevel(deviceEnvironmentID, alias string, grams float64)
	WriteDeviceEvent(deviceEnvironmentID, deviceType, event, severity string)
}

// Mirror copies registered devices into the document store.
type Mirror interface {
	MirrorDevice(ctx context.Context, d *Device) error
}

// Options configures optional Service collaborators. Nil members are
// skipped.
type Options struct {
	Announcer        Announcer
	Recorder         EventRecorder
	Mirror           Mirror
	LowFoodThreshold float64
}

// Event names recorded through EventRecorder.
const (
	eventStatusChanged     = "status_changed"
	eventIntervalChanged   = "interval_changed"
	eventCleaningStarted   = "cleaning_started"
	eventCleaningCompleted = "cleaning_completed"
	eventLowFood           = "low_food"
)

// FoodOp selects how UpdateFood applies its amount.
type FoodOp string

// Food operations.
const (
	FoodSet     FoodOp = "set"
	FoodAdd     FoodOp = "add"
	FoodConsume FoodOp = "consume"
)

// FoodChange is one food mutation.
type FoodChange struct {
	Op    FoodOp
	Grams float64
}

// FoodResult reports a food mutation.
type FoodResult struct {
	Link     *Link   `json:"device"`
	Previous float64 `json:"previousAmount"`
	Current  float64 `json:"remainingAmount"`
	Consumed float64 `json:"consumedAmount,omitempty"`
}

// Service applies link mutations and announces them.
type Service struct {
	repo             Repository
	announcer        Announcer
	recorder         EventRecorder
	mirror           Mirror
	logger           *logging.Logger
	lowFoodThreshold float64
	now              func() time.Time

	mu sync.Mutex
}

// NewService creates a Service over repo.
func NewService(repo Repository, logger *logging.Logger, opts Options) *Service {
	threshold := opts.LowFoodThreshold
	if threshold <= 0 {
		threshold = realtime.DefaultLowFoodThreshold
	}
	return &Service{
		repo:             repo,
		announcer:        opts.Announcer,
		recorder:         opts.Recorder,
		mirror:           opts.Mirror,
		logger:           logger.Component("device"),
		lowFoodThreshold: threshold,
		now:              time.Now,
	}
}

// RegisterDevice stores d and mirrors it into the document store. A mirror
// failure is logged; the device stays registered.
func (s *Service) RegisterDevice(ctx context.Context, d *Device) error {
	if err := s.repo.CreateDevice(ctx, d); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorDevice(ctx, d); err != nil {
			s.logger.Warn("device not mirrored", "device_id", d.ID, "error", err)
		}
	}
	s.logger.Info("device registered", "device_id", d.ID, "name", d.Name)
	return nil
}

// GetDevice returns a device by id.
func (s *Service) GetDevice(ctx context.Context, id int64) (*Device, error) {
	return s.repo.GetDevice(ctx, id)
}

// ListDevices returns every device.
func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	return s.repo.ListDevices(ctx)
}

// CreateLink installs a device in an environment.
func (s *Service) CreateLink(ctx context.Context, l *Link) error {
	if err := s.repo.CreateLink(ctx, l); err != nil {
		return err
	}
	s.logger.Info("device linked", "link_id", l.ID, "device_id", l.DeviceID, "environment_id", l.EnvironmentID, "type", l.Type)
	return nil
}

// GetLink returns a link by id.
func (s *Service) GetLink(ctx context.Context, id int64) (*Link, error) {
	return s.repo.GetLink(ctx, id)
}

// ListLinks returns links matching filter.
func (s *Service) ListLinks(ctx context.Context, filter LinkFilter) ([]Link, error) {
	return s.repo.ListLinks(ctx, filter)
}

// UpdateStatus sets a link's status. Alert statuses also raise a
// critical alert.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Link, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}

	l, err := s.mutate(ctx, id, func(l *Link) error {
		l.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announceStatus(l)
	if realtime.IsAlertStatus(string(status)) {
		s.announce(func(a Announcer) { a.CriticalAlert(l.DeviceLink(), string(status)) })
	}
	return l, nil
}

// UpdateInterval sets the cleaning interval of a litter box.
func (s *Service) UpdateInterval(ctx context.Context, id int64, minutes int) (*Link, error) {
	if err := ValidateInterval(minutes); err != nil {
		return nil, err
	}

	l, err := s.mutate(ctx, id, func(l *Link) error {
		if l.Type != TypeLitterBox {
			return fmt.Errorf("%w: only arenero has a cleaning interval", ErrUnsupported)
		}
		l.Interval = &minutes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(func(a Announcer) { a.IntervalChanged(l.DeviceLink(), minutes) })
	s.record(l, eventIntervalChanged, realtime.SeverityLow)
	return l, nil
}

// UpdateFood sets, adds to or consumes a feeder's food. Reaching zero sets
// the status to sin_comida; at or below the low-food threshold a
// low_food_alert is raised.
func (s *Service) UpdateFood(ctx context.Context, id int64, change FoodChange) (*FoodResult, error) {
	if err := validateFoodChange(change); err != nil {
		return nil, err
	}

	var previous *float64
	result := &FoodResult{}
	l, err := s.mutate(ctx, id, func(l *Link) error {
		if l.Type != TypeFeeder {
			return fmt.Errorf("%w: only comedero tracks food", ErrUnsupported)
		}

		if l.FoodGrams != nil {
			prev := *l.FoodGrams
			previous = &prev
			result.Previous = prev
		}

		current := change.Grams
		switch change.Op {
		case FoodAdd:
			current = result.Previous + change.Grams
		case FoodConsume:
			current = max(0, result.Previous-change.Grams)
			result.Consumed = min(change.Grams, result.Previous)
		}

		result.Current = current
		l.FoodGrams = &current
		if current == 0 {
			l.Status = StatusNoFood
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Link = l

	link := l.DeviceLink()
	s.announce(func(a Announcer) { a.FoodUpdated(link, result.Current, previous) })
	if s.recorder != nil {
		s.recorder.WriteFoodLevel(l.RecordID(), l.Alias, result.Current)
	}

	if result.Current <= s.lowFoodThreshold {
		s.announce(func(a Announcer) { a.LowFoodAlert(link, result.Current, s.lowFoodThreshold) })
		s.record(l, eventLowFood, realtime.LowFoodSeverity(result.Current))
	}
	if result.Current == 0 {
		s.announceStatus(l)
	}
	return result, nil
}

func validateFoodChange(change FoodChange) error {
	switch change.Op {
	case FoodSet:
		if change.Grams < 0 {
			return fmt.Errorf("%w: must not be negative", ErrInvalidFood)
		}
	case FoodAdd, FoodConsume:
		if change.Grams <= 0 {
			return fmt.Errorf("%w: must be a positive number of grams", ErrInvalidFood)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidFood, change.Op)
	}
	return nil
}

// StartCleaning marks a litter box as being cleaned (status sucio).
func (s *Service) StartCleaning(ctx context.Context, id int64) (*Link, error) {
	l, err := s.mutate(ctx, id, func(l *Link) error {
		if l.Type != TypeLitterBox {
			return fmt.Errorf("%w: only arenero has a cleaning cycle", ErrUnsupported)
		}
		started := s.now().UTC()
		l.Status = StatusDirty
		l.CleaningStartedAt = &started
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(func(a Announcer) { a.CleaningStarted(l.DeviceLink()) })
	s.announceStatus(l)
	s.record(l, eventCleaningStarted, realtime.SeverityLow)
	return l, nil
}

// CompleteCleaning ends a cleaning cycle (status abastecido).
func (s *Service) CompleteCleaning(ctx context.Context, id int64) (*Link, error) {
	l, err := s.mutate(ctx, id, func(l *Link) error {
		if l.Type != TypeLitterBox {
			return fmt.Errorf("%w: only arenero has a cleaning cycle", ErrUnsupported)
		}
		finished := s.now().UTC()
		l.Status = StatusSupplied
		l.CleaningStartedAt = nil
		l.LastCleanedAt = &finished
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(func(a Announcer) { a.CleaningCompleted(l.DeviceLink()) })
	s.announceStatus(l)
	s.record(l, eventCleaningCompleted, realtime.SeverityLow)
	return l, nil
}

// CleaningReminder announces the next cleaning of a litter box. Nothing
// is persisted.
func (s *Service) CleaningReminder(ctx context.Context, id int64, minutesUntilNext int) (*Link, error) {
	if minutesUntilNext <= 0 {
		return nil, fmt.Errorf("%w: minutes until next cleaning must be positive", ErrInvalidInterval)
	}

	l, err := s.repo.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Type != TypeLitterBox {
		return nil, fmt.Errorf("%w: only arenero has cleaning reminders", ErrUnsupported)
	}

	s.announce(func(a Announcer) { a.CleaningReminder(l.DeviceLink(), minutesUntilNext) })
	return l, nil
}

// mutate loads a link, applies fn and saves it under the service lock.
func (s *Service) mutate(ctx context.Context, id int64, fn func(l *Link) error) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.repo.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(l); err != nil {
		return nil, err
	}
	if err := s.repo.SaveLink(ctx, l); err != nil {
		return nil, err
	}
	return l.Clone(), nil
}

func (s *Service) announceStatus(l *Link) {
	s.announce(func(a Announcer) { a.StatusChanged(l.DeviceLink(), string(l.Status)) })
	s.record(l, eventStatusChanged, realtime.SeverityFor(string(l.Status)))
}

func (s *Service) announce(fn func(a Announcer)) {
	if s.announcer == nil {
		return
	}
	fn(s.announcer)
}

func (s *Service) record(l *Link, event string, severity realtime.Severity) {
	if s.recorder == nil {
		return
	}
	s.recorder.WriteDeviceEvent(l.RecordID(), string(l.Type), event, string(severity))
}
