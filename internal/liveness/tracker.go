// FilePath: internal/liveness/tracker.go
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// EventLivenessChanged is emitted on every state transition with a
// StateChange payload.
const EventLivenessChanged = "liveness.changed"

// StateChange describes one liveness transition.
type StateChange struct {
	SensorID int64                   `json:"sensor_id"`
	From     models.ConnectionStatus `json:"from"`
	To       models.ConnectionStatus `json:"to"`
	At       time.Time               `json:"at"`
}

// SensorStateStore is the persistence the tracker writes liveness state
// through. The postgres sensor repository implements it; no other component
// writes connection status.
type SensorStateStore interface {
	Get(ctx context.Context, id int64) (*models.Sensor, error)
	ListActive(ctx context.Context) ([]*models.Sensor, error)
	UpdateConnectionStatus(ctx context.Context, id int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error
}

// Publisher fans liveness transitions out to external subscribers. Delivery
// beyond the publish call is not the tracker's concern.
type Publisher interface {
	PublishStateChange(ctx context.Context, change StateChange) error
}

// Config holds the tracker tunables.
type Config struct {
	SweepInterval time.Duration
	// TimeoutMultiplier derives the connection timeout from the heartbeat
	// interval when a sensor has no explicit timeout configured.
	TimeoutMultiplier int
	// StaleGraceFactor > 0 enables the Stale warning state: a silent sensor
	// goes Online → Stale at the timeout and Stale → Offline after a further
	// timeout × factor. Zero disables Stale and goes straight to Offline.
	StaleGraceFactor float64
	// DefaultHeartbeatInterval applies to sensors with no interval of their own.
	DefaultHeartbeatInterval time.Duration
}

// sensorState is the tracked state for one sensor. Its mutex serializes all
// transitions for that sensor so a heartbeat and a sweep evaluation cannot
// interleave; different sensors transition independently.
type sensorState struct {
	mu                  sync.Mutex
	status              models.ConnectionStatus
	lastHeartbeatAt     time.Time
	lastCommunicationAt time.Time
	heartbeatInterval   time.Duration
	connectionTimeout   time.Duration
	// dirty marks a transition whose persistence failed after retries; the
	// next sweep retries the write so the transition is never dropped.
	dirty bool
}

// Tracker owns the per-sensor liveness state machine.
type Tracker struct {
	store     SensorStateStore
	publisher Publisher
	events    *nuts.EventEmitter
	cfg       Config
	now       func() time.Time
	// retryInterval seeds the persistence backoff; tests shrink it.
	retryInterval time.Duration

	mu     sync.Mutex
	states map[int64]*sensorState
}

func New(store SensorStateStore, publisher Publisher, cfg Config) *Tracker {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.TimeoutMultiplier <= 0 {
		cfg.TimeoutMultiplier = 3
	}
	if cfg.DefaultHeartbeatInterval <= 0 {
		cfg.DefaultHeartbeatInterval = time.Minute
	}
	return &Tracker{
		store:         store,
		publisher:     publisher,
		events:        nuts.NewEventEmitter(),
		cfg:           cfg,
		now:           time.Now,
		retryInterval: 500 * time.Millisecond,
		states:        make(map[int64]*sensorState),
	}
}

// OnTransition registers a callback invoked for every state change.
func (t *Tracker) OnTransition(handler func(change StateChange)) {
	// The emitter matches listener parameters against emitted arguments via
	// reflection, so the listener must take the StateChange directly.
	t.events.On(EventLivenessChanged, "liveness_handler", func(change StateChange) {
		handler(change)
	})
}

// OnHeartbeat records an explicit heartbeat: any state goes Online and both
// recency timestamps move to now.
func (t *Tracker) OnHeartbeat(ctx context.Context, sensorID int64) error {
	state, err := t.state(ctx, sensorID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := t.now()
	state.lastHeartbeatAt = now
	state.lastCommunicationAt = now
	return t.transition(ctx, sensorID, state, models.ConnectionStatusOnline, &now, &now)
}

// OnDataReceived counts a telemetry write as a liveness signal: any state
// goes Online, but only the communication timestamp moves.
func (t *Tracker) OnDataReceived(ctx context.Context, sensorID int64) error {
	state, err := t.state(ctx, sensorID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := t.now()
	state.lastCommunicationAt = now
	return t.transition(ctx, sensorID, state, models.ConnectionStatusOnline, nil, &now)
}

// OnConnectionEvent applies a transport-level connect or disconnect,
// bypassing timeout logic entirely.
func (t *Tracker) OnConnectionEvent(ctx context.Context, sensorID int64, status models.ConnectionStatus) error {
	if status != models.ConnectionStatusOnline && status != models.ConnectionStatusOffline {
		return errors.NewValidationError("connection event status must be online or offline", nil)
	}

	state, err := t.state(ctx, sensorID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := t.now()
	if status == models.ConnectionStatusOnline {
		state.lastCommunicationAt = now
		return t.transition(ctx, sensorID, state, status, nil, &now)
	}
	return t.transition(ctx, sensorID, state, status, nil, nil)
}

// Liveness returns the current classification for a sensor.
func (t *Tracker) Liveness(ctx context.Context, sensorID int64) (*models.Liveness, error) {
	state, err := t.state(ctx, sensorID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	liveness := &models.Liveness{
		SensorID: sensorID,
		Status:   state.status,
	}
	if !state.lastHeartbeatAt.IsZero() {
		hb := state.lastHeartbeatAt
		liveness.LastHeartbeatAt = &hb
	}
	if !state.lastCommunicationAt.IsZero() {
		comm := state.lastCommunicationAt
		liveness.LastCommunicationAt = &comm
	}
	return liveness, nil
}

// Run executes the timeout sweep until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	nuts.L.Infof("[Liveness] Sweep running every %v", t.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			nuts.L.Infof("[Liveness] Sweep stopped")
			return
		case <-ticker.C:
			if err := t.SweepOnce(ctx); err != nil {
				// A missed cycle only delays classification; the next sweep
				// re-evaluates everything.
				nuts.L.Errorf("[Liveness] Sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce evaluates every administratively active sensor once. Per-sensor
// locks are held only for that sensor's evaluation, never across the scan.
func (t *Tracker) SweepOnce(ctx context.Context) error {
	sensors, err := t.store.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, sensor := range sensors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.evaluate(ctx, sensor)
	}
	return nil
}

func (t *Tracker) evaluate(ctx context.Context, sensor *models.Sensor) {
	state := t.hydrate(sensor)

	state.mu.Lock()
	defer state.mu.Unlock()

	// Retry a transition whose write previously failed.
	if state.dirty {
		if err := t.persist(ctx, sensor.ID, state.status, nil, nil, true); err != nil {
			nuts.L.Errorf("[Liveness] Retry persist failed for sensor %d: %v", sensor.ID, err)
		} else {
			state.dirty = false
		}
	}

	now := t.now()
	silence := now.Sub(state.lastCommunicationAt)
	timeout := t.timeoutFor(state)

	switch state.status {
	case models.ConnectionStatusOnline:
		if state.lastCommunicationAt.IsZero() || silence <= timeout {
			return
		}
		next := models.ConnectionStatusOffline
		if t.cfg.StaleGraceFactor > 0 {
			next = models.ConnectionStatusStale
		}
		if err := t.transition(ctx, sensor.ID, state, next, nil, nil); err != nil {
			nuts.L.Errorf("[Liveness] Sweep transition failed for sensor %d: %v", sensor.ID, err)
		}
	case models.ConnectionStatusStale:
		grace := time.Duration(float64(timeout) * t.cfg.StaleGraceFactor)
		if silence <= timeout+grace {
			return
		}
		if err := t.transition(ctx, sensor.ID, state, models.ConnectionStatusOffline, nil, nil); err != nil {
			nuts.L.Errorf("[Liveness] Sweep transition failed for sensor %d: %v", sensor.ID, err)
		}
	}
	// Unknown and Offline only leave via a fresh heartbeat, data, or
	// connection event; the sweep never touches them.
}

// transition applies the new status, persists it, and emits change events.
// Caller holds the state lock.
func (t *Tracker) transition(ctx context.Context, sensorID int64, state *sensorState, next models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error {
	prev := state.status
	state.status = next

	err := t.persist(ctx, sensorID, next, heartbeatAt, communicationAt, next == models.ConnectionStatusOffline)
	if err != nil {
		if next == models.ConnectionStatusOffline {
			// A device-went-dark signal must not be lost: keep the in-memory
			// state and let the sweep retry the write.
			state.dirty = true
			nuts.L.Errorf("[Liveness] Failed to persist offline transition for sensor %d, will retry: %v", sensorID, err)
		} else {
			// A dropped online write is superseded by the next heartbeat.
			nuts.L.Warnf("[Liveness] Failed to persist %s transition for sensor %d: %v", next, sensorID, err)
		}
	}

	if prev != next {
		change := StateChange{SensorID: sensorID, From: prev, To: next, At: t.now()}
		t.events.Emit(EventLivenessChanged, change)
		if t.publisher != nil {
			if pubErr := t.publisher.PublishStateChange(ctx, change); pubErr != nil {
				nuts.L.Warnf("[Liveness] Failed to publish state change for sensor %d: %v", sensorID, pubErr)
			}
		}
	}
	return nil
}

// persist writes the state with bounded exponential backoff. Offline
// transitions get a larger retry budget than the rest.
func (t *Tracker) persist(ctx context.Context, sensorID int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time, critical bool) error {
	retries := uint64(2)
	if critical {
		retries = 5
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = t.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx)
	return backoff.Retry(func() error {
		err := t.store.UpdateConnectionStatus(ctx, sensorID, status, heartbeatAt, communicationAt)
		if err != nil && !errors.IsRetryable(err) && !isStoreFailure(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func isStoreFailure(err error) bool {
	if apiErr, ok := err.(*errors.APIError); ok {
		return apiErr.Type == errors.ErrorTypeDatabase
	}
	return false
}

// state returns the tracked state for a sensor, hydrating it from the store
// on first sight.
func (t *Tracker) state(ctx context.Context, sensorID int64) (*sensorState, error) {
	t.mu.Lock()
	if state, ok := t.states[sensorID]; ok {
		t.mu.Unlock()
		return state, nil
	}
	t.mu.Unlock()

	sensor, err := t.store.Get(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	return t.hydrate(sensor), nil
}

// hydrate returns the tracked state for a known sensor row, creating it from
// the row's stored values if the sensor is not yet tracked.
func (t *Tracker) hydrate(sensor *models.Sensor) *sensorState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[sensor.ID]; ok {
		return state
	}

	state := &sensorState{
		status:            sensor.ConnectionStatus,
		heartbeatInterval: time.Duration(sensor.HeartbeatIntervalSeconds) * time.Second,
		connectionTimeout: time.Duration(sensor.ConnectionTimeoutSeconds) * time.Second,
	}
	if state.status == "" {
		state.status = models.ConnectionStatusUnknown
	}
	if sensor.LastHeartbeatAt != nil {
		state.lastHeartbeatAt = *sensor.LastHeartbeatAt
	}
	if sensor.LastCommunicationAt != nil {
		state.lastCommunicationAt = *sensor.LastCommunicationAt
	}
	t.states[sensor.ID] = state
	return state
}

// timeoutFor resolves the effective connection timeout for a sensor:
// explicit value, else heartbeat interval × multiplier, else the default
// interval × multiplier.
func (t *Tracker) timeoutFor(state *sensorState) time.Duration {
	if state.connectionTimeout > 0 {
		return state.connectionTimeout
	}
	interval := state.heartbeatInterval
	if interval <= 0 {
		interval = t.cfg.DefaultHeartbeatInterval
	}
	return interval * time.Duration(t.cfg.TimeoutMultiplier)
}
