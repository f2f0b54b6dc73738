// FilePath: internal/liveness/tracker_test.go
package liveness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

// fakeStateStore is an in-memory SensorStateStore with an injectable
// failure budget for persistence calls.
type fakeStateStore struct {
	mu       sync.Mutex
	sensors  map[int64]*models.Sensor
	failures int
	writes   []models.ConnectionStatus
}

func newFakeStateStore(sensors ...*models.Sensor) *fakeStateStore {
	store := &fakeStateStore{sensors: make(map[int64]*models.Sensor)}
	for _, sensor := range sensors {
		store.sensors[sensor.ID] = sensor
	}
	return store
}

func (s *fakeStateStore) Get(_ context.Context, id int64) (*models.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sensor, ok := s.sensors[id]
	if !ok {
		return nil, errors.NewNotFoundError("sensor not found", nil)
	}
	copied := *sensor
	return &copied, nil
}

func (s *fakeStateStore) ListActive(_ context.Context) ([]*models.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Sensor, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		if sensor.Status == models.SensorStatusActive {
			copied := *sensor
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStateStore) UpdateConnectionStatus(_ context.Context, id int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.NewDatabaseError("store unavailable", nil)
	}
	sensor, ok := s.sensors[id]
	if !ok {
		return errors.NewNotFoundError("sensor not found", nil)
	}
	sensor.ConnectionStatus = status
	if heartbeatAt != nil {
		sensor.LastHeartbeatAt = heartbeatAt
	}
	if communicationAt != nil {
		sensor.LastCommunicationAt = communicationAt
	}
	s.writes = append(s.writes, status)
	return nil
}

func (s *fakeStateStore) status(id int64) models.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensors[id].ConnectionStatus
}

func activeSensor(id int64, heartbeatSeconds int) *models.Sensor {
	return &models.Sensor{
		ID:                       id,
		Type:                     models.SensorTypeParticle,
		Status:                   models.SensorStatusActive,
		ConnectionStatus:         models.ConnectionStatusUnknown,
		HeartbeatIntervalSeconds: heartbeatSeconds,
	}
}

// testTracker returns a tracker with a controllable clock.
func testTracker(store *fakeStateStore, cfg Config) (*Tracker, *time.Time) {
	tracker := New(store, nil, cfg)
	tracker.retryInterval = time.Millisecond
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestHeartbeatBringsSensorOnline(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, _ := testTracker(store, Config{})

	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}

	state, err := tracker.Liveness(context.Background(), 1)
	if err != nil {
		t.Fatalf("Liveness() error = %v", err)
	}
	if state.Status != models.ConnectionStatusOnline {
		t.Fatalf("status = %s, want online", state.Status)
	}
	if state.LastHeartbeatAt == nil || state.LastCommunicationAt == nil {
		t.Fatalf("recency timestamps not set: %+v", state)
	}
	if store.status(1) != models.ConnectionStatusOnline {
		t.Fatalf("persisted status = %s, want online", store.status(1))
	}
}

func TestDataReceivedMovesOnlyCommunicationTime(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, _ := testTracker(store, Config{})

	if err := tracker.OnDataReceived(context.Background(), 1); err != nil {
		t.Fatalf("OnDataReceived() error = %v", err)
	}

	state, err := tracker.Liveness(context.Background(), 1)
	if err != nil {
		t.Fatalf("Liveness() error = %v", err)
	}
	if state.Status != models.ConnectionStatusOnline {
		t.Fatalf("status = %s, want online", state.Status)
	}
	if state.LastHeartbeatAt != nil {
		t.Fatalf("data signal moved heartbeat time: %v", state.LastHeartbeatAt)
	}
	if state.LastCommunicationAt == nil {
		t.Fatal("communication time not set")
	}
}

// Heartbeat interval 30s with multiplier 3 gives a 90s timeout: silence of
// 60s keeps the sensor online, 100s takes it offline.
func TestSweepTimeout(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, now := testTracker(store, Config{TimeoutMultiplier: 3})

	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}

	*now = now.Add(60 * time.Second)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	state, _ := tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusOnline {
		t.Fatalf("status after 60s = %s, want online", state.Status)
	}

	*now = now.Add(40 * time.Second)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	state, _ = tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusOffline {
		t.Fatalf("status after 100s = %s, want offline", state.Status)
	}
	if store.status(1) != models.ConnectionStatusOffline {
		t.Fatalf("persisted status = %s, want offline", store.status(1))
	}
}

func TestStaleGracePeriod(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, now := testTracker(store, Config{TimeoutMultiplier: 3, StaleGraceFactor: 0.5})

	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}

	// Past the 90s timeout: stale, not offline.
	*now = now.Add(100 * time.Second)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	state, _ := tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusStale {
		t.Fatalf("status after timeout = %s, want stale", state.Status)
	}

	// Past timeout + grace (90 * 1.5 = 135s): offline.
	*now = now.Add(40 * time.Second)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	state, _ = tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusOffline {
		t.Fatalf("status after grace = %s, want offline", state.Status)
	}

	// A fresh heartbeat recovers the sensor.
	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}
	state, _ = tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusOnline {
		t.Fatalf("status after recovery = %s, want online", state.Status)
	}
}

func TestConnectionEvents(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, _ := testTracker(store, Config{})

	if err := tracker.OnConnectionEvent(context.Background(), 1, models.ConnectionStatusOnline); err != nil {
		t.Fatalf("OnConnectionEvent(online) error = %v", err)
	}
	if store.status(1) != models.ConnectionStatusOnline {
		t.Fatalf("persisted status = %s, want online", store.status(1))
	}

	if err := tracker.OnConnectionEvent(context.Background(), 1, models.ConnectionStatusOffline); err != nil {
		t.Fatalf("OnConnectionEvent(offline) error = %v", err)
	}
	if store.status(1) != models.ConnectionStatusOffline {
		t.Fatalf("persisted status = %s, want offline", store.status(1))
	}

	err := tracker.OnConnectionEvent(context.Background(), 1, models.ConnectionStatusStale)
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Type != errors.ErrorTypeValidation {
		t.Fatalf("OnConnectionEvent(stale) error = %v, want validation", err)
	}
}

func TestTransitionsAreEmitted(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, now := testTracker(store, Config{TimeoutMultiplier: 3})

	var mu sync.Mutex
	var changes []StateChange
	tracker.OnTransition(func(change StateChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, change)
	})

	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}
	*now = now.Add(2 * time.Minute)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	// EventEmitter delivery is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(changes)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("saw %d transitions, want 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Handler delivery order is not guaranteed; check both transitions
	// occurred regardless of arrival order.
	mu.Lock()
	defer mu.Unlock()
	seen := make(map[models.ConnectionStatus]StateChange, len(changes))
	for _, change := range changes {
		seen[change.To] = change
	}
	online, ok := seen[models.ConnectionStatusOnline]
	if !ok || online.From != models.ConnectionStatusUnknown {
		t.Fatalf("missing unknown -> online transition in %+v", changes)
	}
	offline, ok := seen[models.ConnectionStatusOffline]
	if !ok || offline.From != models.ConnectionStatusOnline {
		t.Fatalf("missing online -> offline transition in %+v", changes)
	}
}

// A failed offline persist must survive: the dirty state is retried on the
// next sweep instead of being dropped.
func TestOfflinePersistenceRetried(t *testing.T) {
	t.Parallel()

	store := newFakeStateStore(activeSensor(1, 30))
	tracker, now := testTracker(store, Config{TimeoutMultiplier: 3})

	if err := tracker.OnHeartbeat(context.Background(), 1); err != nil {
		t.Fatalf("OnHeartbeat() error = %v", err)
	}

	// Exhaust the offline write's whole retry budget.
	store.mu.Lock()
	store.failures = 10
	store.mu.Unlock()

	*now = now.Add(2 * time.Minute)
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	// In-memory state transitioned even though the write failed.
	state, _ := tracker.Liveness(context.Background(), 1)
	if state.Status != models.ConnectionStatusOffline {
		t.Fatalf("status = %s, want offline", state.Status)
	}
	if store.status(1) == models.ConnectionStatusOffline {
		t.Fatal("store write unexpectedly succeeded")
	}

	// Store recovers; the next sweep replays the transition.
	if err := tracker.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if store.status(1) != models.ConnectionStatusOffline {
		t.Fatalf("persisted status = %s, want offline after retry", store.status(1))
	}
}

func TestUnknownSensor(t *testing.T) {
	t.Parallel()

	tracker, _ := testTracker(newFakeStateStore(), Config{})
	if err := tracker.OnHeartbeat(context.Background(), 404); !errors.IsNotFound(err) {
		t.Fatalf("OnHeartbeat() error = %v, want not found", err)
	}
}
