// FilePath: internal/hubservice/hubservice.sensor.go
package hubservice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// SensorService handles device-related business logic
type SensorService interface {
	CreateSensor(ctx context.Context, principal authz.Principal, sensor *models.Sensor) error
	GetSensor(ctx context.Context, principal authz.Principal, id int64) (*models.Sensor, error)
	UpdateSensor(ctx context.Context, principal authz.Principal, sensor *models.Sensor) error
	DeactivateSensor(ctx context.Context, principal authz.Principal, id int64) error
	ListSensors(ctx context.Context, principal authz.Principal, filters models.SensorFilters) ([]*models.Sensor, error)
	GetTelemetry(ctx context.Context, principal authz.Principal, sensorID int64, q models.TelemetryQuery) ([]models.Reading, error)
	GetTelemetryAggregates(ctx context.Context, principal authz.Principal, sensorID int64, q models.TelemetryQuery) ([]models.AggregateBucket, error)
	IngestReading(ctx context.Context, principal authz.Principal, sensorID int64, timestamp time.Time, fields map[string]float64, raw json.RawMessage) error
	RecordHeartbeat(ctx context.Context, principal authz.Principal, sensorID int64) error
	RecordConnectionEvent(ctx context.Context, principal authz.Principal, sensorID int64, status models.ConnectionStatus) error
	GetLiveness(ctx context.Context, principal authz.Principal, sensorID int64) (*models.Liveness, error)
}

// CreateSensor registers a device. The sensor type must have a telemetry
// mapping; unknown types are rejected before anything is persisted.
func (s *HubService) CreateSensor(ctx context.Context, principal authz.Principal, sensor *models.Sensor) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if sensor.Name == "" {
		return errors.NewValidationError("sensor name is required", nil)
	}
	if _, ok := s.Router.Registry().Lookup(sensor.Type); !ok {
		return errors.NewUnsupportedTypeError(
			"no telemetry mapping registered for sensor type "+string(sensor.Type), nil)
	}
	if sensor.GroupID != nil {
		if _, err := s.Groups.Get(ctx, *sensor.GroupID); err != nil {
			return err
		}
	}

	if sensor.UUID == "" {
		sensor.UUID = nuts.NID("sn", 16)
	}
	now := time.Now()
	sensor.Status = models.SensorStatusActive
	sensor.ConnectionStatus = models.ConnectionStatusUnknown
	sensor.CreatedAt = now
	sensor.UpdatedAt = now

	nuts.L.Infof("[SensorService] Creating sensor: %s (%s)", sensor.Name, sensor.Type)
	return s.Sensors.Create(ctx, sensor)
}

func (s *HubService) GetSensor(ctx context.Context, principal authz.Principal, id int64) (*models.Sensor, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, id)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return s.Sensors.Get(ctx, id)
}

// UpdateSensor changes administrative fields. Connection state columns are
// owned by the liveness tracker and never written here.
func (s *HubService) UpdateSensor(ctx context.Context, principal authz.Principal, sensor *models.Sensor) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if sensor.Name == "" {
		return errors.NewValidationError("sensor name is required", nil)
	}

	existing, err := s.Sensors.Get(ctx, sensor.ID)
	if err != nil {
		return err
	}
	if sensor.Type != existing.Type {
		// A type change would orphan the readings already written to the
		// old type's table.
		return errors.NewValidationError("sensor type cannot be changed", nil)
	}
	if sensor.GroupID != nil {
		if _, err := s.Groups.Get(ctx, *sensor.GroupID); err != nil {
			return err
		}
	}

	sensor.UUID = existing.UUID
	sensor.CreatedAt = existing.CreatedAt
	sensor.UpdatedAt = time.Now()
	return s.Sensors.Update(ctx, sensor)
}

// DeactivateSensor soft-deletes the device. Its telemetry history stays
// queryable for admins.
func (s *HubService) DeactivateSensor(ctx context.Context, principal authz.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}

	nuts.L.Infof("[SensorService] Deactivating sensor %d", id)
	return s.Sensors.Deactivate(ctx, id)
}

// ListSensors scopes results to the principal's tenants. Non-admins must
// name a group they can see.
func (s *HubService) ListSensors(ctx context.Context, principal authz.Principal, filters models.SensorFilters) ([]*models.Sensor, error) {
	if principal.IsAdmin() {
		return s.Sensors.List(ctx, filters)
	}

	if filters.GroupID == nil {
		return nil, errors.NewValidationError("group_id is required", nil)
	}
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindGroup, *filters.GroupID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	filters.IncludeInactive = false
	return s.Sensors.List(ctx, filters)
}

// GetTelemetry returns readings for the sensor's window. Transient store
// failures are retried with backoff before surfacing to the caller.
func (s *HubService) GetTelemetry(ctx context.Context, principal authz.Principal, sensorID int64, q models.TelemetryQuery) ([]models.Reading, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	var readings []models.Reading
	err = retryTransient(ctx, func() error {
		var fetchErr error
		readings, fetchErr = s.Router.Query(ctx, sensorID, q)
		return fetchErr
	})
	return readings, err
}

// GetTelemetryAggregates returns hourly or daily buckets for the window.
func (s *HubService) GetTelemetryAggregates(ctx context.Context, principal authz.Principal, sensorID int64, q models.TelemetryQuery) ([]models.AggregateBucket, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	var buckets []models.AggregateBucket
	err = retryTransient(ctx, func() error {
		var fetchErr error
		buckets, fetchErr = s.Router.QueryAggregate(ctx, sensorID, q)
		return fetchErr
	})
	return buckets, err
}

// IngestReading appends one reading and counts it as a liveness signal.
func (s *HubService) IngestReading(ctx context.Context, principal authz.Principal, sensorID int64, timestamp time.Time, fields map[string]float64, raw json.RawMessage) error {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	if err := s.Router.Ingest(ctx, sensorID, timestamp, fields, raw); err != nil {
		return err
	}

	if err := s.Tracker.OnDataReceived(ctx, sensorID); err != nil {
		// The reading is already stored; liveness catches up on the next
		// signal or sweep.
		nuts.L.Warnf("[SensorService] Failed to record liveness signal for sensor %d: %v", sensorID, err)
	}
	return nil
}

// RecordHeartbeat registers an explicit device heartbeat.
func (s *HubService) RecordHeartbeat(ctx context.Context, principal authz.Principal, sensorID int64) error {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}
	return s.Tracker.OnHeartbeat(ctx, sensorID)
}

// RecordConnectionEvent applies a transport-level connect or disconnect.
func (s *HubService) RecordConnectionEvent(ctx context.Context, principal authz.Principal, sensorID int64, status models.ConnectionStatus) error {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}
	return s.Tracker.OnConnectionEvent(ctx, sensorID, status)
}

// GetLiveness returns the sensor's current liveness classification.
func (s *HubService) GetLiveness(ctx context.Context, principal authz.Principal, sensorID int64) (*models.Liveness, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindSensor, sensorID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return s.Tracker.Liveness(ctx, sensorID)
}

// retryTransient retries a read on transient or timeout classification, up
// to three attempts with exponential backoff.
func retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
