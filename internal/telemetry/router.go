// FilePath: internal/telemetry/router.go
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

// DefaultQueryLimit caps queries that arrive without an explicit limit so an
// open-ended window never turns into an unbounded scan.
const DefaultQueryLimit = 1000

// Store is the physical telemetry access the router dispatches to. The
// timescale repository implements it.
type Store interface {
	FetchWindow(ctx context.Context, m TypeMapping, sensorID int64, start, end time.Time, limit int) ([]models.Reading, error)
	Insert(ctx context.Context, m TypeMapping, reading models.Reading) error
}

// SensorResolver provides sensor lookup for type resolution.
type SensorResolver interface {
	Get(ctx context.Context, id int64) (*models.Sensor, error)
}

// Router resolves a sensor to its registered type mapping and executes
// queries against the matching physical table, returning the uniform
// envelope. It holds no mutable state beyond the registry and is safe for
// concurrent use.
type Router struct {
	sensors  SensorResolver
	store    Store
	registry *Registry
}

func NewRouter(sensors SensorResolver, store Store, registry *Registry) *Router {
	return &Router{
		sensors:  sensors,
		store:    store,
		registry: registry,
	}
}

// Registry exposes the type registry for callers that validate sensor
// types before persisting them.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Query returns readings for the sensor in [start, end], newest first,
// capped at the query limit (default 1000).
func (r *Router) Query(ctx context.Context, sensorID int64, q models.TelemetryQuery) ([]models.Reading, error) {
	_, mapping, err := r.resolve(ctx, sensorID)
	if err != nil {
		return nil, err
	}

	limit, err := validateQuery(q)
	if err != nil {
		return nil, err
	}

	return r.store.FetchWindow(ctx, mapping, sensorID, q.Start, q.End, limit)
}

// QueryAggregate fetches the raw window and reduces it to hourly or daily
// buckets. Aggregation is computed over the uniform envelope, so it works
// for every registered sensor type without a per-type code path.
func (r *Router) QueryAggregate(ctx context.Context, sensorID int64, q models.TelemetryQuery) ([]models.AggregateBucket, error) {
	interval, err := aggregationInterval(q.Aggregation)
	if err != nil {
		return nil, err
	}

	readings, err := r.Query(ctx, sensorID, q)
	if err != nil {
		return nil, err
	}

	return Aggregate(readings, interval), nil
}

// Ingest appends one reading to the sensor's physical table. Field names
// must belong to the sensor type's registered columns; anything else is a
// cross-type insert and is rejected.
func (r *Router) Ingest(ctx context.Context, sensorID int64, timestamp time.Time, fields map[string]float64, raw json.RawMessage) error {
	_, mapping, err := r.resolve(ctx, sensorID)
	if err != nil {
		return err
	}

	if len(fields) == 0 {
		return errors.NewValidationError("reading carries no fields", nil)
	}
	for name := range fields {
		if !mapping.HasColumn(name) {
			return errors.NewValidationError(
				"field "+name+" does not belong to sensor type "+string(mapping.Type), nil)
		}
	}

	reading := models.Reading{
		SensorID:  sensorID,
		Timestamp: timestamp,
		Fields:    fields,
		Raw:       raw,
	}
	return r.store.Insert(ctx, mapping, reading)
}

func (r *Router) resolve(ctx context.Context, sensorID int64) (*models.Sensor, TypeMapping, error) {
	sensor, err := r.sensors.Get(ctx, sensorID)
	if err != nil {
		return nil, TypeMapping{}, err
	}

	mapping, ok := r.registry.Lookup(sensor.Type)
	if !ok {
		return nil, TypeMapping{}, errors.NewUnsupportedTypeError(
			"no telemetry mapping registered for sensor type "+string(sensor.Type), nil)
	}
	return sensor, mapping, nil
}

func validateQuery(q models.TelemetryQuery) (int, error) {
	if q.Start.After(q.End) {
		return 0, errors.NewInvalidRangeError("start time must not be after end time", nil)
	}
	if q.Limit < 0 {
		return 0, errors.NewInvalidRangeError("limit must be positive", nil)
	}
	if q.Limit == 0 {
		return DefaultQueryLimit, nil
	}
	return q.Limit, nil
}

func aggregationInterval(aggregation string) (time.Duration, error) {
	switch aggregation {
	case models.AggregationHourly:
		return time.Hour, nil
	case models.AggregationDaily:
		return 24 * time.Hour, nil
	default:
		return 0, errors.NewInvalidRangeError("unknown aggregation interval: "+aggregation, nil)
	}
}
