// FilePath: internal/models/models.telemetry.go
package models

import (
	"encoding/json"
	"time"
)

// Reading is the uniform telemetry envelope. Regardless of which physical
// table a row came from, callers see sensor id, timestamp and a mapping of
// field name to numeric value; nobody downstream branches on sensor type.
type Reading struct {
	SensorID  int64              `json:"sensor_id"`
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
	Raw       json.RawMessage    `json:"raw,omitempty"`
}

// FieldStats holds per-field aggregates within a bucket.
type FieldStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// AggregateBucket is an aggregation window over the uniform envelope.
type AggregateBucket struct {
	SensorID  int64                 `json:"sensor_id"`
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time"`
	Count     int                   `json:"count"`
	Fields    map[string]FieldStats `json:"fields"`
}

// Aggregation intervals accepted by the telemetry query surface.
const (
	AggregationNone   = ""
	AggregationHourly = "hourly"
	AggregationDaily  = "daily"
)

// TelemetryQuery carries the caller's query window. Schema tags are used by
// the HTTP layer to decode query-string parameters.
type TelemetryQuery struct {
	Start       time.Time `json:"start" schema:"start"`
	End         time.Time `json:"end" schema:"end"`
	Limit       int       `json:"limit" schema:"limit"`
	Aggregation string    `json:"aggregation" schema:"aggregation"`
}

// Liveness is the read model returned by GetLiveness.
type Liveness struct {
	SensorID            int64            `json:"sensor_id"`
	Status              ConnectionStatus `json:"status"`
	LastHeartbeatAt     *time.Time       `json:"last_heartbeat_at"`
	LastCommunicationAt *time.Time       `json:"last_communication_at"`
}
