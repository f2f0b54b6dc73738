// FilePath: internal/models/models.sensor.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSON is a wrapper around map[string]interface{} for database storage
type JSON map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &j)
}

type SensorType string

const (
	SensorTypeParticle     SensorType = "particle"
	SensorTypeWind         SensorType = "wind"
	SensorTypeTempHumidity SensorType = "temp_humidity"
)

// SensorStatus is the administrative lifecycle state, distinct from liveness.
type SensorStatus string

const (
	SensorStatusActive   SensorStatus = "active"
	SensorStatusInactive SensorStatus = "inactive"
)

// ConnectionStatus is the believed liveness of a sensor, derived from
// heartbeat and communication recency. Written only by the liveness tracker.
type ConnectionStatus string

const (
	ConnectionStatusUnknown ConnectionStatus = "unknown"
	ConnectionStatusOnline  ConnectionStatus = "online"
	ConnectionStatusStale   ConnectionStatus = "stale"
	ConnectionStatusOffline ConnectionStatus = "offline"
)

type Sensor struct {
	ID                       int64            `json:"id" db:"id"`
	GroupID                  *int64           `json:"group_id" db:"group_id"`
	UUID                     string           `json:"uuid" db:"uuid"`
	Name                     string           `json:"name" db:"name"`
	Description              string           `json:"description" db:"description"`
	Type                     SensorType       `json:"type" db:"type"`
	Model                    string           `json:"model" db:"model"`
	Status                   SensorStatus     `json:"status" db:"status"`
	ConnectionStatus         ConnectionStatus `json:"connection_status" db:"connection_status"`
	LastHeartbeatAt          *time.Time       `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	LastCommunicationAt      *time.Time       `json:"last_communication_at" db:"last_communication_at"`
	HeartbeatIntervalSeconds int              `json:"heartbeat_interval_seconds" db:"heartbeat_interval_seconds"`
	ConnectionTimeoutSeconds int              `json:"connection_timeout_seconds" db:"connection_timeout_seconds"`
	Metadata                 JSON             `json:"metadata" db:"metadata"`
	CreatedAt                time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at" db:"updated_at"`
}

// Active reports whether the sensor is administratively active.
func (s *Sensor) Active() bool {
	return s.Status == SensorStatusActive
}

// SensorFilters defines the available filter options for sensor listings.
// Schema tags are used by the HTTP layer to decode query-string parameters.
type SensorFilters struct {
	GroupID          *int64           `json:"group_id" schema:"group_id"`
	Type             SensorType       `json:"type" schema:"type"`
	Status           SensorStatus     `json:"status" schema:"status"`
	ConnectionStatus ConnectionStatus `json:"connection_status" schema:"connection_status"`
	IncludeInactive  bool             `json:"include_inactive" schema:"include_inactive"`
}
