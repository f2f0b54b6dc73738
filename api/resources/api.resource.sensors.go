// FilePath: api/resources/api.resource.sensors.go
package resources

import (
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/models"
	"github.com/gorilla/schema"
	nuts "github.com/vaudience/go-nuts"
)

// SensorHandlers encapsulates the sensor-related HTTP handlers
type SensorHandlers struct {
	hubservice *hubservice.HubService
}

// queryDecoder maps query-string parameters onto TelemetryQuery. Timestamps
// arrive as RFC3339.
var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	decoder.RegisterConverter(time.Time{}, func(value string) reflect.Value {
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(ts)
	})
	return decoder
}

func (h *SensorHandlers) CreateSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	var sensor models.Sensor
	if err := json.NewDecoder(r.Body).Decode(&sensor); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.CreateSensor(r.Context(), principal, &sensor); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusCreated, sensor)
}

func (h *SensorHandlers) GetSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	sensor, err := h.hubservice.GetSensor(r.Context(), principal, id)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, sensor)
}

func (h *SensorHandlers) UpdateSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var sensor models.Sensor
	if err := json.NewDecoder(r.Body).Decode(&sensor); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	sensor.ID = id

	if err := h.hubservice.UpdateSensor(r.Context(), principal, &sensor); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, sensor)
}

func (h *SensorHandlers) DeactivateSensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.DeactivateSensor(r.Context(), principal, id); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SensorHandlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	var filters models.SensorFilters
	if err := queryDecoder.Decode(&filters, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid filter parameters", err).WithRequestID(requestID))
		return
	}

	sensors, err := h.hubservice.ListSensors(r.Context(), principal, filters)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, sensors)
}

// GetTelemetry returns raw readings, or aggregate buckets when an
// aggregation interval is requested.
func (h *SensorHandlers) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var query models.TelemetryQuery
	if err := queryDecoder.Decode(&query, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}
	if query.End.IsZero() {
		query.End = time.Now()
	}

	if query.Aggregation != models.AggregationNone {
		buckets, err := h.hubservice.GetTelemetryAggregates(r.Context(), principal, id, query)
		if err != nil {
			respondWithError(w, asAPIError(err).WithRequestID(requestID))
			return
		}
		respondWithJSON(w, http.StatusOK, buckets)
		return
	}

	readings, err := h.hubservice.GetTelemetry(r.Context(), principal, id, query)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, readings)
}

type ingestRequest struct {
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// IngestReading records one reading for the sensor.
func (h *SensorHandlers) IngestReading(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	err = h.hubservice.IngestReading(r.Context(), principal, id, req.Timestamp, req.Fields, body)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// RecordHeartbeat registers a device heartbeat.
func (h *SensorHandlers) RecordHeartbeat(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RecordHeartbeat(r.Context(), principal, id); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type connectionEventRequest struct {
	Status models.ConnectionStatus `json:"status"`
}

// RecordConnectionEvent applies an explicit connect or disconnect.
func (h *SensorHandlers) RecordConnectionEvent(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var req connectionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RecordConnectionEvent(r.Context(), principal, id, req.Status); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLiveness returns the sensor's current liveness classification.
func (h *SensorHandlers) GetLiveness(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	liveness, err := h.hubservice.GetLiveness(r.Context(), principal, id)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, liveness)
}
