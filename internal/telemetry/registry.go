// FilePath: internal/telemetry/registry.go
package telemetry

import (
	"sort"
	"sync"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

// TypeMapping ties a sensor type to its physical time-series table and the
// numeric fields that table carries. The set of mappings is the single place
// where sensor types are declared: adding a type means registering one
// mapping, not touching the router's control flow.
type TypeMapping struct {
	Type    models.SensorType
	Table   string
	Columns []string
}

// HasColumn reports whether the mapping carries the named field.
func (m TypeMapping) HasColumn(name string) bool {
	for _, c := range m.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Registry holds the declared sensor-type mappings.
type Registry struct {
	mu       sync.RWMutex
	mappings map[models.SensorType]TypeMapping
}

// NewRegistry returns a registry pre-loaded with the platform's built-in
// sensor types. Column sets mirror the physical telemetry tables.
func NewRegistry() *Registry {
	r := &Registry{mappings: make(map[models.SensorType]TypeMapping)}
	for _, m := range builtinMappings() {
		r.mappings[m.Type] = m
	}
	return r
}

func builtinMappings() []TypeMapping {
	return []TypeMapping{
		{
			Type:    models.SensorTypeParticle,
			Table:   "particle_data",
			Columns: []string{"pm0_5", "pm1_0", "pm2_5", "pm4_0", "pm5_0", "pm10_0"},
		},
		{
			Type:    models.SensorTypeWind,
			Table:   "wind_data",
			Columns: []string{"wind_speed"},
		},
		{
			Type:    models.SensorTypeTempHumidity,
			Table:   "temp_humidity_data",
			Columns: []string{"temperature", "humidity"},
		},
	}
}

// Register adds a mapping for a new sensor type. Table and column names
// become part of generated SQL, so they must be declared identifiers, never
// caller input. Re-registering an existing type is a conflict; silently
// swapping a mapping would orphan the rows already written under the old one.
func (r *Registry) Register(m TypeMapping) error {
	if m.Type == "" || m.Table == "" {
		return errors.NewValidationError("type mapping requires a sensor type and a table", nil)
	}
	if len(m.Columns) == 0 {
		return errors.NewValidationError("type mapping requires at least one column", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappings[m.Type]; exists {
		return errors.NewConflictError("mapping already registered for sensor type "+string(m.Type), nil)
	}
	r.mappings[m.Type] = m
	return nil
}

// Lookup resolves a sensor type to its mapping.
func (r *Registry) Lookup(t models.SensorType) (TypeMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[t]
	return m, ok
}

// Types returns the registered sensor types in stable order.
func (r *Registry) Types() []models.SensorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.SensorType, 0, len(r.mappings))
	for t := range r.mappings {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Mappings returns all registered mappings; schema initialization iterates
// this to create the physical tables.
func (r *Registry) Mappings() []TypeMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
