// FilePath: internal/models/models.company.go
package models

import "time"

// Company is the root of a tenant. Deactivation is a soft flag flip; a
// deactivated company's groups and sensors stay queryable by admins but
// disappear from default listings.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SensorGroup is owned by exactly one company. CompanyID may be null for
// ungrouped placement during provisioning; such groups are admin-only.
type SensorGroup struct {
	ID          int64     `json:"id" db:"id"`
	CompanyID   *int64    `json:"company_id" db:"company_id"`
	Name        string    `json:"name" db:"name"`
	Location    string    `json:"location" db:"location"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
