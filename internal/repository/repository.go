// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/models"
)

// CompanyRepository defines the interface for tenant root operations
type CompanyRepository interface {
	database.Repository
	Create(ctx context.Context, company *models.Company) error
	Get(ctx context.Context, id int64) (*models.Company, error)
	Update(ctx context.Context, company *models.Company) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, includeInactive bool) ([]*models.Company, error)
}

// SensorGroupRepository defines the interface for sensor group operations
type SensorGroupRepository interface {
	database.Repository
	Create(ctx context.Context, group *models.SensorGroup) error
	Get(ctx context.Context, id int64) (*models.SensorGroup, error)
	Update(ctx context.Context, group *models.SensorGroup) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, companyID *int64, includeInactive bool) ([]*models.SensorGroup, error)
}

// SensorRepository defines the interface for sensor operations.
// UpdateConnectionStatus is reserved for the liveness tracker; no other
// component writes connection state.
type SensorRepository interface {
	database.Repository
	Create(ctx context.Context, sensor *models.Sensor) error
	Get(ctx context.Context, id int64) (*models.Sensor, error)
	GetByUUID(ctx context.Context, uuid string) (*models.Sensor, error)
	Update(ctx context.Context, sensor *models.Sensor) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, filters models.SensorFilters) ([]*models.Sensor, error)
	ListActive(ctx context.Context) ([]*models.Sensor, error)
	UpdateConnectionStatus(ctx context.Context, id int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error
}

// UserRepository defines the interface for identity and assignment operations
type UserRepository interface {
	database.Repository
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, includeInactive bool) ([]*models.User, error)

	ListCompanies(ctx context.Context, userID int64) ([]int64, error)
	AssignCompany(ctx context.Context, userID, companyID int64) error
	RemoveCompany(ctx context.Context, userID, companyID int64) error
	ReplaceCompanies(ctx context.Context, userID int64, companyIDs []int64) error

	ListRoles(ctx context.Context, userID int64) ([]string, error)
	AssignRole(ctx context.Context, userID int64, role string) error
	RemoveRole(ctx context.Context, userID int64, role string) error
}
