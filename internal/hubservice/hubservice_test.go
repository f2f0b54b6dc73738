// FilePath: internal/hubservice/hubservice_test.go
package hubservice

import (
	"context"
	"testing"
	"time"

	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/liveness"
	"github.com/envimon/hub/internal/models"
	"github.com/envimon/hub/internal/telemetry"
)

// In-memory repositories. Only the behavior the service layer exercises is
// modeled; transactions are out of scope here.

type memCompanyRepo struct {
	companies map[int64]*models.Company
	nextID    int64
}

func (r *memCompanyRepo) BeginTx(context.Context) (database.Transaction, error) {
	panic("not implemented")
}

func (r *memCompanyRepo) Create(_ context.Context, company *models.Company) error {
	r.nextID++
	company.ID = r.nextID
	copied := *company
	r.companies[company.ID] = &copied
	return nil
}

func (r *memCompanyRepo) Get(_ context.Context, id int64) (*models.Company, error) {
	company, ok := r.companies[id]
	if !ok {
		return nil, errors.NewNotFoundError("company not found", nil)
	}
	copied := *company
	return &copied, nil
}

func (r *memCompanyRepo) Update(_ context.Context, company *models.Company) error {
	if _, ok := r.companies[company.ID]; !ok {
		return errors.NewNotFoundError("company not found", nil)
	}
	copied := *company
	r.companies[company.ID] = &copied
	return nil
}

func (r *memCompanyRepo) Deactivate(_ context.Context, id int64) error {
	company, ok := r.companies[id]
	if !ok {
		return errors.NewNotFoundError("company not found", nil)
	}
	company.Active = false
	return nil
}

func (r *memCompanyRepo) List(_ context.Context, includeInactive bool) ([]*models.Company, error) {
	out := []*models.Company{}
	for _, company := range r.companies {
		if !includeInactive && !company.Active {
			continue
		}
		copied := *company
		out = append(out, &copied)
	}
	return out, nil
}

type memGroupRepo struct {
	groups map[int64]*models.SensorGroup
	nextID int64
}

func (r *memGroupRepo) BeginTx(context.Context) (database.Transaction, error) {
	panic("not implemented")
}

func (r *memGroupRepo) Create(_ context.Context, group *models.SensorGroup) error {
	r.nextID++
	group.ID = r.nextID
	copied := *group
	r.groups[group.ID] = &copied
	return nil
}

func (r *memGroupRepo) Get(_ context.Context, id int64) (*models.SensorGroup, error) {
	group, ok := r.groups[id]
	if !ok {
		return nil, errors.NewNotFoundError("group not found", nil)
	}
	copied := *group
	return &copied, nil
}

func (r *memGroupRepo) Update(_ context.Context, group *models.SensorGroup) error {
	if _, ok := r.groups[group.ID]; !ok {
		return errors.NewNotFoundError("group not found", nil)
	}
	copied := *group
	r.groups[group.ID] = &copied
	return nil
}

func (r *memGroupRepo) Deactivate(_ context.Context, id int64) error {
	group, ok := r.groups[id]
	if !ok {
		return errors.NewNotFoundError("group not found", nil)
	}
	group.Active = false
	return nil
}

func (r *memGroupRepo) List(_ context.Context, companyID *int64, includeInactive bool) ([]*models.SensorGroup, error) {
	out := []*models.SensorGroup{}
	for _, group := range r.groups {
		if companyID != nil && (group.CompanyID == nil || *group.CompanyID != *companyID) {
			continue
		}
		if !includeInactive && !group.Active {
			continue
		}
		copied := *group
		out = append(out, &copied)
	}
	return out, nil
}

type memSensorRepo struct {
	sensors map[int64]*models.Sensor
	nextID  int64
}

func (r *memSensorRepo) BeginTx(context.Context) (database.Transaction, error) {
	panic("not implemented")
}

func (r *memSensorRepo) Create(_ context.Context, sensor *models.Sensor) error {
	r.nextID++
	sensor.ID = r.nextID
	copied := *sensor
	r.sensors[sensor.ID] = &copied
	return nil
}

func (r *memSensorRepo) Get(_ context.Context, id int64) (*models.Sensor, error) {
	sensor, ok := r.sensors[id]
	if !ok {
		return nil, errors.NewNotFoundError("sensor not found", nil)
	}
	copied := *sensor
	return &copied, nil
}

func (r *memSensorRepo) GetByUUID(_ context.Context, uuid string) (*models.Sensor, error) {
	for _, sensor := range r.sensors {
		if sensor.UUID == uuid {
			copied := *sensor
			return &copied, nil
		}
	}
	return nil, errors.NewNotFoundError("sensor not found", nil)
}

func (r *memSensorRepo) Update(_ context.Context, sensor *models.Sensor) error {
	existing, ok := r.sensors[sensor.ID]
	if !ok {
		return errors.NewNotFoundError("sensor not found", nil)
	}
	copied := *sensor
	copied.ConnectionStatus = existing.ConnectionStatus
	r.sensors[sensor.ID] = &copied
	return nil
}

func (r *memSensorRepo) Deactivate(_ context.Context, id int64) error {
	sensor, ok := r.sensors[id]
	if !ok {
		return errors.NewNotFoundError("sensor not found", nil)
	}
	sensor.Status = models.SensorStatusInactive
	return nil
}

func (r *memSensorRepo) List(_ context.Context, filters models.SensorFilters) ([]*models.Sensor, error) {
	out := []*models.Sensor{}
	for _, sensor := range r.sensors {
		if filters.GroupID != nil && (sensor.GroupID == nil || *sensor.GroupID != *filters.GroupID) {
			continue
		}
		if !filters.IncludeInactive && !sensor.Active() {
			continue
		}
		copied := *sensor
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memSensorRepo) ListActive(ctx context.Context) ([]*models.Sensor, error) {
	return r.List(ctx, models.SensorFilters{})
}

func (r *memSensorRepo) UpdateConnectionStatus(_ context.Context, id int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error {
	sensor, ok := r.sensors[id]
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
	return nil
}

type memUserRepo struct {
	users       map[int64]*models.User
	assignments map[int64][]int64
	roles       map[int64][]string
	nextID      int64

	replaceCalls int
}

func (r *memUserRepo) BeginTx(context.Context) (database.Transaction, error) {
	panic("not implemented")
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.nextID++
	user.ID = r.nextID
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Get(_ context.Context, id int64) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user not found", nil)
	}
	copied := *user
	copied.CompanyIDs = append([]int64{}, r.assignments[id]...)
	copied.Roles = append([]string{}, r.roles[id]...)
	return &copied, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for id, user := range r.users {
		if user.Username == username {
			return r.Get(context.Background(), id)
		}
	}
	return nil, errors.NewNotFoundError("user not found", nil)
}

func (r *memUserRepo) Update(_ context.Context, user *models.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return errors.NewNotFoundError("user not found", nil)
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	user, ok := r.users[id]
	if !ok {
		return errors.NewNotFoundError("user not found", nil)
	}
	user.PasswordHash = hash
	return nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return errors.NewNotFoundError("user not found", nil)
	}
	user.LastLoginAt = &at
	return nil
}

func (r *memUserRepo) Deactivate(_ context.Context, id int64) error {
	user, ok := r.users[id]
	if !ok {
		return errors.NewNotFoundError("user not found", nil)
	}
	user.Active = false
	return nil
}

func (r *memUserRepo) List(_ context.Context, includeInactive bool) ([]*models.User, error) {
	out := []*models.User{}
	for id, user := range r.users {
		if !includeInactive && !user.Active {
			continue
		}
		view, _ := r.Get(context.Background(), id)
		out = append(out, view)
	}
	return out, nil
}

func (r *memUserRepo) ListCompanies(_ context.Context, userID int64) ([]int64, error) {
	return append([]int64{}, r.assignments[userID]...), nil
}

func (r *memUserRepo) AssignCompany(_ context.Context, userID, companyID int64) error {
	for _, id := range r.assignments[userID] {
		if id == companyID {
			return nil
		}
	}
	r.assignments[userID] = append(r.assignments[userID], companyID)
	return nil
}

func (r *memUserRepo) RemoveCompany(_ context.Context, userID, companyID int64) error {
	kept := []int64{}
	for _, id := range r.assignments[userID] {
		if id != companyID {
			kept = append(kept, id)
		}
	}
	r.assignments[userID] = kept
	return nil
}

func (r *memUserRepo) ReplaceCompanies(_ context.Context, userID int64, companyIDs []int64) error {
	r.replaceCalls++
	r.assignments[userID] = append([]int64{}, companyIDs...)
	return nil
}

func (r *memUserRepo) ListRoles(_ context.Context, userID int64) ([]string, error) {
	return append([]string{}, r.roles[userID]...), nil
}

func (r *memUserRepo) AssignRole(_ context.Context, userID int64, role string) error {
	for _, existing := range r.roles[userID] {
		if existing == role {
			return nil
		}
	}
	r.roles[userID] = append(r.roles[userID], role)
	return nil
}

func (r *memUserRepo) RemoveRole(_ context.Context, userID int64, role string) error {
	kept := []string{}
	for _, existing := range r.roles[userID] {
		if existing != role {
			kept = append(kept, existing)
		}
	}
	r.roles[userID] = kept
	return nil
}

// flakyTelemetryStore fails a configurable number of fetches before
// recovering.
type flakyTelemetryStore struct {
	failures int
	fetches  int
	readings []models.Reading
}

func (s *flakyTelemetryStore) FetchWindow(_ context.Context, _ telemetry.TypeMapping, sensorID int64, _, _ time.Time, _ int) ([]models.Reading, error) {
	s.fetches++
	if s.failures > 0 {
		s.failures--
		return nil, errors.NewTransientError("store unavailable", nil)
	}
	out := []models.Reading{}
	for _, reading := range s.readings {
		if reading.SensorID == sensorID {
			out = append(out, reading)
		}
	}
	return out, nil
}

func (s *flakyTelemetryStore) Insert(_ context.Context, _ telemetry.TypeMapping, reading models.Reading) error {
	s.readings = append(s.readings, reading)
	return nil
}

type fixture struct {
	svc       *HubService
	companies *memCompanyRepo
	groups    *memGroupRepo
	sensors   *memSensorRepo
	users     *memUserRepo
	store     *flakyTelemetryStore
}

// newFixture builds a service over two tenants:
// company 1 (active) > group 1 > sensor 1 (particle)
// company 2 (active) > group 2 > sensor 2 (wind)
// group 3 is deactivated under company 1 and holds sensor 3.
// sensor 4 is ungrouped.
func newFixture() *fixture {
	gid1, gid2, gid3 := int64(1), int64(2), int64(3)
	cid1, cid2 := int64(1), int64(2)

	companies := &memCompanyRepo{companies: map[int64]*models.Company{
		1: {ID: 1, Name: "Aurora Farms", Active: true},
		2: {ID: 2, Name: "Borealis Mining", Active: true},
	}, nextID: 2}
	groups := &memGroupRepo{groups: map[int64]*models.SensorGroup{
		1: {ID: 1, CompanyID: &cid1, Name: "North Field", Active: true},
		2: {ID: 2, CompanyID: &cid2, Name: "Pit A", Active: true},
		3: {ID: 3, CompanyID: &cid1, Name: "Old Barn", Active: false},
	}, nextID: 3}
	sensors := &memSensorRepo{sensors: map[int64]*models.Sensor{
		1: {ID: 1, GroupID: &gid1, UUID: "sn_1", Name: "dust-1", Type: models.SensorTypeParticle, Status: models.SensorStatusActive, HeartbeatIntervalSeconds: 30},
		2: {ID: 2, GroupID: &gid2, UUID: "sn_2", Name: "wind-1", Type: models.SensorTypeWind, Status: models.SensorStatusActive, HeartbeatIntervalSeconds: 30},
		3: {ID: 3, GroupID: &gid3, UUID: "sn_3", Name: "temp-1", Type: models.SensorTypeTempHumidity, Status: models.SensorStatusActive},
		4: {ID: 4, UUID: "sn_4", Name: "loose-1", Type: models.SensorTypeParticle, Status: models.SensorStatusActive},
	}, nextID: 4}
	users := &memUserRepo{
		users: map[int64]*models.User{
			1: {ID: 1, Username: "root", Active: true},
			2: {ID: 2, Username: "alice", Active: true},
		},
		assignments: map[int64][]int64{2: {1}},
		roles:       map[int64][]string{1: {models.RoleAdmin}, 2: {models.RoleUser}},
		nextID:      2,
	}

	store := &flakyTelemetryStore{}
	registry := telemetry.NewRegistry()
	router := telemetry.NewRouter(sensors, store, registry)
	tracker := liveness.New(sensors, nil, liveness.Config{TimeoutMultiplier: 3})

	return &fixture{
		svc:       New(companies, groups, sensors, users, router, tracker),
		companies: companies,
		groups:    groups,
		sensors:   sensors,
		users:     users,
		store:     store,
	}
}

var (
	adminPrincipal = authz.Principal{UserID: 1, Roles: []string{models.RoleAdmin}}
	alicePrincipal = authz.Principal{UserID: 2, Roles: []string{models.RoleUser}, CompanyIDs: []int64{1}}
)

func TestGetSensorTenantScoping(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.GetSensor(ctx, alicePrincipal, 1); err != nil {
		t.Fatalf("GetSensor(own tenant) error = %v", err)
	}

	// Sensor 2 exists under the other tenant; the denial masks existence.
	if _, err := f.svc.GetSensor(ctx, alicePrincipal, 2); !errors.IsNotFound(err) {
		t.Fatalf("GetSensor(cross tenant) error = %v, want not found", err)
	}

	// Sensor 3 is in the caller's tenant but its group is deactivated.
	if _, err := f.svc.GetSensor(ctx, alicePrincipal, 3); !errors.IsForbidden(err) {
		t.Fatalf("GetSensor(inactive chain) error = %v, want forbidden", err)
	}

	// Ungrouped sensors are invisible to tenant users, reachable by admins.
	if _, err := f.svc.GetSensor(ctx, alicePrincipal, 4); !errors.IsNotFound(err) {
		t.Fatalf("GetSensor(ungrouped) error = %v, want not found", err)
	}
	if _, err := f.svc.GetSensor(ctx, adminPrincipal, 4); err != nil {
		t.Fatalf("GetSensor(admin, ungrouped) error = %v", err)
	}
}

func TestListCompaniesScoping(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	all, err := f.svc.ListCompanies(ctx, adminPrincipal, true)
	if err != nil {
		t.Fatalf("ListCompanies(admin) error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin sees %d companies, want 2", len(all))
	}

	mine, err := f.svc.ListCompanies(ctx, alicePrincipal, false)
	if err != nil {
		t.Fatalf("ListCompanies(user) error = %v", err)
	}
	if len(mine) != 1 || mine[0].ID != 1 {
		t.Fatalf("user sees %+v, want only company 1", mine)
	}
}

func TestCreateSensorValidation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	err := f.svc.CreateSensor(ctx, alicePrincipal, &models.Sensor{Name: "x", Type: models.SensorTypeWind})
	if !errors.IsForbidden(err) {
		t.Fatalf("CreateSensor(non-admin) error = %v, want forbidden", err)
	}

	err = f.svc.CreateSensor(ctx, adminPrincipal, &models.Sensor{Name: "x", Type: "barometric"})
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Type != errors.ErrorTypeUnsupportedType {
		t.Fatalf("CreateSensor(unknown type) error = %v, want unsupported type", err)
	}

	sensor := &models.Sensor{Name: "dust-2", Type: models.SensorTypeParticle}
	if err := f.svc.CreateSensor(ctx, adminPrincipal, sensor); err != nil {
		t.Fatalf("CreateSensor() error = %v", err)
	}
	if sensor.UUID == "" || sensor.Status != models.SensorStatusActive {
		t.Fatalf("created sensor missing defaults: %+v", sensor)
	}
	if sensor.ConnectionStatus != models.ConnectionStatusUnknown {
		t.Fatalf("new sensor connection status = %s, want unknown", sensor.ConnectionStatus)
	}
}

func TestUpdateSensorRejectsTypeChange(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	sensor, err := f.svc.GetSensor(ctx, adminPrincipal, 1)
	if err != nil {
		t.Fatalf("GetSensor() error = %v", err)
	}
	sensor.Type = models.SensorTypeWind
	err = f.svc.UpdateSensor(ctx, adminPrincipal, sensor)
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Type != errors.ErrorTypeValidation {
		t.Fatalf("UpdateSensor(type change) error = %v, want validation", err)
	}
}

func TestIngestAndQueryTelemetry(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	now := time.Now()

	err := f.svc.IngestReading(ctx, alicePrincipal, 1, now, map[string]float64{"pm2_5": 7.5}, nil)
	if err != nil {
		t.Fatalf("IngestReading() error = %v", err)
	}

	// The write doubles as a liveness signal.
	state, err := f.svc.GetLiveness(ctx, alicePrincipal, 1)
	if err != nil {
		t.Fatalf("GetLiveness() error = %v", err)
	}
	if state.Status != models.ConnectionStatusOnline {
		t.Fatalf("status after ingest = %s, want online", state.Status)
	}

	readings, err := f.svc.GetTelemetry(ctx, alicePrincipal, 1, models.TelemetryQuery{
		Start: now.Add(-time.Hour),
		End:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("GetTelemetry() error = %v", err)
	}
	if len(readings) != 1 || readings[0].Fields["pm2_5"] != 7.5 {
		t.Fatalf("GetTelemetry() = %+v, want the ingested reading", readings)
	}

	// Cross-tenant telemetry is masked like the sensor itself.
	_, err = f.svc.GetTelemetry(ctx, alicePrincipal, 2, models.TelemetryQuery{End: now})
	if !errors.IsNotFound(err) {
		t.Fatalf("GetTelemetry(cross tenant) error = %v, want not found", err)
	}
}

func TestGetTelemetryRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.store.failures = 1

	_, err := f.svc.GetTelemetry(ctx, adminPrincipal, 1, models.TelemetryQuery{End: time.Now()})
	if err != nil {
		t.Fatalf("GetTelemetry() error = %v, want retry to succeed", err)
	}
	if f.store.fetches != 2 {
		t.Fatalf("store fetched %d times, want 2", f.store.fetches)
	}
}

func TestReplaceCompanies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	err := f.svc.ReplaceCompanies(ctx, alicePrincipal, 2, []int64{1, 2})
	if !errors.IsForbidden(err) {
		t.Fatalf("ReplaceCompanies(non-admin) error = %v, want forbidden", err)
	}

	// An unknown company fails the whole request before any write.
	err = f.svc.ReplaceCompanies(ctx, adminPrincipal, 2, []int64{1, 99})
	if !errors.IsNotFound(err) {
		t.Fatalf("ReplaceCompanies(unknown company) error = %v, want not found", err)
	}
	if f.users.replaceCalls != 0 {
		t.Fatal("failed validation still reached the repository")
	}

	if err := f.svc.ReplaceCompanies(ctx, adminPrincipal, 2, []int64{1, 2}); err != nil {
		t.Fatalf("ReplaceCompanies() error = %v", err)
	}
	assigned, _ := f.users.ListCompanies(ctx, 2)
	if len(assigned) != 2 {
		t.Fatalf("assignments = %v, want [1 2]", assigned)
	}

	// Replacing with an empty set clears all assignments.
	if err := f.svc.ReplaceCompanies(ctx, adminPrincipal, 2, nil); err != nil {
		t.Fatalf("ReplaceCompanies(empty) error = %v", err)
	}
	assigned, _ = f.users.ListCompanies(ctx, 2)
	if len(assigned) != 0 {
		t.Fatalf("assignments after clear = %v, want empty", assigned)
	}
}

func TestGetUserFiltersFields(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.users.users[2].Email = "alice@example.com"

	// Self-read keeps the email.
	self, err := f.svc.GetUser(ctx, alicePrincipal, 2)
	if err != nil {
		t.Fatalf("GetUser(self) error = %v", err)
	}
	if self.Email != "alice@example.com" {
		t.Fatalf("self view lost email: %+v", self)
	}
	if self.PasswordHash != "" {
		t.Fatal("password hash leaked through field filter")
	}

	// Another user's record stays closed entirely.
	if _, err := f.svc.GetUser(ctx, alicePrincipal, 1); !errors.IsForbidden(err) {
		t.Fatalf("GetUser(other user) error = %v, want forbidden", err)
	}

	// Admin read keeps the email too.
	view, err := f.svc.GetUser(ctx, adminPrincipal, 2)
	if err != nil {
		t.Fatalf("GetUser(admin) error = %v", err)
	}
	if view.Email != "alice@example.com" {
		t.Fatalf("admin view lost email: %+v", view)
	}
}

func TestDeactivateCascadeVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if err := f.svc.DeactivateCompany(ctx, adminPrincipal, 1); err != nil {
		t.Fatalf("DeactivateCompany() error = %v", err)
	}

	// The sensor row is untouched, but the inactive chain now yields
	// Forbidden for the tenant user and still resolves for admins.
	if _, err := f.svc.GetSensor(ctx, alicePrincipal, 1); !errors.IsForbidden(err) {
		t.Fatalf("GetSensor(after company deactivation) error = %v, want forbidden", err)
	}
	if _, err := f.svc.GetSensor(ctx, adminPrincipal, 1); err != nil {
		t.Fatalf("GetSensor(admin, after deactivation) error = %v", err)
	}
}
