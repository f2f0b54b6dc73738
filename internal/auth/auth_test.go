// FilePath: internal/auth/auth_test.go
package auth

import (
	"context"
	"testing"
	"time"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

// fakeUserRepo implements the user repository surface the auth service
// touches; everything else panics to catch unexpected calls.
type fakeUserRepo struct {
	users      map[int64]*models.User
	lastLogins map[int64]time.Time
	passwords  map[int64]string
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{
		users:      make(map[int64]*models.User),
		lastLogins: make(map[int64]time.Time),
		passwords:  make(map[int64]string),
	}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Get(_ context.Context, id int64) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user not found", nil)
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, errors.NewNotFoundError("user not found", nil)
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.passwords[id] = hash
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	r.lastLogins[id] = at
	return nil
}

func (r *fakeUserRepo) Create(context.Context, *models.User) error          { panic("not implemented") }
func (r *fakeUserRepo) Update(context.Context, *models.User) error          { panic("not implemented") }
func (r *fakeUserRepo) Deactivate(context.Context, int64) error             { panic("not implemented") }
func (r *fakeUserRepo) List(context.Context, bool) ([]*models.User, error)  { panic("not implemented") }
func (r *fakeUserRepo) ListCompanies(context.Context, int64) ([]int64, error) {
	panic("not implemented")
}
func (r *fakeUserRepo) AssignCompany(context.Context, int64, int64) error { panic("not implemented") }
func (r *fakeUserRepo) RemoveCompany(context.Context, int64, int64) error { panic("not implemented") }
func (r *fakeUserRepo) ReplaceCompanies(context.Context, int64, []int64) error {
	panic("not implemented")
}
func (r *fakeUserRepo) ListRoles(context.Context, int64) ([]string, error) { panic("not implemented") }
func (r *fakeUserRepo) AssignRole(context.Context, int64, string) error    { panic("not implemented") }
func (r *fakeUserRepo) RemoveRole(context.Context, int64, string) error    { panic("not implemented") }
func (r *fakeUserRepo) BeginTx(context.Context) (database.Transaction, error) {
	panic("not implemented")
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tokens := NewTokenService("test-secret", time.Hour, "envimon-hub")
	user := &models.User{
		ID:         42,
		Username:   "carol",
		Roles:      []string{models.RoleUser},
		CompanyIDs: []int64{10, 20},
	}

	signed, err := tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "42" || claims.Username != "carol" {
		t.Fatalf("claims = %+v, want subject 42 username carol", claims)
	}
	if len(claims.Companies) != 2 || claims.Companies[0] != 10 {
		t.Fatalf("companies = %v, want [10 20]", claims.Companies)
	}
}

func TestTokenRejection(t *testing.T) {
	t.Parallel()

	tokens := NewTokenService("test-secret", time.Hour, "envimon-hub")
	user := &models.User{ID: 1, Username: "carol"}

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()

		signed, err := tokens.Issue(user)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		other := NewTokenService("different-secret", time.Hour, "envimon-hub")
		if _, err := other.Parse(signed); err == nil {
			t.Fatal("Parse() accepted token signed with different secret")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		t.Parallel()

		other := NewTokenService("test-secret", time.Hour, "someone-else")
		signed, err := other.Issue(user)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := tokens.Parse(signed); err == nil {
			t.Fatal("Parse() accepted token with wrong issuer")
		}
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		expired := NewTokenService("test-secret", time.Hour, "envimon-hub")
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		signed, err := expired.Issue(user)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := tokens.Parse(signed); err == nil {
			t.Fatal("Parse() accepted expired token")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()

		if _, err := tokens.Parse("not.a.token"); err == nil {
			t.Fatal("Parse() accepted garbage")
		}
	})
}

func loginFixture(t *testing.T) (*Service, *fakeUserRepo) {
	t.Helper()

	hasher := BcryptHasher{Cost: 4}
	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	repo := newFakeUserRepo(
		&models.User{ID: 1, Username: "carol", PasswordHash: hash, Active: true, Roles: []string{models.RoleUser}},
		&models.User{ID: 2, Username: "mallory", PasswordHash: hash, Active: false},
	)
	tokens := NewTokenService("test-secret", time.Hour, "envimon-hub")
	return NewService(repo, hasher, tokens), repo
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, repo := loginFixture(t)

	token, user, err := svc.Login(context.Background(), "carol", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token == "" || user.ID != 1 {
		t.Fatalf("Login() = (%q, %+v)", token, user)
	}
	if _, ok := repo.lastLogins[1]; !ok {
		t.Fatal("last login not recorded")
	}
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	svc, _ := loginFixture(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "carol", "wrong"},
		{"unknown user", "nobody", "correct horse"},
		{"inactive user", "mallory", "correct horse"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := svc.Login(context.Background(), tt.username, tt.password)
			apiErr, ok := err.(*errors.APIError)
			if !ok || apiErr.Type != errors.ErrorTypeAuth {
				t.Fatalf("Login() error = %v, want authentication failure", err)
			}
			// Failure detail must not leak which part was wrong.
			if apiErr.Message != "invalid credentials" {
				t.Fatalf("Login() message = %q", apiErr.Message)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	svc, repo := loginFixture(t)

	if err := svc.ChangePassword(context.Background(), 1, "correct horse", "battery staple"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	hash, ok := repo.passwords[1]
	if !ok {
		t.Fatal("new password not stored")
	}
	if !(BcryptHasher{}).Verify(hash, "battery staple") {
		t.Fatal("stored hash does not match new password")
	}

	if err := svc.ChangePassword(context.Background(), 1, "wrong", "battery staple"); err == nil {
		t.Fatal("ChangePassword() accepted wrong current password")
	}
	if err := svc.ChangePassword(context.Background(), 1, "correct horse", "short"); err == nil {
		t.Fatal("ChangePassword() accepted short password")
	}
}
