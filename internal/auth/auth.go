// FilePath: internal/auth/auth.go
package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	"github.com/envimon/hub/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	nuts "github.com/vaudience/go-nuts"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher abstracts credential hashing so tests can swap in a cheap
// implementation.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher is the production hasher.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.NewInternalError("failed to hash password", err)
	}
	return string(hashed), nil
}

func (h BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the JWT payload issued on login. Company assignments ride along
// so request authorization does not need a membership lookup per call.
type Claims struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	Companies []int64  `json:"companies"`
	jwt.RegisteredClaims
}

// TokenService issues and parses signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, issuer string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

func (s *TokenService) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Username:  user.Username,
		Roles:     user.Roles,
		Companies: user.CompanyIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.NewInternalError("failed to sign token", err)
	}
	return signed, nil
}

func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewAuthError("unexpected signing method", nil)
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.NewAuthError("invalid token", err)
	}
	if !token.Valid {
		return nil, errors.NewAuthError("invalid token", nil)
	}
	return claims, nil
}

// Service handles credential verification and password management.
type Service struct {
	users  repository.UserRepository
	hasher PasswordHasher
	tokens *TokenService
}

func NewService(users repository.UserRepository, hasher PasswordHasher, tokens *TokenService) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Login verifies credentials and returns a signed token plus the user record.
// Failures are deliberately indistinguishable between unknown username and
// wrong password.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", nil, errors.NewAuthError("invalid credentials", nil)
		}
		return "", nil, err
	}
	if !user.Active {
		return "", nil, errors.NewAuthError("invalid credentials", nil)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return "", nil, errors.NewAuthError("invalid credentials", nil)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		// Login still succeeds; the timestamp is informational.
		nuts.L.Warnf("[Auth] Failed to record last login for user %d: %v", user.ID, err)
	}

	nuts.L.Infof("[Auth] User %s logged in", user.Username)
	return token, user, nil
}

// ChangePassword replaces a user's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.NewValidationError("password must be at least 8 characters", nil)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return errors.NewAuthError("current password is incorrect", nil)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}
