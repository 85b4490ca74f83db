package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

type stubAuthRepo struct {
	users     map[string]*models.User
	lastLogin map[string]time.Time
	created   []*models.User
}

func newStubAuthRepo(t *testing.T) *stubAuthRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubAuthRepo{
		users: map[string]*models.User{
			"minister@example.com": {ID: ministerID, Email: "minister@example.com", FullName: "Mina Minister", PasswordHash: string(hash), Role: models.RoleMinister, Active: true},
			"gone@example.com":     {ID: fieldID2, Email: "gone@example.com", FullName: "Gone", PasswordHash: string(hash), Role: models.RoleFieldAuthority, Active: false},
		},
		lastLogin: make(map[string]time.Time),
	}
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := r.users[strings.ToLower(email)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *stubAuthRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	r.lastLogin[id] = ts
	return nil
}

func (r *stubAuthRepo) Create(_ context.Context, user *models.User) error {
	user.ID = adminID
	r.created = append(r.created, user)
	return nil
}

func newTestAuthService(repo *stubAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "jwt-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "demandes-api",
	})
}

func TestAuthLoginAndValidate(t *testing.T) {
	repo := newStubAuthRepo(t)
	svc := newTestAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "minister@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleMinister, resp.User.Role)
	assert.Contains(t, repo.lastLogin, ministerID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, minister, claims.Actor())

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthLoginFailures(t *testing.T) {
	svc := newTestAuthService(newStubAuthRepo(t))
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "minister@example.com", Password: "wrong-pass"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "gone@example.com", Password: "s3cret-pass"})
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthRejectsSystemRoleTokens(t *testing.T) {
	svc := newTestAuthService(newStubAuthRepo(t))
	claims := &models.JWTClaims{
		UserID: models.SystemActorID,
		Role:   models.RoleSystem,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthRegisterUser(t *testing.T) {
	repo := newStubAuthRepo(t)
	svc := newTestAuthService(repo)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, " New.Admin@Example.com ", "New Admin", models.RoleAdministrator, "long-enough")
	require.NoError(t, err)
	assert.Equal(t, "new.admin@example.com", user.Email)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long-enough")))

	_, err = svc.RegisterUser(ctx, "x@example.com", "X", models.RoleSystem, "long-enough")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = svc.RegisterUser(ctx, "x@example.com", "X", models.RoleRequester, "short")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = svc.RegisterUser(ctx, "nope", "X", models.RoleRequester, "long-enough")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Len(t, repo.created, 1)
}

func TestAuthRejectsForeignIssuer(t *testing.T) {
	repo := newStubAuthRepo(t)
	foreign := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "jwt-secret", Issuer: "someone-else"})
	resp, err := foreign.Login(context.Background(), models.LoginRequest{Email: "Minister@Example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = newTestAuthService(repo).ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
