package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/repository"
	"github.com/mehdifatimi/formation-api/pkg/config"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type fakeUserRepo struct {
	byEmail   map[string]*models.User
	byID      map[string]*models.User
	tokens    map[string]*models.RefreshToken
	audits    []models.AuditLog
	lastLogin map[string]time.Time
	seq       int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail:   make(map[string]*models.User),
		byID:      make(map[string]*models.User),
		tokens:    make(map[string]*models.RefreshToken),
		lastLogin: make(map[string]time.Time),
	}
}

func (f *fakeUserRepo) add(user *models.User) {
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := f.byEmail[email]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := f.byID[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	if _, exists := f.byEmail[user.Email]; exists {
		return repository.ErrDuplicate
	}
	f.seq++
	user.ID = fmt.Sprintf("user-%d", f.seq)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.add(&stored)
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.seq++
	token.ID = fmt.Sprintf("token-%d", f.seq)
	stored := *token
	f.tokens[token.Token] = &stored
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := f.tokens[token]; ok {
		copied := *stored
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, stored := range f.tokens {
		if stored.ID == id {
			stored.Revoked = true
			stored.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	for _, stored := range f.tokens {
		if stored.UserID == userID && !stored.Revoked {
			stored.Revoked = true
			stored.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.audits = append(f.audits, *log)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "formation-api",
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "cdc@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		FullName:     "Chef de centre",
		Active:       true,
	})
	roles := newFakeRoleRepo()
	roles.userRoles["user-1"] = []models.RoleSlug{models.RoleCDC}
	svc := NewAuthService(users, roles, testJWTConfig(), nil, zap.NewNop())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "cdc@formation.local",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Contains(t, resp.User.Roles, models.RoleCDC)
	assert.Contains(t, resp.User.Permissions, models.PermValidateFormations)
	assert.Contains(t, users.lastLogin, "user-1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.HasRole(models.RoleCDC))
	assert.True(t, claims.PermissionSet().Has(models.PermValidateFormations))
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "cdc@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "cdc@formation.local",
		Password: "not-the-password",
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
	assert.Equal(t, []string{"The provided credentials are incorrect."}, appErr.Fields["email"])
}

func TestAuthServiceLoginUnknownEmailSameShape(t *testing.T) {
	users := newFakeUserRepo()
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@formation.local",
		Password: "whatever1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Equal(t, []string{"The provided credentials are incorrect."}, appErr.Fields["email"])
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "old@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		Active:       false,
	})
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "old@formation.local",
		Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterAssignsDefaultRole(t *testing.T) {
	users := newFakeUserRepo()
	roles := newFakeRoleRepo()
	svc := NewAuthService(users, roles, testJWTConfig(), nil, zap.NewNop())

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName:             "Nouveau Formateur",
		Email:                "formateur@formation.local",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Contains(t, resp.User.Roles, models.RoleFormateur)
	assert.Contains(t, resp.User.Permissions, models.PermManageAbsences)

	stored, err := users.FindByEmail(context.Background(), "formateur@formation.local")
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{ID: "user-1", Email: "taken@formation.local", Active: true})
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName:             "Doublon",
		Email:                "taken@formation.local",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
	assert.Equal(t, []string{"The email has already been taken."}, appErr.Fields["email"])
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "cdc@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "cdc@formation.local",
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The rotated-out token is dead.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutRevokesAllSessions(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "cdc@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "cdc@formation.local",
		Password: "secret123",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1"))

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsForgedSecret(t *testing.T) {
	users := newFakeUserRepo()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "cdc@formation.local",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	issuer := NewAuthService(users, newFakeRoleRepo(), testJWTConfig(), nil, zap.NewNop())

	login, err := issuer.Login(context.Background(), models.LoginRequest{
		Email:    "cdc@formation.local",
		Password: "secret123",
	})
	require.NoError(t, err)

	other := testJWTConfig()
	other.Secret = "a-different-secret"
	verifier := NewAuthService(users, newFakeRoleRepo(), other, nil, zap.NewNop())

	_, err = verifier.ValidateToken(login.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
