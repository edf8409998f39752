package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type fakeUserLister struct {
	users []models.User
}

func (f *fakeUserLister) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range f.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (f *fakeUserLister) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func TestUserServiceListDefaultsPagination(t *testing.T) {
	users := &fakeUserLister{users: []models.User{
		{ID: "user-1", Email: "a@formation.local", Role: "formateur"},
		{ID: "user-2", Email: "b@formation.local", Role: "cdc"},
	}}
	svc := NewUserService(users, newFakeRoleRepo(), zap.NewNop())

	list, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestUserServiceGetIncludesRoles(t *testing.T) {
	users := &fakeUserLister{users: []models.User{
		{ID: "user-1", Email: "cdc@formation.local", FullName: "Chef de centre"},
	}}
	roles := newFakeRoleRepo()
	roles.userRoles["user-1"] = []models.RoleSlug{models.RoleCDC}
	svc := NewUserService(users, roles, zap.NewNop())

	detail, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cdc@formation.local", detail.Email)
	require.Len(t, detail.Roles, 1)
	assert.Equal(t, models.RoleCDC, detail.Roles[0].Slug)
}

func TestUserServiceGetMissing(t *testing.T) {
	svc := NewUserService(&fakeUserLister{}, newFakeRoleRepo(), zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "user not found", appErr.Message)
}
