package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-console/internal/backend"
	"device-console/internal/config"
	apperrors "device-console/pkg/errors"
)

func newUserService(t *testing.T, handler http.HandlerFunc) (*Service, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := backend.NewClient(config.BackendConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	return NewService(client, zap.NewNop()), srv.Close
}

func TestLogin(t *testing.T) {
	svc, done := newUserService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		_, _ = w.Write([]byte(`{"access_token":"tok","user":{"email":"ops@example.com","role":"admin"}}`))
	})
	defer done()

	resp, err := svc.Login(context.Background(), &LoginRequest{Email: "ops@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.AccessToken)
	assert.Equal(t, "admin", resp.User["role"])
}

func TestLoginFailure(t *testing.T) {
	svc, done := newUserService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	})
	defer done()

	_, err := svc.Login(context.Background(), &LoginRequest{Email: "ops@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", apperrors.UserMessage(err))
}

func TestCreateUserValidation(t *testing.T) {
	svc, done := newUserService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	defer done()

	err := svc.CreateUser(context.Background(), &CreateUserRequest{
		Email:    "not-an-email",
		Password: "longenough",
	})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	err = svc.CreateUser(context.Background(), &CreateUserRequest{
		Email:    "ops@example.com",
		Password: "short",
	})
	require.Error(t, err)

	err = svc.CreateUser(context.Background(), &CreateUserRequest{
		Email:    "ops@example.com",
		Password: "longenough",
		Role:     "superuser",
	})
	require.Error(t, err)

	err = svc.CreateUser(context.Background(), &CreateUserRequest{
		Email:    "ops@example.com",
		Password: "longenough",
		Role:     "viewer",
	})
	assert.NoError(t, err)
}

func TestUpdateUserSendsOnlySetFields(t *testing.T) {
	var body map[string]any
	svc, done := newUserService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/u1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})
	defer done()

	err := svc.UpdateUser(context.Background(), "u1", &UpdateUserRequest{Name: "New Name"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "New Name"}, body)
}
