// Package user proxies user administration to the backend. The console
// keeps no user records of its own.
package user

import (
	"context"

	"go.uber.org/zap"

	"device-console/internal/backend"
	"device-console/internal/domain/device"
	"device-console/internal/validator"
	apperrors "device-console/pkg/errors"
)

type Service struct {
	backend *backend.Client
	logger  *zap.Logger
}

func NewService(client *backend.Client, logger *zap.Logger) *Service {
	return &Service{
		backend: client,
		logger:  logger,
	}
}

// Login forwards credentials and returns the backend's token, which the
// backend client keeps for subsequent calls.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	result, err := s.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("email", req.Email))
	return &LoginResponse{
		AccessToken: result.AccessToken,
		User:        result.User,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]device.Raw, error) {
	return s.backend.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id string) (device.Raw, error) {
	return s.backend.GetUser(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) error {
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	body := map[string]any{
		"email":    req.Email,
		"name":     req.Name,
		"password": req.Password,
	}
	if req.Role != "" {
		body["role"] = req.Role
	}
	return s.backend.CreateUser(ctx, body)
}

func (s *Service) UpdateUser(ctx context.Context, id string, req *UpdateUserRequest) error {
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	body := map[string]any{}
	if req.Email != "" {
		body["email"] = req.Email
	}
	if req.Name != "" {
		body["name"] = req.Name
	}
	if req.Password != "" {
		body["password"] = req.Password
	}
	if req.Role != "" {
		body["role"] = req.Role
	}
	return s.backend.UpdateUser(ctx, id, body)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.backend.DeleteUser(ctx, id)
}
