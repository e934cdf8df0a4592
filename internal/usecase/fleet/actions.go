package fleet

import (
	"context"

	"go.uber.org/zap"

	"device-console/internal/domain/device"
	"device-console/internal/validator"
	apperrors "device-console/pkg/errors"
)

// CreateDevice registers a device with the backend and reloads. New devices
// default to OFFLINE until evidence says otherwise.
func (s *Service) CreateDevice(ctx context.Context, req *CreateDeviceRequest) error {
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	status := req.Status
	if status == "" {
		status = "OFFLINE"
	}

	body := map[string]any{
		"serialNumber": req.SerialNumber,
		"name":         req.Name,
		"description":  req.Description,
		"location":     req.Location,
		"status":       status,
	}
	if req.Latitude != nil {
		body["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		body["longitude"] = *req.Longitude
	}

	if err := s.backend.CreateDevice(ctx, body); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Service) UpdateDevice(ctx context.Context, id string, req *UpdateDeviceRequest) error {
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	body := map[string]any{}
	if req.SerialNumber != "" {
		body["serialNumber"] = req.SerialNumber
	}
	if req.Name != "" {
		body["name"] = req.Name
	}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if req.Location != "" {
		body["location"] = req.Location
	}
	if req.Latitude != nil {
		body["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		body["longitude"] = *req.Longitude
	}

	if err := s.backend.UpdateDevice(ctx, id, body); err != nil {
		return err
	}
	return s.Load(ctx)
}

// DeleteDevice removes a device, addressing it by serial when available the
// way the backend expects.
func (s *Service) DeleteDevice(ctx context.Context, idOrSerial string) error {
	dev, found := s.store.FindDevice(idOrSerial)
	key := idOrSerial
	if found {
		key = dev.Key()
	}

	if err := s.backend.DeleteDevice(ctx, key); err != nil {
		return err
	}
	return s.Load(ctx)
}

// AssignToGroup adds a device to a group's owned member list.
func (s *Service) AssignToGroup(ctx context.Context, groupID, deviceID string) error {
	if groupID == device.GroupAll {
		return device.ErrGroupReserved
	}

	if err := s.backend.AssignDevice(ctx, groupID, deviceID); err != nil {
		return err
	}
	return s.Load(ctx)
}

// RemoveFromGroup drops a device from a group's owned member list.
func (s *Service) RemoveFromGroup(ctx context.Context, groupID, deviceID string) error {
	if groupID == device.GroupAll {
		return device.ErrGroupReserved
	}

	if err := s.backend.UnassignDevice(ctx, groupID, deviceID); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Service) CreateGroup(ctx context.Context, req *CreateGroupRequest) error {
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	body := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"site":        req.Site,
	}
	if err := s.backend.CreateGroup(ctx, body); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Service) UpdateGroup(ctx context.Context, id string, req *UpdateGroupRequest) error {
	if id == device.GroupAll {
		return device.ErrGroupReserved
	}
	if err := validator.ValidateStruct(req); err != nil {
		return apperrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	body := map[string]any{}
	if req.Name != "" {
		body["name"] = req.Name
	}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if req.Site != "" {
		body["site"] = req.Site
	}

	if err := s.backend.UpdateGroup(ctx, id, body); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if id == device.GroupAll {
		return device.ErrGroupReserved
	}
	if err := s.backend.DeleteGroup(ctx, id); err != nil {
		return err
	}
	return s.Load(ctx)
}

// TogglePower applies the optimistic power mutation, sends the actuation
// command, and rolls the map back when the command fails.
func (s *Service) TogglePower(ctx context.Context, idOrSerial string, on bool) error {
	dev, found := s.store.FindDevice(idOrSerial)
	if !found {
		return device.ErrDeviceNotFound
	}

	command := "OFF"
	if on {
		command = "ON"
	}

	mutation := BeginPowerMutation(s.store, dev.ID, on)

	err := s.backend.SendCommand(ctx, dev.Key(), command, map[string]any{"speed": 1})
	if err != nil {
		mutation.Rollback(s.store)
		s.logger.Warn("power command failed, rolled back",
			zap.String("device_id", dev.ID),
			zap.String("command", command),
			zap.Error(err),
		)
		return err
	}

	mutation.Commit()
	return nil
}
