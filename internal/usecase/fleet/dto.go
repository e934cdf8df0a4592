package fleet

import (
	"device-console/internal/domain/device"
	"device-console/internal/ingestion"
)

type CreateDeviceRequest struct {
	SerialNumber string   `json:"serialNumber" binding:"required" validate:"required,min=1,max=64"`
	Name         string   `json:"name" validate:"omitempty,max=100"`
	Description  string   `json:"description" validate:"omitempty,max=500"`
	Location     string   `json:"location" validate:"omitempty,max=100"`
	Status       string   `json:"status" validate:"omitempty,max=32"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
	GroupID      string   `json:"groupId" validate:"omitempty,max=64"`
}

type UpdateDeviceRequest struct {
	SerialNumber string   `json:"serialNumber" validate:"omitempty,min=1,max=64"`
	Name         string   `json:"name" validate:"omitempty,max=100"`
	Description  string   `json:"description" validate:"omitempty,max=500"`
	Location     string   `json:"location" validate:"omitempty,max=100"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
	GroupID      string   `json:"groupId" validate:"omitempty,max=64"`
}

type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Site        string `json:"site" validate:"omitempty,max=100"`
}

type UpdateGroupRequest struct {
	Name        string `json:"name" validate:"omitempty,min=1,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Site        string `json:"site" validate:"omitempty,max=100"`
}

type PowerRequest struct {
	On *bool `json:"on" binding:"required"`
}

// DeviceView is one device joined with its derived realtime state.
type DeviceView struct {
	device.Device
	Connection device.Status `json:"connection"`
	Powered    bool          `json:"powered"`
}

// GroupView is a group with sentinel members filtered out.
type GroupView struct {
	device.DeviceGroup
	DeviceCount int `json:"deviceCount"`
}

// FleetStats summarizes the visible device set.
type FleetStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Errored int `json:"errored"`
	Powered int `json:"powered"`
	Groups  int `json:"groups"`
}

// StatusView is the load-cycle state surfaced to clients.
type StatusView struct {
	Phase   Phase                   `json:"phase"`
	Error   string                  `json:"error,omitempty"`
	Ingest  ingestion.IngestMetrics `json:"ingest"`
	Devices int                     `json:"devices"`
}
