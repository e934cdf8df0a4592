package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"device-console/internal/domain/device"
	"device-console/internal/ingestion"
	"device-console/internal/usecase/fleet"
	apperrors "device-console/pkg/errors"
	"device-console/pkg/utils"
)

type FleetHandler struct {
	service *fleet.Service
	metrics *ingestion.MetricsTracker
}

func NewFleetHandler(service *fleet.Service, metrics *ingestion.MetricsTracker) *FleetHandler {
	return &FleetHandler{
		service: service,
		metrics: metrics,
	}
}

func (h *FleetHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.GET("/:id", h.GetDevice)
		devices.GET("/:id/logs", h.DeviceLogs)
		devices.POST("", h.CreateDevice)
		devices.PATCH("/:id", h.UpdateDevice)
		devices.DELETE("/:id", h.DeleteDevice)
		devices.POST("/:id/power", h.TogglePower)
	}

	groups := router.Group("/groups")
	{
		groups.GET("", h.ListGroups)
		groups.POST("", h.CreateGroup)
		groups.PATCH("/:id", h.UpdateGroup)
		groups.DELETE("/:id", h.DeleteGroup)
		groups.POST("/:id/devices/:deviceId", h.AssignDevice)
		groups.DELETE("/:id/devices/:deviceId", h.UnassignDevice)
	}

	router.GET("/stats", h.Stats)
	router.GET("/status", h.Status)
	router.POST("/reload", h.Reload)
}

func (h *FleetHandler) ListDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", h.service.DeviceViews())
}

func (h *FleetHandler) GetDevice(c *gin.Context) {
	view, err := h.service.DeviceView(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, apperrors.UserMessage(err))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", view)
}

func (h *FleetHandler) DeviceLogs(c *gin.Context) {
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	logs, err := h.service.Logs(c.Param("id"), limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, apperrors.UserMessage(err))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Logs retrieved successfully", logs)
}

func (h *FleetHandler) CreateDevice(c *gin.Context) {
	var req fleet.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.CreateDevice(c.Request.Context(), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Device created successfully", nil)
}

func (h *FleetHandler) UpdateDevice(c *gin.Context) {
	var req fleet.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateDevice(c.Request.Context(), c.Param("id"), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device updated successfully", nil)
}

func (h *FleetHandler) DeleteDevice(c *gin.Context) {
	if err := h.service.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device deleted successfully", nil)
}

func (h *FleetHandler) TogglePower(c *gin.Context) {
	var req fleet.PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.TogglePower(c.Request.Context(), c.Param("id"), *req.On); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Power command sent", nil)
}

func (h *FleetHandler) ListGroups(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Groups retrieved successfully", h.service.GroupViews())
}

func (h *FleetHandler) CreateGroup(c *gin.Context) {
	var req fleet.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.CreateGroup(c.Request.Context(), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Group created successfully", nil)
}

func (h *FleetHandler) UpdateGroup(c *gin.Context) {
	var req fleet.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateGroup(c.Request.Context(), c.Param("id"), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Group updated successfully", nil)
}

func (h *FleetHandler) DeleteGroup(c *gin.Context) {
	if err := h.service.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Group deleted successfully", nil)
}

func (h *FleetHandler) AssignDevice(c *gin.Context) {
	err := h.service.AssignToGroup(c.Request.Context(), c.Param("id"), c.Param("deviceId"))
	if err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device assigned successfully", nil)
}

func (h *FleetHandler) UnassignDevice(c *gin.Context) {
	err := h.service.RemoveFromGroup(c.Request.Context(), c.Param("id"), c.Param("deviceId"))
	if err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device removed successfully", nil)
}

func (h *FleetHandler) Stats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Stats retrieved successfully", h.service.Stats())
}

func (h *FleetHandler) Status(c *gin.Context) {
	phase, errMsg := h.service.Phase()
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", fleet.StatusView{
		Phase:   phase,
		Error:   errMsg,
		Ingest:  h.metrics.Snapshot(),
		Devices: len(h.service.VisibleDevices()),
	})
}

// Reload triggers a fresh reconciliation cycle.
func (h *FleetHandler) Reload(c *gin.Context) {
	if err := h.service.Load(c.Request.Context()); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Reload complete", nil)
}

// writeActionError maps service errors onto HTTP statuses, preserving the
// backend's status code and message when the failure came from it.
func writeActionError(c *gin.Context, err error) {
	var apiErr *apperrors.APIError
	if apperrors.As(err, &apiErr) {
		utils.ErrorResponse(c, apiErr.StatusCode, apiErr.Message)
		return
	}

	switch {
	case apperrors.Is(err, device.ErrDeviceNotFound), apperrors.Is(err, device.ErrGroupNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, apperrors.UserMessage(err))
	case apperrors.Is(err, device.ErrGroupReserved):
		utils.ErrorResponse(c, http.StatusBadRequest, apperrors.UserMessage(err))
	case apperrors.Is(err, apperrors.ErrBackendDown):
		utils.ErrorResponse(c, http.StatusBadGateway, apperrors.UserMessage(err))
	default:
		var appErr *apperrors.AppError
		if apperrors.As(err, &appErr) && appErr.Code == "VALIDATION_ERROR" {
			utils.ErrorResponse(c, http.StatusBadRequest, appErr.Message)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, apperrors.UserMessage(err))
	}
}
