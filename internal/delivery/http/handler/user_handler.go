package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"device-console/internal/usecase/user"
	"device-console/pkg/utils"
)

type UserHandler struct {
	service *user.Service
}

func NewUserHandler(service *user.Service) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterPublicRoutes mounts the endpoints reachable without a token.
func (h *UserHandler) RegisterPublicRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.PATCH("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
	}
}

func (h *UserHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Login successful", result)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Users retrieved successfully", users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	result, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "User retrieved successfully", result)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req user.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.CreateUser(c.Request.Context(), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "User created successfully", nil)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req user.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateUser(c.Request.Context(), c.Param("id"), &req); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "User updated successfully", nil)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.service.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeActionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "User deleted successfully", nil)
}
