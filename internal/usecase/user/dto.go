package user

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	Password string `json:"password" binding:"required" validate:"required,min=8,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=admin operator viewer"`
}

type UpdateUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	Password string `json:"password" validate:"omitempty,min=8,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=admin operator viewer"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	User        map[string]any `json:"user,omitempty"`
}
