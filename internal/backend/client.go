// Package backend is the REST client for the external device backend. The
// console never owns durable data; everything durable lives behind these
// endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"device-console/internal/config"
	"device-console/internal/domain/device"
	apperrors "device-console/pkg/errors"
)

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		logger:  logger,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken replaces the bearer token used on every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do performs one request and decodes the JSON response into out (when out
// is non-nil). Non-2xx responses become *apperrors.APIError with the
// extracted body message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", apperrors.ErrBackendDown, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apperrors.NewAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// getCollection fetches a list endpoint and normalizes both known response
// shapes into a record slice.
func (c *Client) getCollection(ctx context.Context, path string) ([]device.Raw, error) {
	var payload any
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return device.NormalizeCollection(payload), nil
}

// ---- auth ----

type LoginResult struct {
	AccessToken string     `json:"access_token"`
	User        device.Raw `json:"user"`
}

// Login exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, apperrors.NewAppError("LOGIN_FAILED", "login response carried no token", nil)
	}

	c.SetToken(result.AccessToken)
	return &result, nil
}

// ---- devices ----

func (c *Client) ListDevices(ctx context.Context) ([]device.Raw, error) {
	return c.getCollection(ctx, "/devices")
}

func (c *Client) CreateDevice(ctx context.Context, body any) error {
	return c.do(ctx, http.MethodPost, "/devices", body, nil)
}

func (c *Client) UpdateDevice(ctx context.Context, id string, body any) error {
	return c.do(ctx, http.MethodPatch, "/devices/"+url.PathEscape(id), body, nil)
}

func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/devices/"+url.PathEscape(id), nil, nil)
}

// StatusSnapshot is the authoritative per-device status answer.
type StatusSnapshot struct {
	Status     string `json:"status"`
	LastSeenAt string `json:"lastSeenAt"`
}

func (c *Client) DeviceStatus(ctx context.Context, id string) (*StatusSnapshot, error) {
	var snap StatusSnapshot
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id)+"/status", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) DeviceLogs(ctx context.Context, serialOrID string) ([]device.Raw, error) {
	return c.getCollection(ctx, "/device-logs/"+url.PathEscape(serialOrID))
}

// SendCommand posts an actuation command addressed by serial (falling back
// to id) the way the backend expects it.
func (c *Client) SendCommand(ctx context.Context, serialOrID, command string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	body := map[string]any{
		"payload": map[string]any{
			"command": command,
			"params":  params,
		},
	}
	return c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(serialOrID)+"/cmd", body, nil)
}

// ---- groups ----

func (c *Client) ListGroups(ctx context.Context) ([]device.Raw, error) {
	return c.getCollection(ctx, "/groups")
}

func (c *Client) CreateGroup(ctx context.Context, body any) error {
	return c.do(ctx, http.MethodPost, "/groups", body, nil)
}

func (c *Client) UpdateGroup(ctx context.Context, id string, body any) error {
	return c.do(ctx, http.MethodPatch, "/groups/"+url.PathEscape(id), body, nil)
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(id), nil, nil)
}

func (c *Client) GroupDevices(ctx context.Context, groupID string) ([]device.Raw, error) {
	return c.getCollection(ctx, "/groups/"+url.PathEscape(groupID)+"/devices")
}

func (c *Client) AssignDevice(ctx context.Context, groupID, deviceID string) error {
	return c.do(ctx, http.MethodPost,
		"/groups/"+url.PathEscape(groupID)+"/devices/"+url.PathEscape(deviceID), nil, nil)
}

func (c *Client) UnassignDevice(ctx context.Context, groupID, deviceID string) error {
	return c.do(ctx, http.MethodDelete,
		"/groups/"+url.PathEscape(groupID)+"/devices/"+url.PathEscape(deviceID), nil, nil)
}

// ---- users ----

func (c *Client) ListUsers(ctx context.Context) ([]device.Raw, error) {
	return c.getCollection(ctx, "/users")
}

func (c *Client) CreateUser(ctx context.Context, body any) error {
	return c.do(ctx, http.MethodPost, "/users", body, nil)
}

func (c *Client) GetUser(ctx context.Context, id string) (device.Raw, error) {
	var user device.Raw
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, body any) error {
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), body, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}
