package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the device backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// NewAPIError builds an APIError from a raw response body, extracting the
// most useful human-readable message it can find.
func NewAPIError(statusCode int, body []byte) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    ExtractMessage(body),
	}
}

// ExtractMessage pulls a display message out of a backend error body.
// A structured "message" field is preferred over "error"; array messages
// are flattened with a comma. Anything unusable yields "Request failed".
func ExtractMessage(body []byte) string {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" && len(s) < 256 {
			return s
		}
		return "Request failed"
	}

	msg, ok := data["message"]
	if !ok {
		msg = data["error"]
	}

	switch v := msg.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprint(item))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}

	return "Request failed"
}

// UserMessage converts any error into the string shown in a notification.
func UserMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}

	var apiErr *APIError
	if As(err, &apiErr) {
		return apiErr.Message
	}

	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Message
	}

	return err.Error()
}
