package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse indicates the backend answered with a body we cannot use.
var ErrInvalidResponse = errors.New("invalid backend response")

// ErrNotVerified indicates the backend rejected a hospital document upload.
var ErrNotVerified = errors.New("hospital documents not verified")

// APIError is a non-2xx answer from the claim backend.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// newAPIError extracts the most useful message from an error body.
func newAPIError(status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case len(parsed.Detail) > 0:
			var detail string
			if json.Unmarshal(parsed.Detail, &detail) == nil {
				msg = detail
			} else {
				msg = string(parsed.Detail)
			}
		case parsed.Error != "":
			msg = parsed.Error
		}
	}

	if msg == "" {
		msg = "empty response"
	}
	return &APIError{StatusCode: status, Message: msg}
}
