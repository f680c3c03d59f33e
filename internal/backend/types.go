package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Wire types for the claim backend. The backend is a FastAPI service, so
// error bodies carry a "detail" field and timestamps usually lack a zone.

type validationResponse struct {
	Timestamp Timestamp `json:"timestamp"`
	Reason    string    `json:"reason"`
	IsValid   bool      `json:"is_valid_report"`
}

type evaluationResponse struct {
	Timestamp       Timestamp `json:"timestamp"`
	ClaimID         string    `json:"claim_id"`
	Reasoning       string    `json:"reasoning"`
	ClaimableAmount float64   `json:"claimable_amount"`
}

type notifyRequest struct {
	ClaimID       string `json:"claim_id"`
	HospitalEmail string `json:"hospital_email"`
}

type ackResponse struct {
	Message         string `json:"message"`
	Reason          string `json:"reason"`
	TransactionHash string `json:"transaction_hash"`
	Success         bool   `json:"success"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes RFC 3339 and zone-less ISO 8601 values. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// orNow substitutes the current time for a missing backend timestamp.
func (t Timestamp) orNow() time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t.Time
}
