package model

import (
	"fmt"
	"strings"
)

// ClaimStatus is the backend's decision on a submitted claim.
type ClaimStatus string

// Claim status constants.
const (
	StatusUnknown  ClaimStatus = "unknown"
	StatusPending  ClaimStatus = "pending"
	StatusApproved ClaimStatus = "approved"
	StatusRejected ClaimStatus = "rejected"
)

// ParseClaimStatus converts a backend status value. Only values the backend
// can legitimately report are accepted; "unknown" is a local initial state.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch ClaimStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return StatusUnknown, fmt.Errorf("unrecognized claim status %q", s)
	}
}

// IsDecided reports whether the backend has reached a final decision.
func (s ClaimStatus) IsDecided() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s ClaimStatus) String() string {
	if s == "" {
		return string(StatusUnknown)
	}
	return string(s)
}
