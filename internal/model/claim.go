// Package model defines the core domain models used throughout the application.
package model

import (
	"os"
	"time"
)

// Document is a handle to a local file that will be uploaded to the claim backend.
type Document struct {
	Path string `json:"path"`
}

// NewDocument returns a document handle for the given path.
func NewDocument(path string) Document {
	return Document{Path: path}
}

// IsPresent reports whether the document names an existing, non-empty regular file.
func (d Document) IsPresent() bool {
	if d.Path == "" {
		return false
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// ClaimDraft is the not-yet-submitted claim assembled by the user.
type ClaimDraft struct {
	UserID        string    `json:"user_id"`
	HospitalEmail string    `json:"hospital_email,omitempty"`
	DischargeFile Document  `json:"discharge_file"`
	BillFile      Document  `json:"bill_file"`
	PolicyFile    *Document `json:"policy_file,omitempty"`
}

// ValidationResult is the outcome of a single discharge document validation.
type ValidationResult struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	IsValid   bool      `json:"is_valid"`
}

// ClaimRecord is the authoritative evaluation result issued by the backend.
type ClaimRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	ClaimID         string    `json:"claim_id"`
	Reasoning       string    `json:"reasoning"`
	ClaimableAmount float64   `json:"claimable_amount"`
}

// NotificationState tracks whether the hospital has been notified for a claim.
type NotificationState struct {
	SentAt  time.Time `json:"sent_at,omitzero"`
	ClaimID string    `json:"claim_id"`
	Sent    bool      `json:"sent"`
}

// SentFor reports whether the notification was already sent for claimID.
func (n NotificationState) SentFor(claimID string) bool {
	return n.Sent && claimID != "" && n.ClaimID == claimID
}

// FinalizeReceipt acknowledges a completed downstream insurance claim.
type FinalizeReceipt struct {
	Message         string `json:"message"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}
