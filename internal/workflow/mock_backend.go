package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/claimflow/internal/backend"
	"github.com/Veraticus/claimflow/internal/model"
)

// ErrMockExhausted is returned when a scripted MockBackend runs out of status responses.
var ErrMockExhausted = errors.New("mock backend has no more scripted responses")

// MockBackend is a scripted Backend that records every call.
type MockBackend struct {
	ValidateErr   error
	EvaluateErr   error
	NotifyErr     error
	FinalizeErr   error
	Validation    model.ValidationResult
	Record        model.ClaimRecord
	Receipt       model.FinalizeReceipt
	Statuses      []model.ClaimStatus
	StatusErrs    []error
	Delay         time.Duration
	calls         map[string]int
	notifications []string
	mu            sync.Mutex
}

// NewMockBackend returns a backend whose every step succeeds.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Validation: model.ValidationResult{IsValid: true, Reason: "ok"},
		Record: model.ClaimRecord{
			ClaimID:         "c1",
			ClaimableAmount: 5000,
			Reasoning:       "covered under inpatient care",
		},
		Receipt: model.FinalizeReceipt{Message: "claimed", TransactionHash: "0xfeed"},
		calls:   make(map[string]int),
	}
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

// Calls returns how many times the named method was invoked.
func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls returns the number of calls across all methods.
func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Notifications returns the hospital emails that were notified.
func (m *MockBackend) Notifications() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// ValidateDischarge implements Backend.
func (m *MockBackend) ValidateDischarge(ctx context.Context, _ model.Document) (*model.ValidationResult, error) {
	m.record("ValidateDischarge")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	result := m.Validation
	result.Timestamp = time.Now()
	return &result, nil
}

// EvaluateClaim implements Backend.
func (m *MockBackend) EvaluateClaim(ctx context.Context, _ backend.EvaluateRequest) (*model.ClaimRecord, error) {
	m.record("EvaluateClaim")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.EvaluateErr != nil {
		return nil, m.EvaluateErr
	}
	record := m.Record
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	return &record, nil
}

// NotifyHospital implements Backend.
func (m *MockBackend) NotifyHospital(ctx context.Context, _ string, hospitalEmail string) error {
	m.record("NotifyHospital")
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.mu.Lock()
	m.notifications = append(m.notifications, hospitalEmail)
	m.mu.Unlock()
	return nil
}

// ClaimStatus implements Backend. Scripted statuses are consumed in order.
func (m *MockBackend) ClaimStatus(ctx context.Context, _ string) (model.ClaimStatus, error) {
	m.record("ClaimStatus")
	if err := ctx.Err(); err != nil {
		return model.StatusUnknown, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.StatusErrs) > 0 {
		err := m.StatusErrs[0]
		m.StatusErrs = m.StatusErrs[1:]
		if err != nil {
			return model.StatusUnknown, err
		}
	}
	if len(m.Statuses) == 0 {
		return model.StatusUnknown, ErrMockExhausted
	}
	status := m.Statuses[0]
	if len(m.Statuses) > 1 {
		m.Statuses = m.Statuses[1:]
	}
	return status, nil
}

// ClaimInsurance implements Backend.
func (m *MockBackend) ClaimInsurance(ctx context.Context, _ string) (*model.FinalizeReceipt, error) {
	m.record("ClaimInsurance")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FinalizeErr != nil {
		return nil, m.FinalizeErr
	}
	receipt := m.Receipt
	return &receipt, nil
}
