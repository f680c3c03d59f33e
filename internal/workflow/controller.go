// Package workflow implements the resumable claim submission state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/claimflow/internal/backend"
	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/service"
)

// Backend is the claim-processing service the controller drives.
type Backend interface {
	ValidateDischarge(ctx context.Context, doc model.Document) (*model.ValidationResult, error)
	EvaluateClaim(ctx context.Context, req backend.EvaluateRequest) (*model.ClaimRecord, error)
	NotifyHospital(ctx context.Context, claimID, hospitalEmail string) error
	ClaimStatus(ctx context.Context, claimID string) (model.ClaimStatus, error)
	ClaimInsurance(ctx context.Context, claimID string) (*model.FinalizeReceipt, error)
}

// TransitionFunc observes every phase change.
type TransitionFunc func(from, to Phase)

// Options tune a Controller. The zero value is usable.
type Options struct {
	Identity     service.IdentityProvider
	OnTransition TransitionFunc
	Logger       *slog.Logger
	Now          func() time.Time
}

// Controller drives one claim through validate, evaluate, notify, status and
// finalize. At most one step runs at a time; durable state is written before
// the phase advances.
type Controller struct {
	store        service.Store
	backend      Backend
	identity     service.IdentityProvider
	onTransition TransitionFunc
	now          func() time.Time
	log          *EventLog

	busy atomic.Bool

	mu           sync.RWMutex
	draft        *model.ClaimDraft
	record       *model.ClaimRecord
	validation   *model.ValidationResult
	failure      *Failure
	finalized    *finalizedClaim
	phase        Phase
	status       model.ClaimStatus
	notification model.NotificationState
}

// New creates a controller in the Idle phase. Call Load to resume persisted state.
func New(store service.Store, b Backend, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		store:        store,
		backend:      b,
		identity:     opts.Identity,
		onTransition: opts.OnTransition,
		now:          now,
		log:          newEventLog(now, logger.With("component", "workflow")),
		phase:        PhaseIdle,
		status:       model.StatusUnknown,
	}
}

// Open creates a controller and resumes it from the store.
func Open(ctx context.Context, store service.Store, b Backend, opts Options) (*Controller, error) {
	c := New(store, b, opts)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reconstructs the workflow position from durable state without
// contacting the backend.
func (c *Controller) Load(ctx context.Context) error {
	if !c.acquire() {
		return ErrBusy
	}
	defer c.release()

	var (
		draft        model.ClaimDraft
		record       model.ClaimRecord
		notification model.NotificationState
		status       model.ClaimStatus
	)

	hasDraft, err := loadJSON(ctx, c.store, KeyDraft, &draft)
	if err != nil {
		return err
	}
	hasRecord, err := loadJSON(ctx, c.store, KeyClaimRecord, &record)
	if err != nil {
		return err
	}
	if _, err := loadJSON(ctx, c.store, KeyNotification, &notification); err != nil {
		return err
	}
	hasStatus, err := loadJSON(ctx, c.store, KeyClaimStatus, &status)
	if err != nil {
		return err
	}
	var finalized finalizedClaim
	hasFinalized, err := loadJSON(ctx, c.store, KeyFinalized, &finalized)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.draft, c.record = nil, nil
	if hasDraft {
		c.draft = &draft
	}
	if hasRecord {
		c.record = &record
	}
	c.notification = notification
	c.status = model.StatusUnknown
	if hasStatus && hasRecord {
		c.status = status
	}
	c.validation = nil
	c.failure = nil
	c.finalized = nil
	if hasFinalized && hasRecord && finalized.ClaimID == record.ClaimID {
		c.finalized = &finalized
	}
	to := derivePhase(c.record, c.notification, c.status)
	c.mu.Unlock()

	c.transition(to)

	if hasRecord {
		c.log.Append(model.LogInfo, "Resumed claim "+record.ClaimID,
			fmt.Sprintf("phase %s, status %s", to, c.Status()))
	}
	return nil
}

// Submit starts or resumes the linear chain for draft: validate, evaluate,
// then notify. Steps already completed for the current claim are not repeated.
func (c *Controller) Submit(ctx context.Context, draft model.ClaimDraft) error {
	if !c.acquire() {
		c.log.Append(model.LogError, "Submission refused", ErrBusy.Error())
		return ErrBusy
	}
	defer c.release()

	if draft.UserID == "" && c.identity != nil {
		id, err := c.identity.UserID(ctx)
		switch {
		case err == nil:
			draft.UserID = id
		case !errors.Is(err, common.ErrNotLoggedIn):
			c.log.Append(model.LogError, "Could not resolve user id", err.Error())
			return fmt.Errorf("failed to resolve user id: %w", err)
		}
	}

	if err := checkDraft(draft); err != nil {
		c.log.Append(model.LogError, "Submission blocked", err.Error())
		return err
	}

	if err := saveJSON(ctx, c.store, KeyDraft, draft); err != nil {
		c.log.Append(model.LogError, "Could not save draft", err.Error())
		return err
	}
	c.mu.Lock()
	c.draft = &draft
	record := c.record
	c.mu.Unlock()

	if record != nil {
		c.log.Append(model.LogInfo, "Claim "+record.ClaimID+" already evaluated",
			"skipping validation and evaluation")
	} else {
		if err := c.validate(ctx, draft); err != nil {
			return err
		}
		if err := c.evaluate(ctx, draft); err != nil {
			return err
		}
	}

	return c.notify(ctx, draft.HospitalEmail)
}

// Notify sends the hospital notification for the current claim. An empty
// email falls back to the draft's hospital email.
func (c *Controller) Notify(ctx context.Context, hospitalEmail string) error {
	if !c.acquire() {
		c.log.Append(model.LogError, "Notification refused", ErrBusy.Error())
		return ErrBusy
	}
	defer c.release()

	c.mu.RLock()
	draft := c.draft
	c.mu.RUnlock()

	if hospitalEmail == "" && draft != nil {
		hospitalEmail = draft.HospitalEmail
	}
	if hospitalEmail != "" && draft != nil && draft.HospitalEmail != hospitalEmail {
		updated := *draft
		updated.HospitalEmail = hospitalEmail
		if err := saveJSON(ctx, c.store, KeyDraft, updated); err != nil {
			c.log.Append(model.LogError, "Could not save draft", err.Error())
			return err
		}
		c.mu.Lock()
		c.draft = &updated
		c.mu.Unlock()
	}

	return c.notify(ctx, hospitalEmail)
}

// PollStatus fetches the backend's decision for the current claim. A failed
// poll keeps the previously persisted status.
func (c *Controller) PollStatus(ctx context.Context) (model.ClaimStatus, error) {
	if !c.acquire() {
		c.log.Append(model.LogError, "Status check refused", ErrBusy.Error())
		return c.Status(), ErrBusy
	}
	defer c.release()

	c.mu.RLock()
	record := c.record
	previous := c.status
	c.mu.RUnlock()

	if record == nil {
		c.log.Append(model.LogError, "Status check unavailable", ErrNoClaimRecord.Error())
		return previous, ErrNoClaimRecord
	}

	status, err := c.backend.ClaimStatus(ctx, record.ClaimID)
	if err != nil {
		terr := &TransportError{Step: StepStatus, Err: err}
		c.log.Append(model.LogError, "Status check failed", terr.Error())
		return previous, terr
	}

	if err := saveJSON(ctx, c.store, KeyClaimStatus, status); err != nil {
		c.log.Append(model.LogError, "Could not save claim status", err.Error())
		return previous, err
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.transition(PhasePollingStatus)
	c.log.Append(model.LogSuccess, "Claim status: "+string(status), "claim "+record.ClaimID)
	return status, nil
}

// Finalize claims the insurance payout for an approved claim and then clears
// all durable claim state in one atomic delete.
func (c *Controller) Finalize(ctx context.Context) (*model.FinalizeReceipt, error) {
	if !c.acquire() {
		c.log.Append(model.LogError, "Finalize refused", ErrBusy.Error())
		return nil, ErrBusy
	}
	defer c.release()

	c.mu.RLock()
	record := c.record
	status := c.status
	finalized := c.finalized
	c.mu.RUnlock()

	if record != nil && finalized != nil && finalized.ClaimID == record.ClaimID {
		c.log.Append(model.LogInfo, "Insurance already claimed for "+record.ClaimID,
			"clearing local claim state")
		receipt := finalized.Receipt
		return c.completeFinalize(ctx, record, &receipt)
	}

	if record == nil || status != model.StatusApproved {
		c.log.Append(model.LogError, "Finalize unavailable",
			fmt.Sprintf("%s (status %s)", ErrFinalizeNotAllowed, status))
		return nil, ErrFinalizeNotAllowed
	}

	receipt, err := c.backend.ClaimInsurance(ctx, record.ClaimID)
	if err != nil {
		ferr := &FinalizeError{Err: err}
		c.log.Append(model.LogError, "Insurance claim failed", ferr.Error())
		return nil, ferr
	}

	marker := finalizedClaim{ClaimID: record.ClaimID, Receipt: *receipt}
	c.mu.Lock()
	c.finalized = &marker
	c.mu.Unlock()
	if err := saveJSON(ctx, c.store, KeyFinalized, marker); err != nil {
		c.log.Append(model.LogError, "Could not record the payout", err.Error())
	}

	return c.completeFinalize(ctx, record, receipt)
}

// completeFinalize clears durable and in-memory claim state after a payout.
func (c *Controller) completeFinalize(ctx context.Context, record *model.ClaimRecord, receipt *model.FinalizeReceipt) (*model.FinalizeReceipt, error) {
	if err := c.store.DeleteAll(ctx, stateKeys...); err != nil {
		c.log.Append(model.LogError, "Insurance claimed but local state was not cleared", err.Error())
		return receipt, fmt.Errorf("failed to clear claim state: %w", err)
	}

	c.transition(PhaseFinalized)
	c.log.Append(model.LogSuccess, "Insurance claimed for "+record.ClaimID, receipt.TransactionHash)

	c.clearMemory()
	c.transition(PhaseIdle)
	return receipt, nil
}

// Reset discards the draft and every persisted claim fact without
// contacting the backend.
func (c *Controller) Reset(ctx context.Context) error {
	if !c.acquire() {
		c.log.Append(model.LogError, "Reset refused", ErrBusy.Error())
		return ErrBusy
	}
	defer c.release()

	if err := c.store.DeleteAll(ctx, stateKeys...); err != nil {
		c.log.Append(model.LogError, "Reset failed", err.Error())
		return fmt.Errorf("failed to clear claim state: %w", err)
	}

	c.clearMemory()
	c.transition(PhaseIdle)
	c.log.Append(model.LogInfo, "Claim state reset", "")
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Phase:        c.phase,
		Status:       c.status,
		Notification: c.notification,
		Busy:         c.busy.Load(),
		CanFinalize:  c.record != nil && c.status == model.StatusApproved,
	}
	if c.draft != nil {
		d := *c.draft
		snap.Draft = &d
	}
	if c.record != nil {
		r := *c.record
		snap.Record = &r
	}
	if c.validation != nil {
		v := *c.validation
		snap.Validation = &v
	}
	if c.failure != nil {
		f := *c.failure
		snap.Failure = &f
	}
	return snap
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Status returns the last status received from the backend.
func (c *Controller) Status() model.ClaimStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Record returns a copy of the current claim record, or nil.
func (c *Controller) Record() *model.ClaimRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.record == nil {
		return nil
	}
	r := *c.record
	return &r
}

// CanFinalize reports whether Finalize would be attempted.
func (c *Controller) CanFinalize() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record != nil && c.status == model.StatusApproved
}

// Log returns the workflow event log.
func (c *Controller) Log() *EventLog {
	return c.log
}

func (c *Controller) validate(ctx context.Context, draft model.ClaimDraft) error {
	c.transition(PhaseValidating)
	c.log.Append(model.LogInfo, "Validating discharge summary", draft.DischargeFile.Path)

	result, err := c.backend.ValidateDischarge(ctx, draft.DischargeFile)
	if err != nil {
		return c.fail(StepValidation, &TransportError{Step: StepValidation, Err: err})
	}

	c.mu.Lock()
	c.validation = result
	c.mu.Unlock()

	if !result.IsValid {
		return c.fail(StepValidation, &ValidationRejectedError{Reason: result.Reason})
	}

	c.transition(PhaseValidated)
	c.log.Append(model.LogSuccess, "Discharge summary validated", result.Reason)
	return nil
}

func (c *Controller) evaluate(ctx context.Context, draft model.ClaimDraft) error {
	c.transition(PhaseEvaluating)
	c.log.Append(model.LogInfo, "Evaluating claim", "")

	record, err := c.backend.EvaluateClaim(ctx, backend.EvaluateRequest{
		UserID:    draft.UserID,
		Discharge: draft.DischargeFile,
		Bill:      draft.BillFile,
		Policy:    draft.PolicyFile,
	})
	if err != nil {
		return c.fail(StepEvaluation, &TransportError{Step: StepEvaluation, Err: err})
	}

	if err := saveJSON(ctx, c.store, KeyClaimRecord, record); err != nil {
		return c.fail(StepEvaluation, err)
	}

	c.mu.Lock()
	c.record = record
	c.status = model.StatusUnknown
	c.mu.Unlock()

	c.transition(PhaseEvaluated)
	c.log.Append(model.LogSuccess, "Claim "+record.ClaimID+" evaluated",
		fmt.Sprintf("claimable amount %.2f: %s", record.ClaimableAmount, record.Reasoning))
	return nil
}

// notify must be called with the busy flag held.
func (c *Controller) notify(ctx context.Context, hospitalEmail string) error {
	c.mu.RLock()
	record := c.record
	notification := c.notification
	status := c.status
	c.mu.RUnlock()

	if record == nil {
		c.log.Append(model.LogError, "Notification unavailable", ErrNoClaimRecord.Error())
		return ErrNoClaimRecord
	}

	if notification.SentFor(record.ClaimID) {
		c.transition(derivePhase(record, notification, status))
		c.log.Append(model.LogInfo, "Hospital already notified for claim "+record.ClaimID, "")
		return nil
	}

	if hospitalEmail == "" {
		return c.fail(StepMissingEmail, ErrMissingEmail)
	}

	c.transition(PhaseNotifying)
	c.log.Append(model.LogInfo, "Notifying hospital", hospitalEmail)

	if err := c.backend.NotifyHospital(ctx, record.ClaimID, hospitalEmail); err != nil {
		return c.fail(StepNotify, &TransportError{Step: StepNotify, Err: err})
	}

	sent := model.NotificationState{
		ClaimID: record.ClaimID,
		Sent:    true,
		SentAt:  c.now(),
	}
	if err := saveJSON(ctx, c.store, KeyNotification, sent); err != nil {
		return c.fail(StepNotify, err)
	}

	c.mu.Lock()
	c.notification = sent
	c.mu.Unlock()

	c.transition(PhaseNotified)
	c.log.Append(model.LogSuccess, "Hospital notified", hospitalEmail)
	return nil
}

// fail moves to the Failed phase and logs err. It returns err for chaining.
func (c *Controller) fail(step string, err error) error {
	reason := err.Error()
	var rejected *ValidationRejectedError
	var transport *TransportError
	switch {
	case errors.As(err, &rejected):
		reason = rejected.Reason
	case errors.As(err, &transport):
		reason = transport.Err.Error()
	}

	c.mu.Lock()
	c.failure = &Failure{Step: step, Reason: reason}
	c.mu.Unlock()

	c.transition(PhaseFailed)
	c.log.Append(model.LogError, "Step "+step+" failed", reason)
	return err
}

func (c *Controller) transition(to Phase) {
	c.mu.Lock()
	from := c.phase
	c.phase = to
	if to != PhaseFailed {
		c.failure = nil
	}
	c.mu.Unlock()

	if c.onTransition != nil && from != to {
		c.onTransition(from, to)
	}
}

func (c *Controller) clearMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = nil
	c.record = nil
	c.validation = nil
	c.failure = nil
	c.finalized = nil
	c.notification = model.NotificationState{}
	c.status = model.StatusUnknown
}

func (c *Controller) acquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

func (c *Controller) release() {
	c.busy.Store(false)
}

// checkDraft enforces submission preconditions before any network call.
func checkDraft(draft model.ClaimDraft) error {
	if draft.UserID == "" {
		return &MissingInputError{Field: "user_id", Reason: "no user id, log in first"}
	}
	if !draft.DischargeFile.IsPresent() {
		return &MissingInputError{Field: "discharge_file", Reason: documentReason(draft.DischargeFile)}
	}
	if !draft.BillFile.IsPresent() {
		return &MissingInputError{Field: "bill_file", Reason: documentReason(draft.BillFile)}
	}
	if draft.PolicyFile != nil && !draft.PolicyFile.IsPresent() {
		return &MissingInputError{Field: "policy_file", Reason: documentReason(*draft.PolicyFile)}
	}
	return nil
}

func documentReason(doc model.Document) string {
	if doc.Path == "" {
		return "no file selected"
	}
	return fmt.Sprintf("%s is not a readable, non-empty file", doc.Path)
}
