package workflow

import (
	"github.com/Veraticus/claimflow/internal/model"
)

// Phase is the controller's position in the submission state machine.
type Phase string

// Workflow phases, in the order a successful claim passes through them.
const (
	PhaseIdle          Phase = "idle"
	PhaseValidating    Phase = "validating"
	PhaseValidated     Phase = "validated"
	PhaseEvaluating    Phase = "evaluating"
	PhaseEvaluated     Phase = "evaluated"
	PhaseNotifying     Phase = "notifying"
	PhaseNotified      Phase = "notified"
	PhasePollingStatus Phase = "polling_status"
	PhaseFinalized     Phase = "finalized"
	PhaseFailed        Phase = "failed"
)

// Step names reported in a Failure.
const (
	StepValidation   = "validation"
	StepEvaluation   = "evaluation"
	StepMissingEmail = "missing-email"
	StepNotify       = "notify"
	StepStatus       = "status"
)

// IsInFlight reports whether the phase only exists while a network call is pending.
func (p Phase) IsInFlight() bool {
	switch p {
	case PhaseValidating, PhaseEvaluating, PhaseNotifying:
		return true
	default:
		return false
	}
}

// Failure describes why the workflow stopped.
type Failure struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Snapshot is a consistent, copied view of the controller state.
type Snapshot struct {
	Draft        *model.ClaimDraft       `json:"draft,omitempty"`
	Record       *model.ClaimRecord      `json:"record,omitempty"`
	Validation   *model.ValidationResult `json:"validation,omitempty"`
	Failure      *Failure                `json:"failure,omitempty"`
	Phase        Phase                   `json:"phase"`
	Status       model.ClaimStatus       `json:"status"`
	Notification model.NotificationState `json:"notification"`
	Busy         bool                    `json:"busy"`
	CanFinalize  bool                    `json:"can_finalize"`
}

// derivePhase reconstructs the resting phase from durable facts alone.
func derivePhase(record *model.ClaimRecord, notification model.NotificationState, status model.ClaimStatus) Phase {
	switch {
	case record == nil:
		return PhaseIdle
	case status != model.StatusUnknown && status != "":
		return PhasePollingStatus
	case notification.SentFor(record.ClaimID):
		return PhaseNotified
	default:
		return PhaseEvaluated
	}
}
