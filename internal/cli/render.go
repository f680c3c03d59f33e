package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/workflow"
)

const timeLayout = "15:04:05"

// FormatLogEntry renders one workflow log entry on a single line.
func FormatLogEntry(entry model.LogEntry) string {
	stamp := SubtleStyle.Render(entry.Timestamp.Format(timeLayout))

	var msg string
	switch entry.Kind {
	case model.LogSuccess:
		msg = FormatSuccess(entry.Message)
	case model.LogError:
		msg = FormatError(entry.Message)
	default:
		msg = FormatInfo(entry.Message)
	}

	if entry.Detail != "" {
		msg += " " + SubtleStyle.Render(entry.Detail)
	}
	return stamp + " " + msg
}

// FormatLog renders entries oldest first.
func FormatLog(entries []model.LogEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, FormatLogEntry(e))
	}
	return strings.Join(lines, "\n")
}

// RenderSnapshot renders the workflow position as a boxed summary.
func RenderSnapshot(snap workflow.Snapshot) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(LabelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	phase := BoldStyle.Render(string(snap.Phase))
	if snap.Busy || snap.Phase.IsInFlight() {
		phase += " " + SubtleStyle.Render("(in progress)")
	}
	row("Phase", phase)

	if snap.Draft != nil {
		row("User", snap.Draft.UserID)
		row("Discharge", snap.Draft.DischargeFile.Path)
		row("Bill", snap.Draft.BillFile.Path)
		if snap.Draft.PolicyFile != nil {
			row("Policy", snap.Draft.PolicyFile.Path)
		}
		if snap.Draft.HospitalEmail != "" {
			row("Hospital", snap.Draft.HospitalEmail)
		}
	}

	if snap.Record != nil {
		row("Claim", snap.Record.ClaimID)
		row("Claimable", fmt.Sprintf("%.2f", snap.Record.ClaimableAmount))
		if snap.Record.Reasoning != "" {
			row("Reasoning", snap.Record.Reasoning)
		}
		notified := "no"
		if snap.Notification.SentFor(snap.Record.ClaimID) {
			notified = "yes"
		}
		row("Notified", notified)
		row("Status", formatStatus(snap.Status))
	}

	if snap.Failure != nil {
		row("Failed step", ErrorStyle.Render(snap.Failure.Step+": "+snap.Failure.Reason))
	}

	if snap.CanFinalize {
		b.WriteString("\n" + FormatSuccess("Approved, run 'claimflow finalize' to claim"))
	}

	return RenderBox("Claim", strings.TrimRight(b.String(), "\n"))
}

func formatStatus(status model.ClaimStatus) string {
	switch status {
	case model.StatusApproved:
		return SuccessStyle.Render(status.String())
	case model.StatusRejected:
		return ErrorStyle.Render(status.String())
	case model.StatusPending:
		return WarningStyle.Render(status.String())
	default:
		return SubtleStyle.Render(status.String())
	}
}
