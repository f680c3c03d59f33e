package main

import (
	"errors"

	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/workflow"
	"github.com/spf13/cobra"
)

// draftFlags are the document and contact flags shared by submit.
type draftFlags struct {
	UserID        string
	Discharge     string
	Bill          string
	Policy        string
	HospitalEmail string
}

// mergeDraft overlays the flags on a previously saved draft. Flags win.
func mergeDraft(flags draftFlags, saved *model.ClaimDraft) model.ClaimDraft {
	var draft model.ClaimDraft
	if saved != nil {
		draft = *saved
		if saved.PolicyFile != nil {
			policy := *saved.PolicyFile
			draft.PolicyFile = &policy
		}
	}

	if flags.UserID != "" {
		draft.UserID = flags.UserID
	}
	if flags.Discharge != "" {
		draft.DischargeFile = model.NewDocument(flags.Discharge)
	}
	if flags.Bill != "" {
		draft.BillFile = model.NewDocument(flags.Bill)
	}
	if flags.Policy != "" {
		policy := model.NewDocument(flags.Policy)
		draft.PolicyFile = &policy
	}
	if flags.HospitalEmail != "" {
		draft.HospitalEmail = flags.HospitalEmail
	}
	return draft
}

func submitCmd() *cobra.Command {
	var flags draftFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate, evaluate and send a claim",
		Long: `Submit runs the claim chain: the discharge summary is validated, the
claim is evaluated and the hospital is notified.

Rerunning submit resumes where the last run stopped. Steps already completed
for the current claim are never repeated, and omitted flags fall back to the
saved draft.`,
		Example: `  claimflow submit --discharge discharge.pdf --bill bill.pdf --hospital-email billing@hospital.org
  claimflow submit   # resume the saved draft`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Discharge, "discharge", "", "discharge summary document")
	cmd.Flags().StringVar(&flags.Bill, "bill", "", "hospital bill document")
	cmd.Flags().StringVar(&flags.Policy, "policy", "", "insurance policy document (optional)")
	cmd.Flags().StringVar(&flags.HospitalEmail, "hospital-email", "", "hospital email to notify")
	cmd.Flags().StringVar(&flags.UserID, "user-id", "", "submit as this user instead of the logged in one")

	return cmd
}

func runSubmit(cmd *cobra.Command, flags draftFlags) error {
	out := cmd.OutOrStdout()
	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := handler.HandleInterrupts(cmd.Context(), "claimflow submit")
	defer handler.Stop()

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	draft := mergeDraft(flags, s.controller.Snapshot().Draft)

	err = s.step(out, "Submitting claim", func() error {
		return s.controller.Submit(ctx, draft)
	})
	if errors.Is(err, workflow.ErrMissingEmail) {
		writeLine(out, cli.FormatWarning("Claim evaluated. Run 'claimflow notify --hospital-email <address>' to continue"))
	}
	if err != nil {
		return err
	}

	writeLine(out, cli.RenderSnapshot(s.controller.Snapshot()))
	writeLine(out, cli.FormatInfo("Run 'claimflow status --watch' to follow the decision"))
	return nil
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notify the hospital about the evaluated claim",
		Long: `Notify sends the hospital email for the current claim. The hospital is
contacted at most once per claim; repeating the command is harmless.`,
		RunE: runNotify,
	}

	cmd.Flags().String("hospital-email", "", "hospital email (default: the saved draft's)")

	return cmd
}

func runNotify(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("hospital-email")
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return s.step(out, "Notifying hospital", func() error {
		return s.controller.Notify(ctx, email)
	})
}
