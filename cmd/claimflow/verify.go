package main

import (
	"errors"
	"os"

	"github.com/Veraticus/claimflow/internal/backend"
	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Upload the hospital's copies of the claim documents",
		Long: `Verify is the hospital side of the notification step. The hospital uploads
its own discharge summary and bill for a claim, and the backend checks them
against what the patient submitted.

Without --claim-id the current claim in this namespace is used.`,
		Example: `  claimflow verify --claim-id c1 --discharge discharge.pdf --bill bill.pdf`,
		RunE:    runVerify,
	}

	cmd.Flags().String("claim-id", "", "claim to verify (default: the current claim)")
	cmd.Flags().String("discharge", "", "hospital discharge summary")
	cmd.Flags().String("bill", "", "hospital bill")

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	claimID, _ := cmd.Flags().GetString("claim-id")
	dischargePath, _ := cmd.Flags().GetString("discharge")
	billPath, _ := cmd.Flags().GetString("bill")
	out := cmd.OutOrStdout()

	discharge := model.NewDocument(dischargePath)
	bill := model.NewDocument(billPath)
	if !discharge.IsPresent() || !bill.IsPresent() {
		return common.NewUserError("provide readable --discharge and --bill files", common.ErrMissingConfig)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if claimID == "" {
		s, cleanup, err := openSession(ctx)
		if err != nil {
			return err
		}
		record := s.controller.Record()
		cleanup()
		if record == nil {
			return common.NewUserError("no current claim, pass --claim-id", common.ErrMissingConfig)
		}
		claimID = record.ClaimID
	}

	client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	if err != nil {
		return err
	}

	spinner := cli.StartSpinner(os.Stderr, "Verifying hospital documents", isatty.IsTerminal(os.Stderr.Fd()))
	message, err := client.VerifyHospitalUpload(ctx, claimID, discharge, bill)
	spinner.Stop()

	if errors.Is(err, backend.ErrNotVerified) {
		writeLine(out, cli.FormatError(err.Error()))
		return common.NewUserError("verification failed for claim "+claimID, err)
	}
	if err != nil {
		return err
	}

	common.LogInfo("Hospital documents verified", common.Fields{"claim_id": claimID})
	writeLine(out, cli.FormatSuccess(message))
	return nil
}
