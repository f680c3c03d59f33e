package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/service"
	"github.com/Veraticus/claimflow/internal/workflow"
	"github.com/spf13/cobra"
)

var errUndecided = errors.New("claim not decided yet")

func statusCmd() *cobra.Command {
	defaults := common.DefaultRetryOptions()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the insurer's decision",
		Long: `Status asks the backend for the current claim's decision and saves it.

With --watch the check repeats with backoff until the claim is approved or
rejected, or the attempt budget is spent. A failed check other than a timeout
stops the watch; the previously saved status is kept.`,
		RunE: runStatus,
	}

	cmd.Flags().Bool("watch", false, "keep checking until the claim is decided")
	cmd.Flags().Duration("interval", defaults.InitialDelay, "initial delay between checks")
	cmd.Flags().Duration("max-interval", defaults.MaxDelay, "maximum delay between checks")
	cmd.Flags().Int("attempts", defaults.MaxAttempts, "maximum number of checks when watching")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	maxInterval, _ := cmd.Flags().GetDuration("max-interval")
	attempts, _ := cmd.Flags().GetInt("attempts")
	out := cmd.OutOrStdout()

	ctx := cmd.Context()
	if watch {
		handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
		ctx = handler.HandleInterrupts(ctx, "claimflow status --watch")
		defer handler.Stop()
	}

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !watch {
		return s.step(out, "Checking claim status", func() error {
			_, err := s.controller.PollStatus(ctx)
			return err
		})
	}

	opts := service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: interval,
		MaxDelay:     maxInterval,
		Multiplier:   common.DefaultRetryOptions().Multiplier,
	}

	status, err := watchStatus(ctx, s.controller, opts, out)
	if errors.Is(err, common.ErrMaxAttempts) {
		writeLine(out, cli.FormatWarning(fmt.Sprintf("Still %s after %d checks, try again later", status, attempts)))
		return nil
	}
	if err != nil {
		return err
	}

	if s.controller.CanFinalize() {
		writeLine(out, cli.FormatSuccess("Claim approved. Run 'claimflow finalize' to claim the payout"))
	}
	return nil
}

// watchStatus polls until the status is decided. Each poll is an independent
// check. Timeouts are checked again; any other failure ends the watch.
func watchStatus(ctx context.Context, c *workflow.Controller, opts service.RetryOptions, w io.Writer) (model.ClaimStatus, error) {
	status := c.Status()

	err := common.WithRetry(ctx, func(attempt int) error {
		mark := c.Log().Len()
		polled, err := c.PollStatus(ctx)
		printEntries(w, c, mark)
		if err != nil {
			return err
		}

		status = polled
		if !status.IsDecided() {
			return common.Again(fmt.Errorf("%w: %s on check %d", errUndecided, status, attempt))
		}
		return nil
	}, opts)

	return status, err
}

func finalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Claim the payout for an approved claim",
		Long: `Finalize claims the insurance payout once the claim is approved. On success
all saved claim state is cleared and a new claim can be started.`,
		RunE: runFinalize,
	}
}

func runFinalize(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var receipt *model.FinalizeReceipt
	err = s.step(out, "Claiming insurance", func() error {
		var ferr error
		receipt, ferr = s.controller.Finalize(ctx)
		return ferr
	})
	if err != nil {
		return err
	}

	content := receipt.Message
	if receipt.TransactionHash != "" {
		content += "\n" + cli.SubtleStyle.Render("transaction "+receipt.TransactionHash)
	}
	writeLine(out, cli.RenderBox("Insurance claimed", content))
	return nil
}
