package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the current claim",
		Long: `Reset deletes the saved draft, evaluation, notification and status for the
current claim without contacting the backend. The stored login is kept.`,
		RunE: runReset,
	}

	cmd.Flags().BoolP("force", "f", false, "Skip confirmation prompt")

	return cmd
}

func runReset(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	snap := s.controller.Snapshot()
	if snap.Draft == nil && snap.Record == nil {
		writeLine(out, cli.FormatInfo("No claim in progress. Nothing to reset."))
		return nil
	}

	if !force {
		what := "the saved draft"
		if snap.Record != nil {
			what = "claim " + snap.Record.ClaimID
		}
		if !confirm(cmd.InOrStdin(), out, fmt.Sprintf("This will discard %s.", what)) {
			writeLine(out, cli.FormatInfo("Reset canceled"))
			return nil
		}
	}

	return s.step(out, "Resetting", func() error {
		return s.controller.Reset(ctx)
	})
}

// confirm asks a yes/no question and defaults to no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	writeLine(out, cli.FormatWarning(question))
	if _, err := fmt.Fprint(out, "Are you sure you want to continue? [y/N]: "); err != nil {
		return false
	}

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
