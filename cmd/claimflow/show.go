package main

import (
	"encoding/json"
	"fmt"

	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/spf13/cobra"
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the saved claim state",
		Long:  `Show prints where the current claim stands without contacting the backend.`,
		RunE:  runShow,
	}

	cmd.Flags().Bool("json", false, "print the state as JSON")

	return cmd
}

func runShow(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	s, cleanup, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	snap := s.controller.Snapshot()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		return nil
	}

	writeLine(out, cli.FormatTitle("Claim state"))
	writeLine(out, cli.RenderSnapshot(snap))
	return nil
}
