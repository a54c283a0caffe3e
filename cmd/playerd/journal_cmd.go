// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/playerd/internal/config"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/persistence/sqlite"
	"github.com/ManuGH/playerd/internal/version"
)

var errJournalCorrupt = errors.New("journal integrity check failed")

func newJournalCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the worker journal",
	}

	journalPath := func() (string, error) {
		cfg, err := config.NewLoader(*configPath, version.Version).Load()
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(cfg.Engine.JournalPath); err != nil {
			return "", fmt.Errorf("journal %s: %w", cfg.Engine.JournalPath, err)
		}
		return cfg.Engine.JournalPath, nil
	}

	var full bool
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Run an SQLite integrity check on the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := journalPath()
			if err != nil {
				return err
			}
			mode := "quick"
			if full {
				mode = "full"
			}
			problems, err := sqlite.VerifyIntegrity(path, mode)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errJournalCorrupt
			}
			fmt.Fprintf(cmd.OutOrStdout(), "journal ok (%s): %s\n", mode, path)
			return nil
		},
	}
	verify.Flags().BoolVar(&full, "full", false, "run a full integrity_check instead of quick_check")

	list := &cobra.Command{
		Use:   "list",
		Short: "List workers recorded as running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := journalPath()
			if err != nil {
				return err
			}
			j, err := engine.OpenJournal(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer j.Close()
			entries, err := j.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PID\tMEDIA TYPE\tSESSION\tSTARTED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.PID, e.MediaType, e.SessionKey, e.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(verify, list)
	return cmd
}
