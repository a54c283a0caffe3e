// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/playerd/internal/config"
	"github.com/ManuGH/playerd/internal/version"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.NewLoader(*configPath, version.Version).Load(); err != nil {
				return err
			}
			src := *configPath
			if src == "" {
				src = "(defaults + environment)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s\n", src)
			return nil
		},
	}

	var format string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader(*configPath, version.Version).Load()
			if err != nil {
				return err
			}
			if cfg.Redis.Password != "" {
				cfg.Redis.Password = "***"
			}
			var out []byte
			switch format {
			case "yaml":
				out, err = yaml.Marshal(cfg)
			case "json":
				out, err = json.MarshalIndent(cfg, "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	dump.Flags().StringVar(&format, "format", "yaml", "output format (yaml|json)")

	cmd.AddCommand(validate, dump)
	return cmd
}
