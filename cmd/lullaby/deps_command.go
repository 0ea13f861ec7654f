package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucianfialho/urban-lullaby/internal/deps"
	"github.com/lucianfialho/urban-lullaby/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, encoders and the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newStatusPrinter(cmd.OutOrStdout())

			statuses := preflight.CheckSystemDeps(cfg)
			if len(deps.MissingRequired(statuses)) == 0 {
				statuses = append(statuses, deps.CheckFFmpegEncoders(cmd.Context(), cfg.FFmpegBinary(), deps.RequiredEncoders)...)
			}
			p.section("Dependencies")
			for _, s := range statuses {
				switch {
				case s.Available:
					p.line(s.Name, statusOK, s.Command)
				case s.Optional:
					p.line(s.Name, statusWarn, s.Detail)
				default:
					p.line(s.Name, statusError, s.Detail)
				}
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.CheckCatalogue(cmd.Context(), cfg.Catalogue.BaseURL, cfg.Catalogue.UserAgent))
			p.section("Environment")
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				p.line(r.Name, kind, r.Detail)
			}

			if len(deps.MissingRequired(statuses)) > 0 || len(preflight.Failures(results)) > 0 {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
