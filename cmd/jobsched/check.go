package main

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobsched/internal/config"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and list declared jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(flagConfig).Load()
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), cfg)
		},
	}
}

func printJobs(w io.Writer, cfg *config.Config) error {
	rows := pterm.TableData{{"KEY", "SCHEDULE", "STATE", "DESCRIPTION"}}
	for _, j := range cfg.Jobs {
		sch, err := j.ParsedSchedule()
		if err != nil {
			return err
		}
		state := "enabled"
		if j.Disabled {
			state = "disabled"
		}
		rows = append(rows, []string{j.Key(), sch.String(), state, j.Description})
	}
	if len(rows) > 1 {
		if err := renderTable(w, rows); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "config ok: %d job(s)\n", len(cfg.Jobs))
	return err
}
