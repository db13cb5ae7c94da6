package main

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

var (
	flagConfig  string
	flagNoColor bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "jobsched",
		Short:        "In-process job scheduler",
		Long:         "jobsched runs the jobs declared in a YAML or JSON config and reloads them when the file changes.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagNoColor {
				pterm.DisableStyling()
			}
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", defaultConfigPath, "path to config (yaml or json)")
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newHistoryCmd(),
	)
	return root
}

func renderTable(w io.Writer, rows pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
