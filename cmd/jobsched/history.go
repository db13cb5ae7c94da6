package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobsched/internal/config"
	"jobsched/internal/history"
	logx "jobsched/pkg/logx"
)

func newHistoryCmd() *cobra.Command {
	var (
		key   string
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded run outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(flagConfig).Load()
			if err != nil {
				return err
			}
			if cfg.History == nil {
				return errors.New("history is not configured")
			}
			st, err := history.Open(history.Config{
				Driver:      cfg.History.Driver,
				Path:        cfg.History.Path,
				BusyTimeout: cfg.History.BusyTimeoutDuration(),
			}, logx.Nop())
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("history is disabled")
			}
			defer st.Close()

			q := history.Query{Key: key, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			entries, err := st.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "only show runs of this job key (category/type/id)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().DurationVar(&since, "since", 0, "only show runs newer than this age (e.g. 1h)")
	return cmd
}

func printEntries(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	rows := pterm.TableData{{"AT", "KEY", "OUTCOME", "DURATION", "DETAIL"}}
	for _, e := range entries {
		detail := e.Error
		if detail == "" {
			detail = e.Reason
		}
		rows = append(rows, []string{
			e.At.Local().Format(time.RFC3339),
			e.Key,
			outcomeText(e.Outcome),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			detail,
		})
	}
	return renderTable(w, rows)
}

func outcomeText(o history.Outcome) string {
	switch o {
	case history.Succeeded:
		return pterm.Green(string(o))
	case history.Failed:
		return pterm.Red(string(o))
	default:
		return pterm.Yellow(string(o))
	}
}
