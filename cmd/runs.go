package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/infra-healer/internal/store"
)

// RunLister reads the audit trail.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent triage runs from the audit database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.cfg.Database().URL == "" {
				return errors.New("database.url is not configured")
			}
			pool, st, err := openStore(ctx, opts.cfg.Database(), opts.logger)
			if pool != nil {
				defer pool.Close()
			}
			if err != nil {
				return err
			}
			return runRuns(ctx, cmd.OutOrStdout(), st, limit, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// runRuns is the testable body of the runs command.
func runRuns(ctx context.Context, w io.Writer, lister RunLister, limit int, asJSON bool) error {
	runs, err := lister.RecentRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tBUILD\tPROJECT\tCATEGORY\tCONFIDENCE\tACTION\tDETAILS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.2f\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.BuildID, r.ProjectName, r.Category, r.Confidence, r.Action, r.Details)
	}
	return tw.Flush()
}
