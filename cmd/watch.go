package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/internal/healer"
	"github.com/xkilldash9x/infra-healer/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		logPath   string
		fromStart bool
		poll      bool
		quiet     time.Duration
		explain   bool
		offline   bool
		flags     reportFlags
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a build agent log and classify failures as they appear",
		Long: `Tail a local build agent log. Each failure found in the log is classified
and printed as one JSON document per line. Nothing is written to any external
system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger

			path, err := expandPath(logPath)
			if err != nil {
				return err
			}

			mode := modeLocal
			if offline {
				mode = modeDetectorsOnly
			}
			comps, err := initializeComponents(ctx, opts.cfg, logger, mode)
			if comps != nil {
				defer comps.Shutdown(logger)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			segments := make(chan watch.Segment, 8)
			w, err := watch.NewWatcher(logger, path, segments, watch.Options{
				Quiet:     quiet,
				FromStart: fromStart,
				Poll:      poll,
			})
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			return runWatch(ctx, cmd.OutOrStdout(), logger, segments, w.Done(), comps.Classifier, comps.Generator, comps.Selector, flags, explain)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "path to the build agent log to follow")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read the existing log content before following")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll for changes instead of using inotify")
	cmd.Flags().DurationVar(&quiet, "quiet", 500*time.Millisecond, "silence after which a failure is considered complete")
	cmd.Flags().BoolVar(&explain, "explain", false, "include the human-readable root cause summary")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the text-completion service and use detectors only")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

// runWatch classifies segments until ctx is cancelled or the watcher stops.
func runWatch(ctx context.Context, w io.Writer, logger *zap.Logger, segments <-chan watch.Segment, done <-chan struct{}, classifier healer.Classifier, generator healer.FixGenerator, decider Decider, flags reportFlags, explain bool) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case seg := <-segments:
			report := flags.report()
			report.Timestamp = seg.DetectedAt.UTC()
			result := classifyLocal(ctx, logger.With(zap.String("segment_id", seg.ID)), classifier, generator, decider, report, seg.Text(), explain)
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to write analysis: %w", err)
			}
		}
	}
}
