package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/healer"
	"github.com/xkilldash9x/infra-healer/internal/remediation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decider is the pure decision step of remediation.
type Decider interface {
	Decide(report schemas.FailureReport, result schemas.ClassificationResult) remediation.Decision
}

// analysis is what the local commands print for one failure.
type analysis struct {
	Report         schemas.FailureReport        `json:"failure_context"`
	Classification schemas.ClassificationResult `json:"rca"`
	Decision       remediation.Decision         `json:"planned_action"`
	Summary        string                       `json:"summary,omitempty"`
}

// reportFlags collects the failure metadata a local log does not carry.
type reportFlags struct {
	pipelineID int
	buildID    int
	prID       int
	stage      string
	project    string
	repoURL    string
	branch     string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.pipelineID, "pipeline-id", 0, "pipeline definition id, used to locate Terraform files")
	cmd.Flags().IntVar(&f.buildID, "build-id", 0, "build id, for display only")
	cmd.Flags().IntVar(&f.prID, "pr-id", 0, "pull request id, if the build was a PR build")
	cmd.Flags().StringVar(&f.stage, "stage", "", "failed stage name")
	cmd.Flags().StringVar(&f.project, "project", "", "project name")
	cmd.Flags().StringVar(&f.repoURL, "repo-url", "", "repository URL")
	cmd.Flags().StringVar(&f.branch, "branch", "", "source branch")
}

func (f *reportFlags) report() schemas.FailureReport {
	return schemas.FailureReport{
		PipelineID:   f.pipelineID,
		BuildID:      f.buildID,
		PRID:         f.prID,
		FailedStage:  f.stage,
		ProjectName:  f.project,
		RepoURL:      f.repoURL,
		SourceBranch: f.branch,
		Timestamp:    time.Now().UTC(),
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		logPath string
		explain bool
		offline bool
		flags   reportFlags
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify a local build log and print the planned remediation",
		Long: `Classify a build log from disk (or stdin with --log -) and print the
classification and the remediation that would be taken, as JSON.
Nothing is written to any external system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger

			logText, err := readLog(cmd.InOrStdin(), logPath)
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

			return runAnalyze(ctx, cmd.OutOrStdout(), logger, comps.Classifier, comps.Generator, comps.Selector, flags.report(), logText, explain)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "path to the build log, or - for stdin")
	cmd.Flags().BoolVar(&explain, "explain", false, "include the human-readable root cause summary")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the text-completion service and use detectors only")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func readLog(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read log from stdin: %w", err)
		}
		return string(data), nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}
	return string(data), nil
}

// classifyLocal classifies one log and previews the fix and decision without
// calling any remediation target.
func classifyLocal(ctx context.Context, logger *zap.Logger, classifier healer.Classifier, generator healer.FixGenerator, decider Decider, report schemas.FailureReport, logText string, explain bool) analysis {
	evidence := schemas.EvidenceBundle{BuildLogs: logText}
	result := classifier.Classify(ctx, report, evidence)

	if result.CanAutofix && generator != nil {
		fix, err := generator.Generate(ctx, report, evidence, result)
		switch {
		case err == nil:
			result = result.WithFix(fix)
		case errors.Is(err, schemas.ErrNoFix):
			logger.Info("No concrete fix generated.", zap.Error(err))
		default:
			logger.Warn("Fix generation failed.", zap.Error(err))
		}
	}

	out := analysis{
		Report:         report,
		Classification: result,
		Decision:       decider.Decide(report, result),
	}
	if explain {
		out.Summary = remediation.FormatRCAComment(result)
	}
	return out
}

// runAnalyze is the testable body of the analyze command.
func runAnalyze(ctx context.Context, w io.Writer, logger *zap.Logger, classifier healer.Classifier, generator healer.FixGenerator, decider Decider, report schemas.FailureReport, logText string, explain bool) error {
	if logText == "" {
		return errors.New("build log is empty")
	}
	result := classifyLocal(ctx, logger, classifier, generator, decider, report, logText, explain)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	return nil
}
