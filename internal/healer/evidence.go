package healer

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Evidence source names recorded in EvidenceBundle.Degraded.
const (
	SourceBuildLogs          = "build_logs"
	SourceLastSuccessLogs    = "last_success_logs"
	SourcePullRequest        = "pr_changes"
	SourcePipelineDefinition = "pipeline_yaml"
)

// Gatherer fetches the evidence for one failure concurrently. Any single
// fetch failure degrades that source to an empty value; gathering itself
// never fails.
type Gatherer struct {
	logger *zap.Logger
	logs   schemas.BuildLogSource
	prs    schemas.PullRequestSource
}

// NewGatherer initializes an evidence gatherer. prs may be nil.
func NewGatherer(logger *zap.Logger, logs schemas.BuildLogSource, prs schemas.PullRequestSource) *Gatherer {
	return &Gatherer{
		logger: logger.Named("evidence"),
		logs:   logs,
		prs:    prs,
	}
}

// Gather collects build logs, the last successful logs on the same branch,
// the pipeline definition and, for PR builds, the PR change summary.
func (g *Gatherer) Gather(ctx context.Context, report schemas.FailureReport) schemas.EvidenceBundle {
	var (
		bundle schemas.EvidenceBundle
		mu     sync.Mutex
	)

	degrade := func(source string, err error) {
		g.logger.Warn("Evidence source unavailable, continuing without it.",
			zap.String("source", source),
			zap.Int("build_id", report.BuildID),
			zap.Error(schemas.NewTriageError(schemas.KindTransport, source, err)))
		mu.Lock()
		bundle.Degraded = append(bundle.Degraded, source)
		mu.Unlock()
	}

	// Errors are absorbed per source, so the group only provides the
	// fan-out and the wait.
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logs, err := g.logs.FetchBuildLogs(gctx, report.ProjectName, report.BuildID)
		if err != nil {
			degrade(SourceBuildLogs, err)
			return nil
		}
		mu.Lock()
		bundle.BuildLogs = logs
		mu.Unlock()
		return nil
	})

	if report.PipelineID > 0 {
		group.Go(func() error {
			logs, err := g.logs.FetchLastSuccessfulLogs(gctx, report.ProjectName, report.PipelineID, report.SourceBranch)
			if err != nil {
				degrade(SourceLastSuccessLogs, err)
				return nil
			}
			mu.Lock()
			bundle.LastSuccessLogs = logs
			mu.Unlock()
			return nil
		})

		group.Go(func() error {
			def, err := g.logs.FetchPipelineDefinition(gctx, report.ProjectName, report.PipelineID)
			if err != nil {
				degrade(SourcePipelineDefinition, err)
				return nil
			}
			mu.Lock()
			bundle.PipelineDefinition = def
			mu.Unlock()
			return nil
		})
	}

	if report.HasPullRequest() && g.prs != nil {
		group.Go(func() error {
			changes, err := g.prs.FetchPullRequestChanges(gctx, report.ProjectName, report.RepoID(), report.PRID)
			if err != nil {
				degrade(SourcePullRequest, err)
				return nil
			}
			mu.Lock()
			bundle.PullRequest = changes
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()
	sort.Strings(bundle.Degraded)
	return bundle
}
