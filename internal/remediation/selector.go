// Package remediation maps a classification onto exactly one remediation
// action and executes it against the configured collaborators.
package remediation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Decision is the remediation path chosen for a classification, before any
// collaborator is called.
type Decision string

const (
	DecisionFixPR    Decision = "fix_pr"
	DecisionWorkItem Decision = "work_item"
	DecisionComment  Decision = "rca_comment"
	DecisionSkip     Decision = "skip"
)

// Thresholds are the confidence gates of the selector.
type Thresholds struct {
	// AutofixConfidence is the minimum confidence for opening a fix PR.
	AutofixConfidence float64
	// WorkItemFloor is the confidence below which nothing is filed.
	WorkItemFloor float64
	// PreferPRComment posts an RCA comment instead of filing a work item when
	// the failure came from a pull request build.
	PreferPRComment bool
}

// DefaultThresholds returns the default gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutofixConfidence: 0.65,
		WorkItemFloor:     0.5,
		PreferPRComment:   true,
	}
}

// Targets bundles the collaborators the selector may act on. Any of them may
// be nil; a nil target is treated as a failed action.
type Targets struct {
	PullRequests schemas.PullRequestCreator
	Repos        schemas.RepoResolver
	WorkItems    schemas.WorkItemTracker
	Comments     schemas.CommentPoster
}

// Selector chooses and executes the remediation for a classification.
type Selector struct {
	logger     *zap.Logger
	thresholds Thresholds
	targets    Targets
}

// NewSelector initializes a remediation selector.
func NewSelector(logger *zap.Logger, thresholds Thresholds, targets Targets) *Selector {
	return &Selector{
		logger:     logger.Named("remediation"),
		thresholds: thresholds,
		targets:    targets,
	}
}

// Decide is the pure decision step.
func (s *Selector) Decide(report schemas.FailureReport, result schemas.ClassificationResult) Decision {
	switch {
	case result.CanAutofix && result.Confidence >= s.thresholds.AutofixConfidence:
		return DecisionFixPR
	case result.Confidence < s.thresholds.WorkItemFloor:
		return DecisionSkip
	case report.HasPullRequest() && s.thresholds.PreferPRComment && s.targets.Comments != nil:
		return DecisionComment
	default:
		return DecisionWorkItem
	}
}

// Execute decides and carries out exactly one remediation. It never returns an
// error: failures are reported as an ERROR action, after one fallback tier
// where one exists.
func (s *Selector) Execute(ctx context.Context, report schemas.FailureReport, result schemas.ClassificationResult) (action schemas.RemediationAction) {
	decision := s.Decide(report, result)
	logger := s.logger.With(zap.Int("build_id", report.BuildID), zap.String("decision", string(decision)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while executing remediation.", zap.Any("panic", r), zap.Stack("stack"))
			action = errorAction(fmt.Errorf("remediation panicked: %v", r))
		}
	}()

	switch decision {
	case DecisionFixPR:
		action = s.openFixPullRequest(ctx, logger, report, result)
	case DecisionSkip:
		action = schemas.RemediationAction{
			Kind:       schemas.ActionSkipped,
			Details:    fmt.Sprintf("Analysis confidence too low (%s) - manual investigation required", percent(result.Confidence)),
			SkipReason: "manual investigation required",
		}
	case DecisionComment:
		action = s.postComment(ctx, logger, report, result)
	default:
		action = s.fileWorkItem(ctx, logger, report, workItemTitle(report), FormatWorkItemDescription(report, result))
	}

	logger.Info("Remediation complete.", zap.String("action", string(action.Kind)), zap.String("details", action.Details))
	return action
}

func (s *Selector) openFixPullRequest(ctx context.Context, logger *zap.Logger, report schemas.FailureReport, result schemas.ClassificationResult) schemas.RemediationAction {
	res, err := s.createPullRequest(ctx, report, result)
	if err == nil {
		if res.Status == schemas.PRStatusDuplicate {
			return schemas.RemediationAction{
				Kind:     schemas.ActionExistingPRFound,
				Details:  fmt.Sprintf("Fix PR already open: #%d", res.Number),
				PRNumber: res.Number,
				PRURL:    res.URL,
			}
		}
		return schemas.RemediationAction{
			Kind:     schemas.ActionAutoFixPRCreated,
			Details:  fmt.Sprintf("Created PR #%d", res.Number),
			PRNumber: res.Number,
			PRURL:    res.URL,
		}
	}

	err = schemas.NewTriageError(schemas.KindAction, "create_fix_pr", err)
	logger.Warn("Fix PR creation failed, falling back to work item.", zap.Error(err))

	title := "Auto-fix Suggested: " + result.Category.Title()
	description := fmt.Sprintf("PR creation failed: %v\n\n%s", errors.Unwrap(err), FormatWorkItemDescription(report, result))
	action := s.fileWorkItem(ctx, logger, report, title, description)
	if action.Kind == schemas.ActionWorkItemCreated {
		action.Details = fmt.Sprintf("Created work item %d (PR creation failed)", action.WorkItemID)
		action.Error = errors.Unwrap(err).Error()
	}
	return action
}

func (s *Selector) createPullRequest(ctx context.Context, report schemas.FailureReport, result schemas.ClassificationResult) (*schemas.FixPullRequestResult, error) {
	if s.targets.PullRequests == nil || s.targets.Repos == nil {
		return nil, errors.New("pull request creation is not configured")
	}
	repo, err := s.targets.Repos.ResolveRepo(report.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository: %w", err)
	}

	files := result.Fix
	generated := len(files) > 0
	if !generated {
		files = map[string]string{SuggestionDocPath(result.Category): FormatSuggestionDoc(result)}
	}
	paths := sortedKeys(files)
	fingerprint := Fingerprint(report.PipelineID, result.Category, paths)

	req := schemas.FixPullRequest{
		Repo:        repo,
		BaseBranch:  report.SourceBranch,
		HeadBranch:  BranchName(result.Category, fingerprint),
		Title:       FormatPullRequestTitle(result.Category),
		FileChanges: files,
		Description: FormatPullRequestBody(report, result, files, generated),
		Category:    result.Category,
		Confidence:  result.Confidence,
		Fingerprint: fingerprint,
	}
	res, err := s.targets.PullRequests.CreateFixPullRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("pull request creator returned no result")
	}
	return res, nil
}

func (s *Selector) postComment(ctx context.Context, logger *zap.Logger, report schemas.FailureReport, result schemas.ClassificationResult) schemas.RemediationAction {
	err := s.targets.Comments.PostComment(ctx, report.ProjectName, report.RepoID(), report.PRID, FormatRCAComment(result))
	if err == nil {
		return schemas.RemediationAction{
			Kind:    schemas.ActionRCACommentPosted,
			Details: fmt.Sprintf("Posted RCA comment on PR %d", report.PRID),
		}
	}
	logger.Warn("RCA comment failed, falling back to work item.",
		zap.Error(schemas.NewTriageError(schemas.KindAction, "post_comment", err)))
	return s.fileWorkItem(ctx, logger, report, workItemTitle(report), FormatWorkItemDescription(report, result))
}

func (s *Selector) fileWorkItem(ctx context.Context, logger *zap.Logger, report schemas.FailureReport, title, description string) schemas.RemediationAction {
	if s.targets.WorkItems == nil {
		return errorAction(errors.New("work item tracking is not configured"))
	}
	id, err := s.targets.WorkItems.CreateWorkItem(ctx, report.ProjectName, title, description)
	if err != nil {
		logger.Error("Work item creation failed.", zap.Error(err))
		return errorAction(schemas.NewTriageError(schemas.KindAction, "create_work_item", err))
	}
	return schemas.RemediationAction{
		Kind:       schemas.ActionWorkItemCreated,
		Details:    fmt.Sprintf("Created work item: %d", id),
		WorkItemID: id,
	}
}

func workItemTitle(report schemas.FailureReport) string {
	return "Pipeline Failure: " + orDefault(report.FailedStage, "Unknown")
}

func errorAction(err error) schemas.RemediationAction {
	return schemas.RemediationAction{
		Kind:    schemas.ActionError,
		Details: err.Error(),
		Error:   err.Error(),
	}
}
