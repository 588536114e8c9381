// Package healer runs one triage pass per failed pipeline: gather evidence,
// classify, generate a fix when one is possible, then remediate.
package healer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Classifier assigns a root cause to a failure.
type Classifier interface {
	Classify(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle) schemas.ClassificationResult
}

// FixGenerator derives file changes for an autofixable classification.
type FixGenerator interface {
	Generate(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle, result schemas.ClassificationResult) (map[string]string, error)
}

// ActionSelector chooses and executes a remediation.
type ActionSelector interface {
	Execute(ctx context.Context, report schemas.FailureReport, result schemas.ClassificationResult) schemas.RemediationAction
}

// EvidenceGatherer collects evidence for a failure.
type EvidenceGatherer interface {
	Gather(ctx context.Context, report schemas.FailureReport) schemas.EvidenceBundle
}

// Outcome is the result of one triage run.
type Outcome struct {
	RunID          string                       `json:"run_id"`
	Report         schemas.FailureReport        `json:"failure_context"`
	Classification schemas.ClassificationResult `json:"rca"`
	Action         schemas.RemediationAction    `json:"action_taken"`
	Degraded       []string                     `json:"degraded,omitempty"`
	Duration       time.Duration                `json:"-"`
}

// Healer wires the triage stages together. It keeps no state between runs.
type Healer struct {
	logger     *zap.Logger
	gatherer   EvidenceGatherer
	classifier Classifier
	generator  FixGenerator
	selector   ActionSelector
	recorder   schemas.RunRecorder
}

// Option configures a Healer.
type Option func(*Healer)

// WithRecorder persists every finished run.
func WithRecorder(r schemas.RunRecorder) Option {
	return func(h *Healer) { h.recorder = r }
}

// WithFixGenerator enables fix generation.
func WithFixGenerator(g FixGenerator) Option {
	return func(h *Healer) { h.generator = g }
}

// New builds a Healer. gatherer may be nil if only Analyze is used.
func New(logger *zap.Logger, gatherer EvidenceGatherer, classifier Classifier, selector ActionSelector, opts ...Option) *Healer {
	h := &Healer{
		logger:     logger.Named("healer"),
		gatherer:   gatherer,
		classifier: classifier,
		selector:   selector,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ValidateReport checks the fields a run cannot do without.
func ValidateReport(report schemas.FailureReport) error {
	var missing []string
	if report.BuildID <= 0 {
		missing = append(missing, "buildId")
	}
	if report.ProjectName == "" {
		missing = append(missing, "projectName")
	}
	if len(missing) > 0 {
		return schemas.NewTriageError(schemas.KindConfiguration, "validate_report",
			fmt.Errorf("missing required fields: %v", missing))
	}
	return nil
}

// Run performs a full triage pass for a failure report, gathering evidence
// from the configured sources.
func (h *Healer) Run(ctx context.Context, report schemas.FailureReport) (*Outcome, error) {
	if err := ValidateReport(report); err != nil {
		return nil, err
	}
	if h.gatherer == nil {
		return nil, schemas.NewTriageError(schemas.KindConfiguration, "run", errors.New("no evidence sources configured"))
	}
	evidence := h.gatherer.Gather(ctx, report)
	return h.Analyze(ctx, report, evidence)
}

// Analyze runs classification and remediation over evidence that was already
// gathered.
func (h *Healer) Analyze(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle) (*Outcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := h.logger.With(zap.String("run_id", runID), zap.Int("build_id", report.BuildID))
	logger.Info("Starting triage run.",
		zap.String("project", report.ProjectName),
		zap.String("stage", report.FailedStage),
		zap.Strings("degraded", evidence.Degraded))

	result := h.classifier.Classify(ctx, report, evidence)

	if result.CanAutofix && h.generator != nil {
		fix, err := h.generator.Generate(ctx, report, evidence, result)
		switch {
		case err == nil:
			result = result.WithFix(fix)
		case errors.Is(err, schemas.ErrNoFix):
			logger.Info("No concrete fix generated.", zap.Error(err))
		default:
			logger.Warn("Fix generation failed.", zap.Error(err))
		}
	}

	action := h.selector.Execute(ctx, report, result)

	outcome := &Outcome{
		RunID:          runID,
		Report:         report,
		Classification: result,
		Action:         action,
		Degraded:       evidence.Degraded,
		Duration:       time.Since(start),
	}

	if h.recorder != nil {
		if err := h.recorder.RecordRun(ctx, runID, report, result, action); err != nil {
			logger.Warn("Failed to record triage run.", zap.Error(err))
		}
	}

	logger.Info("Triage run complete.",
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence),
		zap.String("action", string(action.Kind)),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}
