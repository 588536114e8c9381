// Package triage classifies CI pipeline failures. It combines deterministic
// detectors over the raw build log with a text-completion verdict and merges
// the two under a fixed precedence.
package triage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Options tunes the classifier.
type Options struct {
	// MaxLogChars is the log length above which only the tail is sent to the
	// completion service.
	MaxLogChars int
	// TailLogChars is the tail length kept for long logs.
	TailLogChars int
	// Temperature for the completion request.
	Temperature float64
}

// DefaultOptions returns the classifier defaults.
func DefaultOptions() Options {
	return Options{
		MaxLogChars:  10000,
		TailLogChars: 5000,
		Temperature:  0.1,
	}
}

// Classifier produces a ClassificationResult for each failure it is given.
// It holds no per-run state and is safe for concurrent use.
type Classifier struct {
	logger    *zap.Logger
	llm       schemas.LLMClient
	detectors *DetectorTable
	domains   DomainRules
	policy    *AutofixPolicy
	opts      Options
}

// NewClassifier builds a classifier over the built-in detector rules. llm may
// be nil, in which case every completion is treated as failed.
func NewClassifier(logger *zap.Logger, llm schemas.LLMClient, opts Options) *Classifier {
	detectors, domains := DefaultRules()
	return NewClassifierWithRules(logger, llm, opts, detectors, domains)
}

// NewClassifierWithRules builds a classifier over a caller-supplied rule set.
func NewClassifierWithRules(logger *zap.Logger, llm schemas.LLMClient, opts Options, detectors *DetectorTable, domains DomainRules) *Classifier {
	return &Classifier{
		logger:    logger.Named("classifier"),
		llm:       llm,
		detectors: detectors,
		domains:   domains,
		policy:    NewAutofixPolicy(),
		opts:      opts,
	}
}

// Policy returns the autofix policy in use.
func (c *Classifier) Policy() *AutofixPolicy { return c.policy }

// Classify runs the full classification algorithm. It never returns an error:
// completion failures degrade to a weak UNKNOWN_ERROR candidate that is still
// reconciled with the detector hint.
func (c *Classifier) Classify(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle) schemas.ClassificationResult {
	log := evidence.BuildLogs
	domain := c.domains.SelectDomain(log)
	hint := c.detectors.Detect(log)

	logger := c.logger.With(zap.Int("build_id", report.BuildID), zap.String("domain", string(domain)))
	if hint != nil {
		logger.Debug("Detector matched.", zap.String("rule", hint.Rule), zap.String("category", string(hint.Category)))
	}

	var candidate schemas.ClassificationResult
	if domain == schemas.DomainGeneric {
		candidate = c.genericCandidate(log)
	} else {
		candidate = c.completionCandidate(ctx, logger, domain, report, evidence)
	}
	candidate.Domain = domain

	result, fired := reconcile(candidate, hint, c.policy)
	logger.Info("Failure classified.",
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("can_autofix", result.CanAutofix),
		zap.Strings("overrides", fired),
	)
	return result
}

func (c *Classifier) genericCandidate(log string) schemas.ClassificationResult {
	if c.domains.HasGenericFailure(log) {
		return schemas.ClassificationResult{
			Category:    schemas.CategoryUnknownError,
			Confidence:  0.3,
			Explanation: "Build failed but the error type was not recognized. Manual review required.",
		}
	}
	return schemas.ClassificationResult{
		Category:    schemas.CategoryUnknown,
		Confidence:  0.0,
		Explanation: "Unable to determine failure type from the build log.",
	}
}

// tierFor picks the model tier for a domain. Pipeline YAML failures have a
// short category list and go to the fast model.
func tierFor(domain schemas.FailureDomain) schemas.ModelTier {
	if domain == schemas.DomainPipelineYAML {
		return schemas.TierFast
	}
	return schemas.TierPowerful
}

func (c *Classifier) completionCandidate(ctx context.Context, logger *zap.Logger, domain schemas.FailureDomain, report schemas.FailureReport, evidence schemas.EvidenceBundle) schemas.ClassificationResult {
	if c.llm == nil {
		return c.serviceFailure(evidence.BuildLogs, schemas.NewTriageError(schemas.KindService, "classify", fmt.Errorf("no text-completion client configured")))
	}

	slice := sliceLog(evidence.BuildLogs, c.opts.MaxLogChars, c.opts.TailLogChars)
	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt(domain),
		UserPrompt:   buildPrompt(domain, report, evidence, slice),
		Tier:         tierFor(domain),
		Options: schemas.GenerationOptions{
			Temperature: c.opts.Temperature,
		},
	}

	response, err := c.llm.Generate(ctx, req)
	if err != nil {
		logger.Warn("Text completion failed, returning weak classification.", zap.Error(err))
		return c.serviceFailure(evidence.BuildLogs, schemas.NewTriageError(schemas.KindService, "classify", err))
	}

	candidate, defaulted := parseCompletion(domain, response, ExtractErrorMessage(evidence.BuildLogs))
	if len(defaulted) > 0 {
		logger.Warn("Completion output incomplete, defaults applied.",
			zap.Strings("fields", defaulted),
			zap.Error(schemas.NewTriageError(schemas.KindParse, "classify", fmt.Errorf("missing fields"))))
	}
	return candidate
}

func (c *Classifier) serviceFailure(log string, err error) schemas.ClassificationResult {
	candidate := c.genericCandidate(log)
	candidate.Explanation = fmt.Sprintf("Analysis failed: %v", err)
	return candidate
}
