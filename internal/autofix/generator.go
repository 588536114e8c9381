// internal/autofix/generator.go
package autofix

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Generator turns an autofixable classification into concrete file changes.
// It only handles MISSING_VARIABLE and WRONG_REGION; every other category
// yields schemas.ErrNoFix.
type Generator struct {
	logger   *zap.Logger
	files    schemas.FileFetcher
	repos    schemas.RepoResolver
	resolver *TargetResolver
}

// NewGenerator initializes a fix generator. files and repos may be nil, in
// which case WRONG_REGION fixes are unavailable and MISSING_VARIABLE fixes are
// written without the existing file content.
func NewGenerator(logger *zap.Logger, files schemas.FileFetcher, repos schemas.RepoResolver, resolver *TargetResolver) *Generator {
	if resolver == nil {
		resolver = NewTargetResolver(nil, "")
	}
	return &Generator{
		logger:   logger.Named("autofix-generator"),
		files:    files,
		repos:    repos,
		resolver: resolver,
	}
}

// Generate returns a map of repository path to new file content.
func (g *Generator) Generate(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle, result schemas.ClassificationResult) (map[string]string, error) {
	switch result.Category {
	case schemas.CategoryMissingVariable:
		return g.missingVariable(ctx, report, evidence, result)
	case schemas.CategoryWrongRegion:
		return g.wrongRegion(ctx, report, evidence)
	default:
		return nil, fmt.Errorf("%w: category %s has no generator", schemas.ErrNoFix, result.Category)
	}
}

func (g *Generator) missingVariable(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle, result schemas.ClassificationResult) (map[string]string, error) {
	name := ExtractVariableName(evidence.BuildLogs, result.Explanation)
	if name == "" {
		return nil, fmt.Errorf("%w: could not extract variable name", schemas.ErrNoFix)
	}

	dir := g.resolver.Resolve(report.PipelineID, evidence.BuildLogs)
	target := path.Join(dir, "variables.tf")
	block := VariableBlock(name)

	existing, err := g.fetch(ctx, report, target)
	if err != nil {
		g.logger.Debug("Existing variables file unavailable, writing declaration alone.", zap.String("path", target), zap.Error(err))
		existing = ""
	}
	if declaresVariable(existing, name) {
		return nil, fmt.Errorf("%w: variable %q already declared in %s", schemas.ErrNoFix, name, target)
	}

	content := block
	if strings.TrimSpace(existing) != "" {
		content = strings.TrimRight(existing, "\n") + "\n\n" + block
	}

	g.logger.Info("Generated variable declaration.",
		zap.String("variable", name),
		zap.String("default", DefaultFor(name)),
		zap.String("path", target))
	return map[string]string{target: content}, nil
}

func (g *Generator) wrongRegion(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle) (map[string]string, error) {
	rejected := ExtractRejectedRegion(evidence.BuildLogs)
	if rejected == "" {
		return nil, fmt.Errorf("%w: could not extract rejected region", schemas.ErrNoFix)
	}
	corrected := CorrectRegion(rejected)
	if corrected == rejected {
		return nil, fmt.Errorf("%w: no correction for region %q", schemas.ErrNoFix, rejected)
	}

	dir := g.resolver.Resolve(report.PipelineID, evidence.BuildLogs)
	var fetchErrs []error
	for _, name := range regionFiles {
		target := path.Join(dir, name)
		source, err := g.fetch(ctx, report, target)
		if err != nil {
			fetchErrs = append(fetchErrs, err)
			continue
		}
		if updated, ok := substituteRegion(source, rejected, corrected); ok {
			g.logger.Info("Generated region correction.",
				zap.String("rejected", rejected),
				zap.String("corrected", corrected),
				zap.String("path", target))
			return map[string]string{target: updated}, nil
		}
	}

	if len(fetchErrs) == len(regionFiles) {
		return nil, fmt.Errorf("%w: no files readable in %s: %v", schemas.ErrNoFix, dir, errors.Join(fetchErrs...))
	}
	return nil, fmt.Errorf("%w: region literal %q not found in %s", schemas.ErrNoFix, rejected, dir)
}

func (g *Generator) fetch(ctx context.Context, report schemas.FailureReport, filePath string) (string, error) {
	if g.files == nil || g.repos == nil {
		return "", errors.New("no file source configured")
	}
	repo, err := g.repos.ResolveRepo(report.RepoURL)
	if err != nil {
		return "", err
	}
	return g.files.FetchFileContent(ctx, repo, filePath, report.SourceBranch)
}
