package triage

import (
	"strings"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/llmutil"
)

// Defaults applied when a field of the completion output is missing or
// unreadable.
const (
	defaultTerraformConfidence = 0.7
	defaultPipelineConfidence  = 0.6
	maxExplanationChars        = 2000

	defaultPipelineFix = "Review pipeline YAML syntax"
)

// defaultsFor returns the fallback category, confidence and suggested fix for
// a domain. Terraform results carry no default fix.
func defaultsFor(domain schemas.FailureDomain) (schemas.Category, float64, string) {
	if domain == schemas.DomainPipelineYAML {
		return schemas.CategoryPipelineYAMLError, defaultPipelineConfidence, defaultPipelineFix
	}
	return schemas.CategoryTerraformError, defaultTerraformConfidence, ""
}

// parseCompletion turns free-form completion output into a candidate result.
// Parsing never fails: every missing or malformed field falls back to a
// default, and the names of those fields are returned so callers can log them.
func parseCompletion(domain schemas.FailureDomain, response, errorMessage string) (schemas.ClassificationResult, []string) {
	fields := llmutil.ScanFields(response, responseFields...)
	defCategory, defConfidence, defFix := defaultsFor(domain)
	var defaulted []string

	result := schemas.ClassificationResult{Domain: domain}

	if cat, ok := mapCategoryLabel(domain, fields[fieldCategory]); ok {
		result.Category = cat
	} else {
		result.Category = defCategory
		defaulted = append(defaulted, fieldCategory)
	}

	if conf, ok := llmutil.ParseConfidence(fields[fieldConfidence]); ok {
		result.Confidence = conf
	} else {
		result.Confidence = defConfidence
		defaulted = append(defaulted, fieldConfidence)
	}

	if v, ok := llmutil.ParseBool(fields[fieldCanAutofix]); ok {
		result.CanAutofix = v
	} else {
		defaulted = append(defaulted, fieldCanAutofix)
	}

	result.Explanation = fields[fieldExplanation]
	if result.Explanation == "" {
		defaulted = append(defaulted, fieldExplanation)
		switch {
		case strings.TrimSpace(response) != "" && len(fields) == 0:
			result.Explanation = llmutil.TruncateString(strings.TrimSpace(response), maxExplanationChars)
		case errorMessage != "":
			result.Explanation = errorMessage
		default:
			result.Explanation = "No explanation provided."
		}
	}
	result.SuggestedFix = fields[fieldSuggestedFix]
	if result.SuggestedFix == "" {
		result.SuggestedFix = defFix
	}

	return result, defaulted
}

// mapCategoryLabel resolves a category label from the completion. Both the
// human label ("Syntax Error") and the tag form ("SYNTAX_ERROR") are accepted.
func mapCategoryLabel(domain schemas.FailureDomain, raw string) (schemas.Category, bool) {
	raw = strings.TrimSpace(strings.Trim(raw, `"'.`))
	if raw == "" {
		return "", false
	}

	labels := terraformLabels
	if domain == schemas.DomainPipelineYAML {
		labels = pipelineLabels
	}
	for _, l := range labels {
		if strings.EqualFold(raw, l.label) {
			return l.category, true
		}
	}

	tag := schemas.Category(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")))
	if tag.IsKnown() {
		return tag, true
	}
	return "", false
}
