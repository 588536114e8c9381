package triage

import (
	"math"
	"strings"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// overrideRule is one step of the merge between the completion's candidate and
// the detector hint. Rules run in order and later rules see (and may
// overwrite) the output of earlier ones.
type overrideRule struct {
	name    string
	applies func(r schemas.ClassificationResult, hint *schemas.PatternHint) bool
	apply   func(r schemas.ClassificationResult, hint *schemas.PatternHint) schemas.ClassificationResult
}

var regionPhrases = []string{"wrong region", "invalid region", "incorrect region", "not found in the list", "invalid location"}
var syntaxPhrases = []string{"syntax error", "missing brace", "invalid character", "unexpected token"}

func explanationContains(r schemas.ClassificationResult, phrases ...string) bool {
	lowered := strings.ToLower(r.Explanation)
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

var overrideRules = []overrideRule{
	{
		name: "explanation_missing_variable",
		applies: func(r schemas.ClassificationResult, _ *schemas.PatternHint) bool {
			lowered := strings.ToLower(r.Explanation)
			return strings.Contains(lowered, "missing") && strings.Contains(lowered, "variable")
		},
		apply: func(r schemas.ClassificationResult, _ *schemas.PatternHint) schemas.ClassificationResult {
			r.Category = schemas.CategoryMissingVariable
			r.Confidence = math.Max(r.Confidence, 0.85)
			return r
		},
	},
	{
		name: "explanation_wrong_region",
		applies: func(r schemas.ClassificationResult, _ *schemas.PatternHint) bool {
			return explanationContains(r, regionPhrases...)
		},
		apply: func(r schemas.ClassificationResult, _ *schemas.PatternHint) schemas.ClassificationResult {
			r.Category = schemas.CategoryWrongRegion
			r.Confidence = math.Max(r.Confidence, 0.85)
			return r
		},
	},
	{
		name: "explanation_syntax_error",
		applies: func(r schemas.ClassificationResult, _ *schemas.PatternHint) bool {
			return explanationContains(r, syntaxPhrases...)
		},
		apply: func(r schemas.ClassificationResult, _ *schemas.PatternHint) schemas.ClassificationResult {
			r.Category = schemas.CategorySyntaxError
			r.CanAutofix = false
			r.Confidence = math.Max(r.Confidence, 0.90)
			return r
		},
	},
	{
		name:    "confidence_ceiling",
		applies: func(schemas.ClassificationResult, *schemas.PatternHint) bool { return true },
		apply: func(r schemas.ClassificationResult, _ *schemas.PatternHint) schemas.ClassificationResult {
			r.Confidence = schemas.ClampConfidence(r.Confidence)
			return r
		},
	},
	{
		name: "strong_detector_hint",
		applies: func(r schemas.ClassificationResult, hint *schemas.PatternHint) bool {
			return hint != nil && hint.Confidence >= strongHintConfidence
		},
		apply: func(r schemas.ClassificationResult, hint *schemas.PatternHint) schemas.ClassificationResult {
			r.Category = hint.Category
			r.Confidence = math.Max(r.Confidence, hint.Confidence)
			return r
		},
	},
}

// strongHintConfidence is the detector confidence at which a hint outranks the
// completion's category. An agreeing strong hint still lifts the confidence.
const strongHintConfidence = 0.90

// reconcile merges the completion candidate with the detector hint and
// re-derives the autofix flag from the final category and explanation.
func reconcile(candidate schemas.ClassificationResult, hint *schemas.PatternHint, policy *AutofixPolicy) (schemas.ClassificationResult, []string) {
	result := candidate
	var fired []string
	for _, rule := range overrideRules {
		if rule.applies(result, hint) {
			result = rule.apply(result, hint)
			fired = append(fired, rule.name)
		}
	}
	result.Category = result.Category.Normalize()
	result.Confidence = schemas.ClampConfidence(result.Confidence)
	result.Hint = hint
	result.CanAutofix = policy.IsAutofixable(result.Category, result.Explanation)
	return result, fired
}
