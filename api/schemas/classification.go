package schemas

import "strings"

// Category is the root-cause tag assigned to a failure.
type Category string

const (
	CategoryMissingVariable     Category = "MISSING_VARIABLE"
	CategoryWrongRegion         Category = "WRONG_REGION"
	CategorySyntaxError         Category = "SYNTAX_ERROR"
	CategoryConfigurationError  Category = "CONFIGURATION_ERROR"
	CategoryAuthenticationError Category = "AUTHENTICATION_ERROR"
	CategoryStateError          Category = "STATE_ERROR"
	CategoryProviderError       Category = "PROVIDER_ERROR"
	CategoryTerraformError      Category = "TERRAFORM_ERROR"
	CategoryPipelineYAMLError   Category = "PIPELINE_YAML_ERROR"
	CategoryUnknownError        Category = "UNKNOWN_ERROR"
	CategoryUnknown             Category = "UNKNOWN"
)

var knownCategories = map[Category]struct{}{
	CategoryMissingVariable:     {},
	CategoryWrongRegion:         {},
	CategorySyntaxError:         {},
	CategoryConfigurationError:  {},
	CategoryAuthenticationError: {},
	CategoryStateError:          {},
	CategoryProviderError:       {},
	CategoryTerraformError:      {},
	CategoryPipelineYAMLError:   {},
	CategoryUnknownError:        {},
	CategoryUnknown:             {},
}

// IsKnown reports whether c is one of the recognized tags.
func (c Category) IsKnown() bool {
	_, ok := knownCategories[c]
	return ok
}

// Normalize maps unrecognized tags to CategoryUnknown.
func (c Category) Normalize() Category {
	if c.IsKnown() {
		return c
	}
	return CategoryUnknown
}

// Title renders the category for humans, e.g. "Missing Variable".
func (c Category) Title() string {
	words := strings.Split(strings.ToLower(string(c)), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "yaml" {
			words[i] = "YAML"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Kebab renders the category for branch and file names, e.g. "missing-variable".
func (c Category) Kebab() string {
	return strings.ReplaceAll(strings.ToLower(string(c)), "_", "-")
}

// MaxConfidence is the ceiling for every reported confidence. The classifier
// never claims full certainty.
const MaxConfidence = 0.95

// ClampConfidence bounds v to [0, MaxConfidence].
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

// FailureDomain names which specialized analysis path handled a log.
type FailureDomain string

const (
	DomainTerraform    FailureDomain = "terraform"
	DomainPipelineYAML FailureDomain = "pipeline_yaml"
	DomainGeneric      FailureDomain = "generic"
)

// PatternHint is the (category, confidence) output of a single detector rule,
// prior to reconciliation with the completion output.
type PatternHint struct {
	Rule       string   `json:"rule"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// ClassificationResult is the authoritative root-cause analysis for a failure.
type ClassificationResult struct {
	Category     Category          `json:"category"`
	Confidence   float64           `json:"confidence"`
	Explanation  string            `json:"explanation"`
	CanAutofix   bool              `json:"can_autofix"`
	Fix          map[string]string `json:"fix,omitempty"` // File path to new file content.
	SuggestedFix string            `json:"suggested_fix,omitempty"`
	Domain       FailureDomain     `json:"domain,omitempty"`
	Hint         *PatternHint      `json:"pattern_hint,omitempty"`
}

// WithFix returns a copy of r carrying the generated file changes.
func (r ClassificationResult) WithFix(fix map[string]string) ClassificationResult {
	out := r
	out.Fix = fix
	return out
}
