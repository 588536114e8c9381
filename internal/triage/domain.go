package triage

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// SelectDomain decides which analysis path handles a log. Terraform keywords are
// checked first, then pipeline YAML markers. Anything else is generic.
func (r DomainRules) SelectDomain(log string) schemas.FailureDomain {
	lowered := strings.ToLower(log)
	for _, kw := range r.Terraform {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return schemas.DomainTerraform
		}
	}
	for _, kw := range r.PipelineYAML {
		if strings.Contains(log, kw) {
			return schemas.DomainPipelineYAML
		}
	}
	return schemas.DomainGeneric
}

// HasGenericFailure reports whether the log mentions any generic failure word.
func (r DomainRules) HasGenericFailure(log string) bool {
	lowered := strings.ToLower(log)
	for _, kw := range r.Generic {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

var terraformErrorRegex = regexp.MustCompile(`(?m)Error:\s*(.+)$`)

// ExtractErrorMessage returns the text of the first "Error:" line of a log.
func ExtractErrorMessage(log string) string {
	m := terraformErrorRegex.FindStringSubmatch(log)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
