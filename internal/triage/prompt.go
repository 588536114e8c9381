package triage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Response field keys. The completion is asked to answer in exactly this format.
const (
	fieldCategory     = "CATEGORY"
	fieldConfidence   = "CONFIDENCE"
	fieldExplanation  = "EXPLANATION"
	fieldCanAutofix   = "CAN_AUTOFIX"
	fieldSuggestedFix = "SUGGESTED_FIX"
)

var responseFields = []string{fieldCategory, fieldConfidence, fieldExplanation, fieldCanAutofix, fieldSuggestedFix}

// terraformLabels is the closed label set offered to the completion on the
// Terraform path, keyed by the label text the model is asked to echo.
var terraformLabels = []struct {
	label    string
	category schemas.Category
}{
	{"Configuration Error", schemas.CategoryConfigurationError},
	{"Syntax Error", schemas.CategorySyntaxError},
	{"Authentication Error", schemas.CategoryAuthenticationError},
	{"State Error", schemas.CategoryStateError},
	{"Provider Error", schemas.CategoryProviderError},
}

var pipelineLabels = []struct {
	label    string
	category schemas.Category
}{
	{"Pipeline YAML Error", schemas.CategoryPipelineYAMLError},
	{"Configuration Error", schemas.CategoryConfigurationError},
	{"Syntax Error", schemas.CategorySyntaxError},
}

// sliceLog keeps logs short enough for a single completion. Logs longer than
// maxChars are cut to their final tailChars characters, where the failure
// usually is.
func sliceLog(log string, maxChars, tailChars int) string {
	if maxChars <= 0 || len(log) <= maxChars {
		return log
	}
	if tailChars <= 0 || tailChars >= len(log) {
		return log
	}
	start := len(log) - tailChars
	for start < len(log) && !utf8.RuneStart(log[start]) {
		start++
	}
	return log[start:]
}

func systemPrompt(domain schemas.FailureDomain) string {
	if domain == schemas.DomainPipelineYAML {
		return "You are an Azure DevOps pipeline expert. You diagnose failed pipeline runs caused by pipeline definitions and answer in the exact format requested."
	}
	return "You are a Terraform and Azure infrastructure expert. You diagnose failed infrastructure deployments and answer in the exact format requested."
}

// buildPrompt renders the classification prompt for one failure.
func buildPrompt(domain schemas.FailureDomain, report schemas.FailureReport, evidence schemas.EvidenceBundle, logSlice string) string {
	var b strings.Builder

	labels := terraformLabels
	subject := "Terraform deployment"
	if domain == schemas.DomainPipelineYAML {
		labels = pipelineLabels
		subject = "pipeline definition"
	}

	fmt.Fprintf(&b, "Analyze this failed %s and identify the root cause.\n\n", subject)
	fmt.Fprintf(&b, "**Failure Context:**\n- Stage: %s\n- Job: %s\n- Task: %s\n- Branch: %s\n\n",
		orUnknown(report.FailedStage), orUnknown(report.FailedJob), orUnknown(report.FailedTask), orUnknown(report.SourceBranch))

	if msg := ExtractErrorMessage(evidence.BuildLogs); msg != "" {
		fmt.Fprintf(&b, "**Error Message:**\n%s\n\n", msg)
	}

	fmt.Fprintf(&b, "**Build Log:**\n```\n%s\n```\n\n", logSlice)

	if pr := evidence.PullRequest; pr != nil && len(pr.Files) > 0 {
		b.WriteString("**Files Changed In The Pull Request:**\n")
		for _, f := range pr.Files {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.ChangeType)
		}
		b.WriteString("\n")
	}

	if domain == schemas.DomainPipelineYAML && evidence.PipelineDefinition != "" {
		fmt.Fprintf(&b, "**Pipeline Definition:**\n```yaml\n%s\n```\n\n", evidence.PipelineDefinition)
	}

	b.WriteString("Classify the failure as exactly one of: ")
	for i, l := range labels {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(l.label)
	}
	b.WriteString(".\n\n")

	b.WriteString("Respond in exactly this format:\n")
	b.WriteString("CATEGORY: <one of the categories above>\n")
	b.WriteString("CONFIDENCE: <number between 0.0 and 1.0>\n")
	b.WriteString("EXPLANATION: <what failed and why>\n")
	b.WriteString("CAN_AUTOFIX: <true or false>\n")
	b.WriteString("SUGGESTED_FIX: <the change that would resolve it>\n")
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
