package remediation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

const signature = "*Analyzed by Infra Healer*"

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// FormatWorkItemDescription renders the body of a tracking work item.
func FormatWorkItemDescription(report schemas.FailureReport, result schemas.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("## Pipeline Failure Analysis\n\n")
	fmt.Fprintf(&b, "**Build:** %s  \n", orDefault(report.BuildNumber, "Unknown"))
	fmt.Fprintf(&b, "**Stage:** %s  \n", orDefault(report.FailedStage, "Unknown"))
	fmt.Fprintf(&b, "**Job:** %s\n\n", orDefault(report.FailedJob, "Unknown"))
	b.WriteString("## AI Analysis\n")
	fmt.Fprintf(&b, "**Category:** %s  \n", result.Category)
	fmt.Fprintf(&b, "**Confidence:** %s\n\n", percent(result.Confidence))
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.Explanation, "No explanation available"))
	b.WriteString("## Suggested Action\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.SuggestedFix, "Manual investigation required"))
	b.WriteString("## Build Link\n")
	b.WriteString(report.BuildLink())
	b.WriteString("\n")
	return b.String()
}

// FormatRCAComment renders the root-cause analysis as a pull request comment.
func FormatRCAComment(result schemas.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("## AI Root Cause Analysis\n\n")
	fmt.Fprintf(&b, "**Failure Category:** `%s`  \n", result.Category)
	fmt.Fprintf(&b, "**Confidence:** `%s`\n\n", percent(result.Confidence))
	b.WriteString("### Analysis\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.Explanation, "No explanation available"))
	b.WriteString("### Suggested Fix\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.SuggestedFix, "Manual review required"))
	b.WriteString("---\n")
	b.WriteString(signature + "\n")
	return b.String()
}

// FormatPullRequestTitle renders the title of a fix pull request.
func FormatPullRequestTitle(category schemas.Category) string {
	return "Auto-fix: " + category.Title()
}

// FormatPullRequestBody renders the description of a fix pull request.
func FormatPullRequestBody(report schemas.FailureReport, result schemas.ClassificationResult, files map[string]string, generated bool) string {
	var b strings.Builder
	b.WriteString("## Automated Fix\n\n")
	fmt.Fprintf(&b, "**Issue Detected:** %s  \n", result.Category)
	fmt.Fprintf(&b, "**Confidence:** %s  \n", percent(result.Confidence))
	fmt.Fprintf(&b, "**Failed Build:** %s\n\n", report.BuildLink())
	b.WriteString("### Root Cause Analysis\n\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.Explanation, "Auto-generated fix"))
	b.WriteString("### Changes Made\n\n")
	if generated {
		b.WriteString("**Modified Files:**\n")
		for _, p := range sortedKeys(files) {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
	} else {
		b.WriteString("*No file changes included - manual implementation required based on suggestions above.*\n")
	}
	b.WriteString("\n---\n")
	b.WriteString("*This PR was generated automatically from a pipeline failure analysis. Review the changes before merging.*\n")
	return b.String()
}

// SuggestionDocPath is where the fix suggestion document goes when no
// concrete file change could be generated.
func SuggestionDocPath(category schemas.Category) string {
	return fmt.Sprintf(".agentic-devops/fix-suggestion-%s.md", category.Kebab())
}

// FormatSuggestionDoc renders the fix suggestion document.
func FormatSuggestionDoc(result schemas.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("# Auto-Fix Suggestion\n\n")
	fmt.Fprintf(&b, "**Category:** %s\n", result.Category)
	fmt.Fprintf(&b, "**Confidence:** %s\n\n", percent(result.Confidence))
	b.WriteString("## Root Cause Analysis\n\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.Explanation, "No explanation available"))
	b.WriteString("## Suggested Implementation\n\n")
	fmt.Fprintf(&b, "%s\n\n", orDefault(result.SuggestedFix, "Review the analysis above and implement the necessary changes."))
	b.WriteString("---\n")
	b.WriteString("*This document should be replaced by the actual code changes.*\n")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
