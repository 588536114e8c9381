// internal/autofix/variables.go
package autofix

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	notDeclaredRegex = regexp.MustCompile(`(?i)variable with the name "([a-z_][a-z0-9_-]*)" has not been declared`)
	undeclaredRegex  = regexp.MustCompile(`(?i)undeclared input variable "([a-z_][a-z0-9_-]*)"`)
	varRefRegex      = regexp.MustCompile(`(?i)\bvar\.([a-z_][a-z0-9_]*)`)
)

// variableDefaults holds default values for well-known variable names.
var variableDefaults = map[string]string{
	"azure_region": "eastus",
	"location":     "eastus",
	"region":       "eastus",
	"environment":  "dev",
}

var variableDescriptions = map[string]string{
	"azure_region": "Azure region for resource deployment",
	"location":     "Azure location for resources",
	"region":       "Region for deployment",
	"environment":  "Environment name",
}

const placeholderDefault = "CHANGE_ME"

// ExtractVariableName finds the undeclared variable a log complains about. The
// explicit "has not been declared" phrase wins. Failing that, the most
// frequently referenced var.X is used, with ties going to the name seen first.
func ExtractVariableName(texts ...string) string {
	for _, re := range []*regexp.Regexp{notDeclaredRegex, undeclaredRegex} {
		for _, text := range texts {
			if m := re.FindStringSubmatch(text); len(m) > 1 {
				return strings.ToLower(m[1])
			}
		}
	}

	counts := make(map[string]int)
	var order []string
	for _, text := range texts {
		for _, m := range varRefRegex.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(m[1])
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	if len(order) == 0 {
		return ""
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order[0]
}

// DefaultFor returns the default value for a variable name. Region-like names
// default to eastus.
func DefaultFor(name string) string {
	if v, ok := variableDefaults[name]; ok {
		return v
	}
	if strings.Contains(name, "region") || strings.Contains(name, "location") {
		return "eastus"
	}
	return placeholderDefault
}

// VariableBlock renders a Terraform variable declaration.
func VariableBlock(name string) string {
	description, ok := variableDescriptions[name]
	if !ok {
		description = "Value for " + name
	}
	return fmt.Sprintf(`variable "%s" {
  description = "%s"
  type        = string
  default     = "%s"
}
`, name, description, DefaultFor(name))
}

// declaresVariable reports whether Terraform source already declares name.
func declaresVariable(source, name string) bool {
	re := regexp.MustCompile(`(?m)^\s*variable\s+"` + regexp.QuoteMeta(name) + `"\s*\{`)
	return re.MatchString(source)
}
