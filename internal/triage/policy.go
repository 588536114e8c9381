package triage

import (
	"regexp"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// AutofixPolicy decides whether a classified failure is safe to fix without a
// human. Rules are evaluated in order:
//
//  1. a manual-only category or explanation pattern means false,
//  2. a safe explanation pattern means true,
//  3. otherwise only MISSING_VARIABLE and WRONG_REGION are fixable.
type AutofixPolicy struct {
	manualCategories map[schemas.Category]struct{}
	manualPatterns   []*regexp.Regexp
	safePatterns     []*regexp.Regexp
	safeCategories   map[schemas.Category]struct{}
}

// NewAutofixPolicy returns the built-in policy.
func NewAutofixPolicy() *AutofixPolicy {
	return &AutofixPolicy{
		manualCategories: map[schemas.Category]struct{}{
			schemas.CategorySyntaxError:         {},
			schemas.CategoryAuthenticationError: {},
			schemas.CategoryStateError:          {},
		},
		manualPatterns: compileAll(
			`syntax error`,
			`\bbrace\b`,
			`\b(unexpected|invalid) (token|block|character)\b`,
			`\btoken error`,
			`\bblock error`,
			`authenticat\w*\s+(fail|error)`,
			`\bunauthori[sz]ed\b`,
			`state (lock|is locked|conflict)`,
			`(acquiring|acquire) the state lock`,
			`\bconflict\b`,
		),
		safePatterns: compileAll(
			`(undeclared|undefined|unset|missing) (input )?variable`,
			`variable .{0,80}(not (been )?(declared|defined|set))`,
			`(invalid|wrong|incorrect|unsupported) (region|location)`,
			`was not found in the list of supported`,
			`expected .+ got `,
		),
		safeCategories: map[schemas.Category]struct{}{
			schemas.CategoryMissingVariable: {},
			schemas.CategoryWrongRegion:     {},
		},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// IsAutofixable applies the policy. It is pure and deterministic.
func (p *AutofixPolicy) IsAutofixable(category schemas.Category, explanation string) bool {
	if _, ok := p.manualCategories[category]; ok {
		return false
	}
	for _, re := range p.manualPatterns {
		if re.MatchString(explanation) {
			return false
		}
	}
	for _, re := range p.safePatterns {
		if re.MatchString(explanation) {
			return true
		}
	}
	_, ok := p.safeCategories[category]
	return ok
}
