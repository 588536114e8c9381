package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

func TestAutofixPolicy_IsAutofixable(t *testing.T) {
	t.Parallel()
	policy := NewAutofixPolicy()

	testCases := []struct {
		name        string
		category    schemas.Category
		explanation string
		want        bool
	}{
		{"missing variable by category", schemas.CategoryMissingVariable, "", true},
		{"wrong region by category", schemas.CategoryWrongRegion, "", true},
		{"configuration error without hints", schemas.CategoryConfigurationError, "Something is misconfigured.", false},
		{"safe explanation beats category", schemas.CategoryConfigurationError, "The variable azure_region has not been declared.", true},
		{"invalid region phrase", schemas.CategoryProviderError, "Invalid region supplied to the provider", true},
		{"expected got", schemas.CategoryProviderError, "expected string, got number", true},
		{"syntax category is manual", schemas.CategorySyntaxError, "The variable foo is not declared", false},
		{"auth category is manual", schemas.CategoryAuthenticationError, "", false},
		{"state category is manual", schemas.CategoryStateError, "", false},
		{"brace in explanation", schemas.CategoryMissingVariable, "Missing closing brace in main.tf", false},
		{"unexpected token", schemas.CategoryWrongRegion, "Unexpected token near location", false},
		{"authentication failure", schemas.CategoryMissingVariable, "Authentication failed for the service principal", false},
		{"unauthorized", schemas.CategoryWrongRegion, "401 Unauthorized", false},
		{"state lock", schemas.CategoryMissingVariable, "Error acquiring the state lock", false},
		{"manual beats safe", schemas.CategoryConfigurationError, "Syntax error near undeclared variable x", false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, policy.IsAutofixable(tc.category, tc.explanation))
		})
	}
}
