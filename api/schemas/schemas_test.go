package schemas_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

func TestCategoryRendering(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		category schemas.Category
		title    string
		kebab    string
	}{
		{schemas.CategoryMissingVariable, "Missing Variable", "missing-variable"},
		{schemas.CategoryWrongRegion, "Wrong Region", "wrong-region"},
		{schemas.CategoryPipelineYAMLError, "Pipeline YAML Error", "pipeline-yaml-error"},
		{schemas.CategoryUnknown, "Unknown", "unknown"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.category), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.title, tc.category.Title())
			assert.Equal(t, tc.kebab, tc.category.Kebab())
		})
	}
}

func TestCategoryNormalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, schemas.CategorySyntaxError, schemas.CategorySyntaxError.Normalize())
	assert.Equal(t, schemas.CategoryUnknown, schemas.Category("TERRAFORM_MISSING_VARIABLE").Normalize())
	assert.False(t, schemas.Category("").IsKnown())
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, schemas.ClampConfidence(-0.2))
	assert.Equal(t, 0.0, schemas.ClampConfidence(math.NaN()))
	assert.Equal(t, 0.5, schemas.ClampConfidence(0.5))
	assert.Equal(t, schemas.MaxConfidence, schemas.ClampConfidence(1.0))
	assert.Equal(t, schemas.MaxConfidence, schemas.ClampConfidence(0.95))
}

func TestFailureReportHelpers(t *testing.T) {
	t.Parallel()
	report := schemas.FailureReport{
		BuildID:         42,
		PRID:            7,
		RepoURL:         "https://dev.azure.com/acme/infra/_git/platform-repo/",
		ProjectName:     "infra",
		OrganizationURL: "https://dev.azure.com/acme/",
	}

	assert.True(t, report.HasPullRequest())
	assert.Equal(t, "platform-repo", report.RepoID())
	assert.Equal(t, "https://dev.azure.com/acme/infra/_build/results?buildId=42", report.BuildLink())

	assert.False(t, schemas.FailureReport{}.HasPullRequest())
	assert.Equal(t, "", schemas.FailureReport{}.RepoID())
}
