// internal/autofix/interfaces.go
package autofix

import (
	"context"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// FixGeneratorInterface defines the contract for a component that turns a
// classification into concrete file changes.
type FixGeneratorInterface interface {
	// Generate returns a map of repository path to new file content, or an
	// error wrapping schemas.ErrNoFix when no change can be derived.
	Generate(ctx context.Context, report schemas.FailureReport, evidence schemas.EvidenceBundle, result schemas.ClassificationResult) (map[string]string, error)
}

var _ FixGeneratorInterface = (*Generator)(nil)
