package remediation

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// Fingerprint identifies "the same" failure across runs: the same pipeline,
// the same category and the same set of touched files. It is the
// deduplication key for fix pull requests.
func Fingerprint(pipelineID int, category schemas.Category, paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", pipelineID, category, strings.Join(sorted, ","))
	return fmt.Sprintf("%016x", h.Sum64())
}

// BranchName returns the fix branch for a category and fingerprint.
func BranchName(category schemas.Category, fingerprint string) string {
	short := fingerprint
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("auto-fix/%s-%s", category.Kebab(), short)
}
