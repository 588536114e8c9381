// internal/autofix/target.go
package autofix

import (
	"path"
	"regexp"
	"strings"
)

// DefaultTargetDir is used when no other source yields a working directory.
const DefaultTargetDir = "infrastructure/test-apps/infra-only/terraform/scenarios/missing-variable"

// sourceRootTokens mark the checkout root in agent paths. Everything after the
// token is relative to the repository root.
var sourceRootTokens = []string{
	"$(Build.SourcesDirectory)/",
	"$(System.DefaultWorkingDirectory)/",
	"$(Pipeline.Workspace)/s/",
	"/s/",
}

var (
	workingDirRegex = regexp.MustCompile(`(?i)working\s*directory\s*[:=]?\s*['"]?([^\s'"]+)`)
	cdRegex         = regexp.MustCompile(`\bcd\s+['"]?([^\s'";&|]+)`)
)

// TargetResolver works out which repository directory a Terraform fix belongs in.
type TargetResolver struct {
	// PipelineTargets maps known pipeline definition IDs to directories.
	PipelineTargets map[int]string
	// DefaultDir is the last resort.
	DefaultDir string
}

// NewTargetResolver returns a resolver with the given pipeline table and default.
func NewTargetResolver(pipelineTargets map[int]string, defaultDir string) *TargetResolver {
	if defaultDir == "" {
		defaultDir = DefaultTargetDir
	}
	return &TargetResolver{PipelineTargets: pipelineTargets, DefaultDir: defaultDir}
}

// Resolve returns a repository-relative directory, trying in order: an explicit
// working-directory line, a cd into the checkout root, the last cd into an
// infrastructure/ path before "terraform init", the pipeline table, and the
// default.
func (r *TargetResolver) Resolve(pipelineID int, log string) string {
	lines := strings.Split(log, "\n")

	for _, line := range lines {
		if m := workingDirRegex.FindStringSubmatch(line); len(m) > 1 {
			if rel, ok := relativeToSourceRoot(m[1]); ok {
				return rel
			}
		}
	}

	for _, line := range lines {
		for _, m := range cdRegex.FindAllStringSubmatch(line, -1) {
			if rel, ok := relativeToSourceRoot(m[1]); ok {
				return rel
			}
		}
	}

	if dir, ok := cdBeforeInit(lines); ok {
		return dir
	}

	if dir, ok := r.PipelineTargets[pipelineID]; ok && dir != "" {
		return cleanRel(dir)
	}
	return cleanRel(r.DefaultDir)
}

func relativeToSourceRoot(p string) (string, bool) {
	p = strings.ReplaceAll(p, `\`, "/")
	for _, token := range sourceRootTokens {
		if i := strings.Index(p, token); i >= 0 {
			rel := cleanRel(p[i+len(token):])
			if rel == "" {
				return "", false
			}
			return rel, true
		}
	}
	return "", false
}

func cdBeforeInit(lines []string) (string, bool) {
	initAt := -1
	for i, line := range lines {
		if strings.Contains(line, "terraform init") {
			initAt = i
			break
		}
	}
	if initAt < 0 {
		return "", false
	}
	for i := initAt; i >= 0; i-- {
		for _, m := range cdRegex.FindAllStringSubmatch(lines[i], -1) {
			arg := strings.ReplaceAll(m[1], `\`, "/")
			if j := strings.Index(arg, "infrastructure/"); j >= 0 {
				if rel := cleanRel(arg[j:]); rel != "" {
					return rel, true
				}
			}
		}
	}
	return "", false
}

func cleanRel(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}
