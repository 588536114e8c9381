package schemas

import (
	"fmt"
	"strings"
	"time"
)

// FailureReport describes a single failed pipeline run as delivered by the CI
// webhook. It is created once per event and treated as read-only afterwards.
type FailureReport struct {
	PipelineID      int       `json:"pipeline_id"`
	BuildID         int       `json:"build_id"`
	BuildNumber     string    `json:"build_number"`
	PRID            int       `json:"pr_id,omitempty"` // Zero when the build is not a PR build.
	FailedStage     string    `json:"failed_stage"`
	FailedJob       string    `json:"failed_job"`
	FailedTask      string    `json:"failed_task"`
	RepoURL         string    `json:"repo_url"`
	SourceBranch    string    `json:"source_branch"`
	ProjectName     string    `json:"project_name"`
	OrganizationURL string    `json:"organization_url"`
	Timestamp       time.Time `json:"timestamp"`
}

// HasPullRequest reports whether the failure originated on a pull request build.
func (r FailureReport) HasPullRequest() bool {
	return r.PRID > 0
}

// RepoID returns the repository identifier, which is the last path segment of
// the repository URL.
func (r FailureReport) RepoID() string {
	trimmed := strings.TrimRight(r.RepoURL, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// BuildLink returns the web URL of the failed build.
func (r FailureReport) BuildLink() string {
	return fmt.Sprintf("%s/%s/_build/results?buildId=%d",
		strings.TrimRight(r.OrganizationURL, "/"), r.ProjectName, r.BuildID)
}

// ChangedFile is one entry of a pull request's change list.
type ChangedFile struct {
	Path       string `json:"path"`
	ChangeType string `json:"change_type"`
}

// PullRequestChanges summarizes what a pull request changed.
type PullRequestChanges struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Author      string        `json:"author"`
	Commits     []string      `json:"commits,omitempty"`
	Files       []ChangedFile `json:"files_changed"`
}

// EvidenceBundle is everything gathered about a failure before classification.
// It lives only for the duration of one run.
type EvidenceBundle struct {
	BuildLogs          string              `json:"build_logs"`
	LastSuccessLogs    string              `json:"last_success_logs,omitempty"`
	PullRequest        *PullRequestChanges `json:"pr_changes,omitempty"`
	PipelineDefinition string              `json:"pipeline_yaml,omitempty"`
	// Degraded names the evidence sources that failed and were replaced by
	// empty values.
	Degraded []string `json:"degraded,omitempty"`
}

// RepoRef identifies a repository on the source control host.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns "owner/name".
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}
