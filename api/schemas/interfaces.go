package schemas

import (
	"context"
)

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	MaxTokens       int     `json:"max_tokens"`        // Upper bound on generated tokens. Zero uses the client default.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Tier         ModelTier         `json:"tier"`          // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
// This is the text-completion capability the classifier consumes.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client (e.g., network connections, SDK resources).
	Close() error
}

// -- Collaborator Capabilities --
//
// The triage core never talks to a vendor API directly. Everything it needs from
// the outside world is expressed as one of the small capabilities below, so each
// can be faked deterministically in tests.

// BuildLogSource fetches raw CI build logs.
type BuildLogSource interface {
	// FetchBuildLogs returns the concatenated logs of a single build. An empty
	// string is acceptable when only some log segments could be fetched.
	FetchBuildLogs(ctx context.Context, project string, buildID int) (string, error)
	// FetchLastSuccessfulLogs returns the logs of the newest succeeded build of a
	// pipeline on the given branch, or an empty string if there is none.
	FetchLastSuccessfulLogs(ctx context.Context, project string, pipelineID int, branch string) (string, error)
	// FetchPipelineDefinition returns the pipeline definition text, if available.
	FetchPipelineDefinition(ctx context.Context, project string, pipelineID int) (string, error)
}

// PullRequestSource fetches the change summary of a pull request.
type PullRequestSource interface {
	FetchPullRequestChanges(ctx context.Context, project, repoID string, prID int) (*PullRequestChanges, error)
}

// FileFetcher reads the current content of a file in the target repository.
type FileFetcher interface {
	// FetchFileContent returns the file content at ref. ref may be empty to use
	// the repository's default branch.
	FetchFileContent(ctx context.Context, repo RepoRef, path, ref string) (string, error)
}

// PullRequestCreator opens automated fix pull requests. Implementations must
// detect an already-open fix PR for the same fingerprint and report it with
// PRStatusDuplicate instead of opening a second one.
type PullRequestCreator interface {
	CreateFixPullRequest(ctx context.Context, req FixPullRequest) (*FixPullRequestResult, error)
}

// WorkItemTracker files tracking work items.
type WorkItemTracker interface {
	CreateWorkItem(ctx context.Context, project, title, description string) (int, error)
}

// CommentPoster posts a comment to a pull request.
type CommentPoster interface {
	PostComment(ctx context.Context, project, repoID string, prID int, text string) error
}

// RunRecorder persists the outcome of a triage run. It is a host concern; the
// triage core keeps no state between runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, runID string, report FailureReport, result ClassificationResult, action RemediationAction) error
}

// RepoResolver maps a repository URL from a failure report to a repository on
// the source control host.
type RepoResolver interface {
	ResolveRepo(repoURL string) (RepoRef, error)
}
