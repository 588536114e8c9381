package schemas

// ActionKind is the variant tag of a RemediationAction.
type ActionKind string

const (
	ActionAutoFixPRCreated ActionKind = "AUTO_FIX_PR_CREATED"
	ActionExistingPRFound  ActionKind = "EXISTING_PR_FOUND"
	ActionWorkItemCreated  ActionKind = "WORK_ITEM_CREATED"
	ActionRCACommentPosted ActionKind = "RCA_COMMENT_POSTED"
	ActionSkipped          ActionKind = "SKIPPED"
	ActionError            ActionKind = "ERROR"
)

// RemediationAction is the terminal output of a triage run. Only the fields
// relevant to Kind are populated.
type RemediationAction struct {
	Kind       ActionKind `json:"action"`
	Details    string     `json:"details"`
	PRNumber   int        `json:"pr_number,omitempty"`
	PRURL      string     `json:"pr_url,omitempty"`
	WorkItemID int        `json:"work_item_id,omitempty"`
	SkipReason string     `json:"skip_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// PRStatus reports what the source control host did with a fix PR request.
type PRStatus string

const (
	PRStatusCreated   PRStatus = "created"
	PRStatusDuplicate PRStatus = "duplicate"
)

// FixPullRequest is the payload handed to a PullRequestCreator.
type FixPullRequest struct {
	Repo        RepoRef           `json:"repo"`
	BaseBranch  string            `json:"base_branch"`
	HeadBranch  string            `json:"head_branch"`
	Title       string            `json:"title"`
	FileChanges map[string]string `json:"file_changes"`
	Description string            `json:"description"`
	Category    Category          `json:"category"`
	Confidence  float64           `json:"confidence"`
	// Fingerprint identifies "the same" failure across runs and is the
	// deduplication key for fix PRs.
	Fingerprint string `json:"fingerprint"`
}

// FixPullRequestResult describes the PR that was opened or found.
type FixPullRequestResult struct {
	Number int      `json:"number"`
	URL    string   `json:"url"`
	Branch string   `json:"branch"`
	Status PRStatus `json:"status"`
}
