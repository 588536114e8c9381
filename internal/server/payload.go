package server

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// flexInt accepts a JSON number, a numeric string, an empty string or null.
// Pipeline templates often send ids as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid id %s: %w", s, err)
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			*f = 0
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid id %q: not an integer", s)
	}
	*f = flexInt(n)
	return nil
}

// failurePayload is the webhook body sent by the failed pipeline.
type failurePayload struct {
	PipelineID      flexInt `json:"pipelineId"`
	BuildID         flexInt `json:"buildId"`
	BuildNumber     string  `json:"buildNumber"`
	PRID            flexInt `json:"prId"`
	FailedStage     string  `json:"failedStage"`
	FailedJob       string  `json:"failedJob"`
	FailedTask      string  `json:"failedTask"`
	RepoURL         string  `json:"repoUrl"`
	SourceBranch    string  `json:"sourceBranch"`
	ProjectName     string  `json:"projectName"`
	OrganizationURL string  `json:"organizationUrl"`
}

func (p failurePayload) report(now time.Time) schemas.FailureReport {
	return schemas.FailureReport{
		PipelineID:      int(p.PipelineID),
		BuildID:         int(p.BuildID),
		BuildNumber:     p.BuildNumber,
		PRID:            int(p.PRID),
		FailedStage:     p.FailedStage,
		FailedJob:       p.FailedJob,
		FailedTask:      p.FailedTask,
		RepoURL:         p.RepoURL,
		SourceBranch:    p.SourceBranch,
		ProjectName:     p.ProjectName,
		OrganizationURL: p.OrganizationURL,
		Timestamp:       now.UTC(),
	}
}

type rcaSummary struct {
	Category    schemas.Category `json:"category"`
	Confidence  float64          `json:"confidence"`
	Explanation string           `json:"explanation"`
}

// failureResponse is the 202 body returned once a run completes.
type failureResponse struct {
	Status         string                `json:"status"`
	RunID          string                `json:"run_id"`
	FailureContext schemas.FailureReport `json:"failure_context"`
	RCA            rcaSummary            `json:"rca"`
	ActionTaken    schemas.ActionKind    `json:"action_taken"`
	Details        string                `json:"details"`
	PRURL          string                `json:"pr_url,omitempty"`
	WorkItemID     int                   `json:"work_item_id,omitempty"`
	Degraded       []string              `json:"degraded,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
