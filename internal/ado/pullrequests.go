package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

type pullRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   *struct {
		DisplayName string `json:"displayName"`
	} `json:"createdBy"`
}

type commitList struct {
	Value []struct {
		Comment string `json:"comment"`
	} `json:"value"`
}

type iterationList struct {
	Value []struct {
		ID int `json:"id"`
	} `json:"value"`
}

type iterationChanges struct {
	ChangeEntries []struct {
		Item *struct {
			Path string `json:"path"`
		} `json:"item"`
		ChangeType string `json:"changeType"`
	} `json:"changeEntries"`
}

// commentThreadActive is the status code of an active PR thread.
const commentThreadActive = 1

type threadComment struct {
	ParentCommentID int    `json:"parentCommentId"`
	Content         string `json:"content"`
	CommentType     int    `json:"commentType"`
}

type commentThread struct {
	Comments []threadComment `json:"comments"`
	Status   int             `json:"status"`
}

func (c *Client) pullRequestPath(project, repoID string, prID int, parts ...string) string {
	all := append([]string{"git/repositories", url.PathEscape(repoID), "pullrequests", strconv.Itoa(prID)}, parts...)
	return c.projectPath(project, all...)
}

// FetchPullRequestChanges returns the title, author, commit messages and the
// files changed in the latest iteration of a pull request.
func (c *Client) FetchPullRequestChanges(ctx context.Context, project, repoID string, prID int) (*schemas.PullRequestChanges, error) {
	var pr pullRequest
	if err := c.do(ctx, request{method: http.MethodGet, path: c.pullRequestPath(project, repoID, prID)}, &pr); err != nil {
		return nil, fmt.Errorf("fetching pull request %d: %w", prID, err)
	}

	changes := &schemas.PullRequestChanges{
		Title:       pr.Title,
		Description: pr.Description,
		Author:      "Unknown",
	}
	if pr.CreatedBy != nil && pr.CreatedBy.DisplayName != "" {
		changes.Author = pr.CreatedBy.DisplayName
	}

	var commits commitList
	if err := c.do(ctx, request{method: http.MethodGet, path: c.pullRequestPath(project, repoID, prID, "commits")}, &commits); err != nil {
		return nil, fmt.Errorf("fetching commits of pull request %d: %w", prID, err)
	}
	for _, commit := range commits.Value {
		changes.Commits = append(changes.Commits, commit.Comment)
	}

	var iterations iterationList
	if err := c.do(ctx, request{method: http.MethodGet, path: c.pullRequestPath(project, repoID, prID, "iterations")}, &iterations); err != nil {
		return nil, fmt.Errorf("fetching iterations of pull request %d: %w", prID, err)
	}
	if len(iterations.Value) == 0 {
		return changes, nil
	}

	last := iterations.Value[len(iterations.Value)-1].ID
	var entries iterationChanges
	path := c.pullRequestPath(project, repoID, prID, "iterations", strconv.Itoa(last), "changes")
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &entries); err != nil {
		return nil, fmt.Errorf("fetching changes of pull request %d: %w", prID, err)
	}
	for _, e := range entries.ChangeEntries {
		file := schemas.ChangedFile{Path: "unknown", ChangeType: "unknown"}
		if e.Item != nil && e.Item.Path != "" {
			file.Path = e.Item.Path
		}
		if e.ChangeType != "" {
			file.ChangeType = e.ChangeType
		}
		changes.Files = append(changes.Files, file)
	}
	return changes, nil
}

// PostComment opens an active comment thread on a pull request.
func (c *Client) PostComment(ctx context.Context, project, repoID string, prID int, text string) error {
	thread := commentThread{
		Comments: []threadComment{{ParentCommentID: 0, Content: text, CommentType: 1}},
		Status:   commentThreadActive,
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: c.pullRequestPath(project, repoID, prID, "threads"), body: thread}, nil); err != nil {
		return fmt.Errorf("posting comment on pull request %d: %w", prID, err)
	}
	c.logger.Info("Posted comment to PR.", zap.Int("pr_id", prID))
	return nil
}
