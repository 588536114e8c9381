package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const defaultBranch = "refs/heads/main"

type logList struct {
	Value []struct {
		ID int `json:"id"`
	} `json:"value"`
}

type buildList struct {
	Value []struct {
		ID int `json:"id"`
	} `json:"value"`
}

type buildDefinition struct {
	Process struct {
		YAMLFilename string `json:"yamlFilename"`
	} `json:"process"`
	Repository struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"repository"`
}

type gitItem struct {
	Content string `json:"content"`
}

// FetchBuildLogs concatenates every log segment of a build. Segments that
// cannot be fetched are skipped.
func (c *Client) FetchBuildLogs(ctx context.Context, project string, buildID int) (string, error) {
	var logs logList
	path := c.projectPath(project, "build/builds", strconv.Itoa(buildID), "logs")
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &logs); err != nil {
		return "", fmt.Errorf("listing logs of build %d: %w", buildID, err)
	}

	segments := make([]string, 0, len(logs.Value))
	for _, l := range logs.Value {
		var text string
		segPath := c.projectPath(project, "build/builds", strconv.Itoa(buildID), "logs", strconv.Itoa(l.ID))
		if err := c.do(ctx, request{method: http.MethodGet, path: segPath, accept: "text/plain"}, &text); err != nil {
			c.logger.Warn("Could not fetch log segment.", zap.Int("build_id", buildID), zap.Int("log_id", l.ID), zap.Error(err))
			continue
		}
		segments = append(segments, text)
	}
	return strings.Join(segments, "\n"), nil
}

// FetchLastSuccessfulLogs returns the logs of the newest succeeded build of a
// pipeline on branch, or "" when there is none.
func (c *Client) FetchLastSuccessfulLogs(ctx context.Context, project string, pipelineID int, branch string) (string, error) {
	if branch == "" {
		branch = defaultBranch
	}
	query := url.Values{}
	query.Set("definitions", strconv.Itoa(pipelineID))
	query.Set("branchName", branch)
	query.Set("resultFilter", "succeeded")
	query.Set("$top", "1")

	var builds buildList
	if err := c.do(ctx, request{method: http.MethodGet, path: c.projectPath(project, "build/builds"), query: query}, &builds); err != nil {
		return "", fmt.Errorf("listing successful builds of pipeline %d: %w", pipelineID, err)
	}
	if len(builds.Value) == 0 {
		return "", nil
	}
	return c.FetchBuildLogs(ctx, project, builds.Value[0].ID)
}

// FetchPipelineDefinition returns the YAML of a pipeline whose definition is
// stored in an Azure Repos repository. For other repository types only the
// YAML path is known, and that is returned as a comment line.
func (c *Client) FetchPipelineDefinition(ctx context.Context, project string, pipelineID int) (string, error) {
	var def buildDefinition
	if err := c.do(ctx, request{method: http.MethodGet, path: c.projectPath(project, "build/definitions", strconv.Itoa(pipelineID))}, &def); err != nil {
		return "", fmt.Errorf("fetching definition of pipeline %d: %w", pipelineID, err)
	}
	yamlPath := def.Process.YAMLFilename
	if yamlPath == "" {
		return "", fmt.Errorf("pipeline %d is not a YAML pipeline", pipelineID)
	}
	if !strings.EqualFold(def.Repository.Type, "TfsGit") || def.Repository.ID == "" {
		return fmt.Sprintf("# %s (%s repository %s)", yamlPath, def.Repository.Type, def.Repository.Name), nil
	}

	query := url.Values{}
	query.Set("path", "/"+strings.TrimPrefix(yamlPath, "/"))
	query.Set("includeContent", "true")
	var item gitItem
	itemPath := c.projectPath(project, "git/repositories", url.PathEscape(def.Repository.ID), "items")
	if err := c.do(ctx, request{method: http.MethodGet, path: itemPath, query: query}, &item); err != nil {
		return "", fmt.Errorf("fetching %s: %w", yamlPath, err)
	}
	return item.Content, nil
}
