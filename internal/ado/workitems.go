package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const workItemTags = "AI-Generated; Pipeline-Failure"

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

type workItem struct {
	ID int `json:"id"`
}

// CreateWorkItem files a work item of the configured type, falling back to a
// Task when that type cannot be created in the project.
func (c *Client) CreateWorkItem(ctx context.Context, project, title, description string) (int, error) {
	document := []patchOperation{
		{Op: "add", Path: "/fields/System.Title", Value: title},
		{Op: "add", Path: "/fields/System.Description", Value: description},
		{Op: "add", Path: "/fields/System.Tags", Value: workItemTags},
	}

	id, err := c.createWorkItem(ctx, project, c.workItemType, document)
	if err != nil && c.workItemType != "Task" {
		c.logger.Warn("Could not create work item, trying Task.", zap.String("type", c.workItemType), zap.Error(err))
		id, err = c.createWorkItem(ctx, project, "Task", document)
	}
	if err != nil {
		return 0, err
	}
	c.logger.Info("Created work item.", zap.Int("id", id))
	return id, nil
}

func (c *Client) createWorkItem(ctx context.Context, project, itemType string, document []patchOperation) (int, error) {
	var item workItem
	req := request{
		method:      http.MethodPost,
		path:        c.projectPath(project, "wit/workitems", "$"+url.PathEscape(itemType)),
		body:        document,
		contentType: "application/json-patch+json",
	}
	if err := c.do(ctx, req, &item); err != nil {
		return 0, fmt.Errorf("creating %s work item: %w", itemType, err)
	}
	if item.ID == 0 {
		return 0, fmt.Errorf("creating %s work item: response carried no id", itemType)
	}
	return item.ID, nil
}
