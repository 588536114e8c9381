// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close provides a mock function for closing the client.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Evidence Source Mocks --

// MockBuildLogSource mocks the schemas.BuildLogSource interface.
type MockBuildLogSource struct {
	mock.Mock
}

func (m *MockBuildLogSource) FetchBuildLogs(ctx context.Context, project string, buildID int) (string, error) {
	args := m.Called(ctx, project, buildID)
	return args.String(0), args.Error(1)
}

func (m *MockBuildLogSource) FetchLastSuccessfulLogs(ctx context.Context, project string, pipelineID int, branch string) (string, error) {
	args := m.Called(ctx, project, pipelineID, branch)
	return args.String(0), args.Error(1)
}

func (m *MockBuildLogSource) FetchPipelineDefinition(ctx context.Context, project string, pipelineID int) (string, error) {
	args := m.Called(ctx, project, pipelineID)
	return args.String(0), args.Error(1)
}

// MockPullRequestSource mocks the schemas.PullRequestSource interface.
type MockPullRequestSource struct {
	mock.Mock
}

func (m *MockPullRequestSource) FetchPullRequestChanges(ctx context.Context, project, repoID string, prID int) (*schemas.PullRequestChanges, error) {
	args := m.Called(ctx, project, repoID, prID)
	changes, _ := args.Get(0).(*schemas.PullRequestChanges)
	return changes, args.Error(1)
}

// MockFileFetcher mocks the schemas.FileFetcher interface.
type MockFileFetcher struct {
	mock.Mock
}

func (m *MockFileFetcher) FetchFileContent(ctx context.Context, repo schemas.RepoRef, path, ref string) (string, error) {
	args := m.Called(ctx, repo, path, ref)
	return args.String(0), args.Error(1)
}

// -- Remediation Target Mocks --

// MockPullRequestCreator mocks the schemas.PullRequestCreator interface.
type MockPullRequestCreator struct {
	mock.Mock
}

func (m *MockPullRequestCreator) CreateFixPullRequest(ctx context.Context, req schemas.FixPullRequest) (*schemas.FixPullRequestResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*schemas.FixPullRequestResult)
	return res, args.Error(1)
}

// MockWorkItemTracker mocks the schemas.WorkItemTracker interface.
type MockWorkItemTracker struct {
	mock.Mock
}

func (m *MockWorkItemTracker) CreateWorkItem(ctx context.Context, project, title, description string) (int, error) {
	args := m.Called(ctx, project, title, description)
	return args.Int(0), args.Error(1)
}

// MockCommentPoster mocks the schemas.CommentPoster interface.
type MockCommentPoster struct {
	mock.Mock
}

func (m *MockCommentPoster) PostComment(ctx context.Context, project, repoID string, prID int, text string) error {
	args := m.Called(ctx, project, repoID, prID, text)
	return args.Error(0)
}

// MockRunRecorder mocks the schemas.RunRecorder interface.
type MockRunRecorder struct {
	mock.Mock
}

func (m *MockRunRecorder) RecordRun(ctx context.Context, runID string, report schemas.FailureReport, result schemas.ClassificationResult, action schemas.RemediationAction) error {
	args := m.Called(ctx, runID, report, result, action)
	return args.Error(0)
}
