// Package scm opens fix pull requests and reads file contents on GitHub.
package scm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
)

// Client implements the GitHub-side collaborators.
type Client struct {
	logger     *zap.Logger
	gh         *github.Client
	baseBranch string
	labels     []string
	author     *github.CommitAuthor
	hosts      []string
	fallback   schemas.RepoRef
}

var (
	_ schemas.PullRequestCreator = (*Client)(nil)
	_ schemas.FileFetcher        = (*Client)(nil)
	_ schemas.RepoResolver       = (*Client)(nil)
)

// NewClient initializes a GitHub client from configuration. httpClient may be
// nil.
func NewClient(cfg config.GitHubConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, schemas.NewTriageError(schemas.KindConfiguration, "github_client", errors.New("GitHub token is required"))
	}

	gh := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	hosts := []string{"github.com"}
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, schemas.NewTriageError(schemas.KindConfiguration, "github_client", fmt.Errorf("invalid api_url: %w", err))
		}
		gh.BaseURL = base
		if h := webHost(cfg.APIURL); h != "" {
			hosts = append(hosts, h)
		}
	}

	baseBranch := cfg.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	c := &Client{
		logger:     logger.Named("scm"),
		gh:         gh,
		baseBranch: baseBranch,
		labels:     cfg.Labels,
		hosts:      hosts,
		fallback:   schemas.RepoRef{Owner: cfg.RepoOwner, Name: cfg.RepoName},
	}
	if cfg.AuthorName != "" && cfg.AuthorEmail != "" {
		c.author = &github.CommitAuthor{Name: github.String(cfg.AuthorName), Email: github.String(cfg.AuthorEmail)}
	}
	return c, nil
}

// FetchFileContent returns the decoded content of a file at ref. ref may be a
// full ref name.
func (c *Client) FetchFileContent(ctx context.Context, repo schemas.RepoRef, path, ref string) (string, error) {
	opts := &github.RepositoryContentGetOptions{}
	if ref != "" {
		opts.Ref = c.normalizeBranch(ref)
	}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, opts)
	if err != nil {
		return "", fmt.Errorf("fetching %s from %s: %w", path, repo.FullName(), err)
	}
	if file == nil {
		return "", fmt.Errorf("%s in %s is a directory", path, repo.FullName())
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return content, nil
}

// normalizeBranch turns a CI source ref into a branch name. PR merge refs
// cannot be branched from and map to the base branch.
func (c *Client) normalizeBranch(ref string) string {
	switch {
	case ref == "":
		return c.baseBranch
	case strings.HasPrefix(ref, "refs/pull/"):
		return c.baseBranch
	case strings.HasPrefix(ref, "refs/heads/"):
		return strings.TrimPrefix(ref, "refs/heads/")
	default:
		return ref
	}
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func isUnprocessable(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity
}
