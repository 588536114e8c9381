package scm

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// CreateFixPullRequest opens a fix PR on req.HeadBranch. When an open PR from
// that branch already exists it is reported as a duplicate and nothing is
// committed.
func (c *Client) CreateFixPullRequest(ctx context.Context, req schemas.FixPullRequest) (*schemas.FixPullRequestResult, error) {
	owner, name := req.Repo.Owner, req.Repo.Name
	logger := c.logger.With(zap.String("repo", req.Repo.FullName()), zap.String("branch", req.HeadBranch))

	existing, _, err := c.gh.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + req.HeadBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests: %w", err)
	}
	if len(existing) > 0 {
		pr := existing[0]
		logger.Info("Fix PR already open.", zap.Int("pr_number", pr.GetNumber()))
		return &schemas.FixPullRequestResult{
			Number: pr.GetNumber(),
			URL:    pr.GetHTMLURL(),
			Branch: req.HeadBranch,
			Status: schemas.PRStatusDuplicate,
		}, nil
	}

	base, sha, err := c.resolveBase(ctx, owner, name, req.BaseBranch)
	if err != nil {
		return nil, err
	}

	_, _, err = c.gh.Git.CreateRef(ctx, owner, name, &github.Reference{
		Ref:    github.String("refs/heads/" + req.HeadBranch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	switch {
	case err == nil:
		logger.Info("Branch created.", zap.String("base", base))
	case isUnprocessable(err):
		// Left over from an earlier run whose PR was closed.
		logger.Info("Branch already exists, reusing it.")
	default:
		return nil, fmt.Errorf("creating branch %s: %w", req.HeadBranch, err)
	}

	paths := make([]string, 0, len(req.FileChanges))
	for p := range req.FileChanges {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := c.putFile(ctx, owner, name, req.HeadBranch, path, req.FileChanges[path], req.Title); err != nil {
			return nil, err
		}
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.String(req.Title),
		Head:  github.String(req.HeadBranch),
		Base:  github.String(base),
		Body:  github.String(req.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("opening pull request: %w", err)
	}
	logger.Info("Fix PR created.", zap.Int("pr_number", pr.GetNumber()), zap.String("url", pr.GetHTMLURL()))

	if len(c.labels) > 0 {
		if _, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, name, pr.GetNumber(), c.labels); err != nil {
			logger.Warn("Could not add labels to PR.", zap.Error(err))
		}
	}

	return &schemas.FixPullRequestResult{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Branch: req.HeadBranch,
		Status: schemas.PRStatusCreated,
	}, nil
}

// resolveBase returns the branch to fork from and its head SHA. A source
// branch that no longer exists falls back to the configured base branch.
func (c *Client) resolveBase(ctx context.Context, owner, name, sourceRef string) (string, string, error) {
	branch := c.normalizeBranch(sourceRef)
	ref, _, err := c.gh.Git.GetRef(ctx, owner, name, "heads/"+branch)
	if err != nil && isNotFound(err) && branch != c.baseBranch {
		c.logger.Warn("Source branch not found, using base branch.", zap.String("branch", branch), zap.String("base", c.baseBranch))
		branch = c.baseBranch
		ref, _, err = c.gh.Git.GetRef(ctx, owner, name, "heads/"+branch)
	}
	if err != nil {
		return "", "", fmt.Errorf("resolving branch %s: %w", branch, err)
	}
	if ref.GetObject().GetSHA() == "" {
		return "", "", fmt.Errorf("branch %s has no head commit", branch)
	}
	return branch, ref.GetObject().GetSHA(), nil
}

// putFile creates or updates one file on branch.
func (c *Client) putFile(ctx context.Context, owner, name, branch, path, content, title string) error {
	opts := &github.RepositoryContentFileOptions{
		Message:   github.String(title),
		Content:   []byte(content),
		Branch:    github.String(branch),
		Committer: c.author,
	}

	current, _, _, err := c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && current != nil:
		opts.SHA = current.SHA
		if _, _, err := c.gh.Repositories.UpdateFile(ctx, owner, name, path, opts); err != nil {
			return fmt.Errorf("updating %s: %w", path, err)
		}
		c.logger.Debug("Updated file.", zap.String("path", path))
	case err == nil || isNotFound(err):
		opts.Message = github.String("Auto-fix: Add " + path)
		if _, _, err := c.gh.Repositories.CreateFile(ctx, owner, name, path, opts); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		c.logger.Debug("Created file.", zap.String("path", path))
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
