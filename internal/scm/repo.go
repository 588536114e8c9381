package scm

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

// ParseRepoURL extracts owner and name from an https, ssh or scp-like
// repository URL on one of hosts.
func ParseRepoURL(repoURL string, hosts ...string) (schemas.RepoRef, bool) {
	if repoURL == "" {
		return schemas.RepoRef{}, false
	}
	ep, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return schemas.RepoRef{}, false
	}
	if !hostAllowed(ep.Host, hosts) {
		return schemas.RepoRef{}, false
	}

	path := strings.Trim(ep.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return schemas.RepoRef{}, false
	}
	return schemas.RepoRef{Owner: parts[0], Name: parts[1]}, true
}

func hostAllowed(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		if host == strings.ToLower(h) || host == "www."+strings.ToLower(h) {
			return true
		}
	}
	return false
}

// ResolveRepo maps a failure's repository URL onto a GitHub repository,
// falling back to the configured owner and name when the URL is not a
// GitHub URL (e.g. an Azure Repos URL).
func (c *Client) ResolveRepo(repoURL string) (schemas.RepoRef, error) {
	if ref, ok := ParseRepoURL(repoURL, c.hosts...); ok {
		return ref, nil
	}
	if c.fallback.Owner != "" && c.fallback.Name != "" {
		return c.fallback, nil
	}
	return schemas.RepoRef{}, schemas.NewTriageError(schemas.KindConfiguration, "resolve_repo",
		fmt.Errorf("cannot map %q to a GitHub repository and no default repository is configured", repoURL))
}

func webHost(apiURL string) string {
	if apiURL == "" {
		return ""
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "api.")
}
