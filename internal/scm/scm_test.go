package scm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(config.GitHubConfig{
		Token:       "ghp_test",
		RepoOwner:   "fallback-org",
		RepoName:    "fallback-repo",
		BaseBranch:  "main",
		APIURL:      server.URL,
		Labels:      []string{"automated", "ai-generated"},
		AuthorName:  "bot",
		AuthorEmail: "bot@example.com",
	}, server.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestParseRepoURL(t *testing.T) {
	testCases := []struct {
		url   string
		want  schemas.RepoRef
		found bool
	}{
		{"https://github.com/acme/platform", schemas.RepoRef{Owner: "acme", Name: "platform"}, true},
		{"https://github.com/acme/platform.git", schemas.RepoRef{Owner: "acme", Name: "platform"}, true},
		{"git@github.com:acme/platform.git", schemas.RepoRef{Owner: "acme", Name: "platform"}, true},
		{"ssh://git@github.com/acme/platform", schemas.RepoRef{Owner: "acme", Name: "platform"}, true},
		{"https://dev.azure.com/acme/infra/_git/platform", schemas.RepoRef{}, false},
		{"https://github.com/acme", schemas.RepoRef{}, false},
		{"", schemas.RepoRef{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, ok := ParseRepoURL(tc.url, "github.com")
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveRepo(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())

	ref, err := c.ResolveRepo("https://github.com/acme/platform")
	require.NoError(t, err)
	assert.Equal(t, "acme/platform", ref.FullName())

	ref, err = c.ResolveRepo("https://dev.azure.com/acme/infra/_git/platform")
	require.NoError(t, err)
	assert.Equal(t, "fallback-org/fallback-repo", ref.FullName())

	c.fallback = schemas.RepoRef{}
	_, err = c.ResolveRepo("https://dev.azure.com/acme/infra/_git/platform")
	require.Error(t, err)
	assert.True(t, schemas.IsKind(err, schemas.KindConfiguration))
}

func TestNormalizeBranch(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	assert.Equal(t, "feature/x", c.normalizeBranch("refs/heads/feature/x"))
	assert.Equal(t, "main", c.normalizeBranch("refs/pull/12/merge"))
	assert.Equal(t, "main", c.normalizeBranch(""))
	assert.Equal(t, "dev", c.normalizeBranch("dev"))
}

func TestFetchFileContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/platform/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "infra/variables.tf", r.PathValue("path"))
		assert.Equal(t, "dev", r.URL.Query().Get("ref"))
		writeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"encoding": "base64",
			"path":     "infra/variables.tf",
			"sha":      "abc",
			"content":  base64.StdEncoding.EncodeToString([]byte(`variable "x" {}`)),
		})
	})

	content, err := newTestClient(t, mux).FetchFileContent(context.Background(),
		schemas.RepoRef{Owner: "acme", Name: "platform"}, "infra/variables.tf", "refs/heads/dev")
	require.NoError(t, err)
	assert.Equal(t, `variable "x" {}`, content)
}

func fixRequest() schemas.FixPullRequest {
	return schemas.FixPullRequest{
		Repo:       schemas.RepoRef{Owner: "acme", Name: "platform"},
		BaseBranch: "refs/heads/gone",
		HeadBranch: "auto-fix/missing-variable-0123abcd",
		Title:      "Auto-fix: Missing Variable",
		FileChanges: map[string]string{
			"infra/variables.tf": "updated",
			"infra/new.tf":       "created",
		},
		Description: "body",
		Category:    schemas.CategoryMissingVariable,
	}
}

func TestCreateFixPullRequest(t *testing.T) {
	t.Run("creates branch, files and PR", func(t *testing.T) {
		var (
			mu      sync.Mutex
			created []string
			updated []string
			labels  []string
			base    string
		)

		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/platform/pulls", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "acme:auto-fix/missing-variable-0123abcd", r.URL.Query().Get("head"))
			assert.Equal(t, "open", r.URL.Query().Get("state"))
			writeJSON(w, http.StatusOK, []any{})
		})
		mux.HandleFunc("GET /repos/acme/platform/git/ref/heads/gone", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		})
		mux.HandleFunc("GET /repos/acme/platform/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]string{"sha": "base-sha"}})
		})
		mux.HandleFunc("POST /repos/acme/platform/git/refs", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refs/heads/auto-fix/missing-variable-0123abcd", body["ref"])
			assert.Equal(t, "base-sha", body["sha"])
			writeJSON(w, http.StatusCreated, map[string]any{"ref": body["ref"]})
		})
		mux.HandleFunc("GET /repos/acme/platform/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("path") == "infra/variables.tf" {
				writeJSON(w, http.StatusOK, map[string]string{"type": "file", "sha": "old-sha", "path": "infra/variables.tf"})
				return
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		})
		mux.HandleFunc("PUT /repos/acme/platform/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "auto-fix/missing-variable-0123abcd", body["branch"])
			mu.Lock()
			defer mu.Unlock()
			if body["sha"] == "old-sha" {
				updated = append(updated, r.PathValue("path"))
			} else {
				created = append(created, r.PathValue("path"))
			}
			writeJSON(w, http.StatusOK, map[string]any{"content": map[string]string{"path": r.PathValue("path")}})
		})
		mux.HandleFunc("POST /repos/acme/platform/pulls", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			base = body["base"]
			mu.Unlock()
			writeJSON(w, http.StatusCreated, map[string]any{"number": 17, "html_url": "https://github.com/acme/platform/pull/17"})
		})
		mux.HandleFunc("POST /repos/acme/platform/issues/17/labels", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&labels))
			mu.Unlock()
			writeJSON(w, http.StatusOK, []any{})
		})

		res, err := newTestClient(t, mux).CreateFixPullRequest(context.Background(), fixRequest())
		require.NoError(t, err)

		assert.Equal(t, schemas.PRStatusCreated, res.Status)
		assert.Equal(t, 17, res.Number)
		assert.Equal(t, "https://github.com/acme/platform/pull/17", res.URL)
		assert.Equal(t, "main", base)
		assert.Equal(t, []string{"infra/new.tf"}, created)
		assert.Equal(t, []string{"infra/variables.tf"}, updated)
		assert.Equal(t, []string{"automated", "ai-generated"}, labels)
	})

	t.Run("duplicate", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/platform/pulls", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{{"number": 9, "html_url": "https://github.com/acme/platform/pull/9"}})
		})

		res, err := newTestClient(t, mux).CreateFixPullRequest(context.Background(), fixRequest())
		require.NoError(t, err)
		assert.Equal(t, schemas.PRStatusDuplicate, res.Status)
		assert.Equal(t, 9, res.Number)
	})

	t.Run("base branch missing", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /repos/acme/platform/pulls", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []any{})
		})
		mux.HandleFunc("GET /repos/acme/platform/git/ref/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		})

		_, err := newTestClient(t, mux).CreateFixPullRequest(context.Background(), fixRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolving branch main")
	})
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(config.GitHubConfig{}, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, schemas.IsKind(err, schemas.KindConfiguration))
}
