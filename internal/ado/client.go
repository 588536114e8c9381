// Package ado talks to the Azure DevOps REST API. It supplies build logs,
// pull request changes and pipeline definitions as evidence, and files work
// items and PR comments as remediation.
package ado

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is an Azure DevOps REST client authenticated with a PAT.
type Client struct {
	logger       *zap.Logger
	baseURL      string
	authHeader   string
	apiVersion   string
	workItemType string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxElapsed   time.Duration
}

var (
	_ schemas.BuildLogSource    = (*Client)(nil)
	_ schemas.PullRequestSource = (*Client)(nil)
	_ schemas.WorkItemTracker   = (*Client)(nil)
	_ schemas.CommentPoster     = (*Client)(nil)
)

// HTTPError is a non-2xx response from Azure DevOps.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("azure devops API error: status %d, body: %s", e.StatusCode, e.Body)
}

// NewClient initializes the client.
func NewClient(cfg config.ADOConfig, logger *zap.Logger) (*Client, error) {
	if cfg.OrganizationURL == "" || cfg.PAT == "" {
		return nil, schemas.NewTriageError(schemas.KindConfiguration, "ado_client",
			errors.New("organization URL and PAT must be set"))
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "7.1"
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	workItemType := cfg.WorkItemType
	if workItemType == "" {
		workItemType = "Bug"
	}

	return &Client{
		logger:       logger.Named("ado"),
		baseURL:      strings.TrimRight(cfg.OrganizationURL, "/"),
		authHeader:   "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.PAT)),
		apiVersion:   apiVersion,
		workItemType: workItemType,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, burst),
		maxElapsed:   cfg.MaxElapsed,
	}, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	contentType string
	accept      string
}

// do executes a request with rate limiting and retries. Throttling, server
// errors and network errors are retried; other statuses are permanent. When
// out is a *string the raw body is stored, otherwise it is decoded as JSON.
func (c *Client) do(ctx context.Context, req request, out any) error {
	query := req.query
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	target := c.baseURL + req.path + "?" + query.Encode()

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = time.Minute
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Authorization", c.authHeader)
		accept := req.accept
		if accept == "" {
			accept = "application/json"
		}
		httpReq.Header.Set("Accept", accept)
		if payload != nil {
			ct := req.contentType
			if ct == "" {
				ct = "application/json"
			}
			httpReq.Header.Set("Content-Type", ct)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Debug("Network error calling Azure DevOps, retrying.", zap.String("path", req.path), zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return httpErr
			default:
				return backoff.Permanent(httpErr)
			}
		}

		if out == nil {
			return nil
		}
		if s, ok := out.(*string); ok {
			*s = string(respBody)
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response from %s: %w", req.path, err))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (c *Client) projectPath(project string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(url.PathEscape(project))
	b.WriteString("/_apis")
	for _, p := range parts {
		b.WriteString("/")
		b.WriteString(p)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
