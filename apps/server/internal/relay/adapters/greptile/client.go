// Package greptile implements relay.Indexer against a Greptile-compatible
// indexing service. Request bodies have a fixed shape; response bodies are
// relayed without being decoded.
package greptile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tilsley/coverbot/apps/server/internal/relay"
)

// DefaultBaseURL is the public Greptile v2 API.
const DefaultBaseURL = "https://api.greptile.com/v2"

// ServiceName identifies this upstream in ExternalServiceError values.
const ServiceName = "indexer"

// Compile-time check: *Client implements relay.Indexer.
var _ relay.Indexer = (*Client)(nil)

// Client talks to the indexing service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client pointing at baseURL. Pass "" for DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type repositoryRequest struct {
	Remote     string `json:"remote"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Reload     bool   `json:"reload"`
	Notify     bool   `json:"notify"`
}

type message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Role    string `json:"role"`
}

type repositoryScope struct {
	Remote     string `json:"remote"`
	Branch     string `json:"branch"`
	Repository string `json:"repository"`
}

type queryRequest struct {
	Messages     []message         `json:"messages"`
	Repositories []repositoryScope `json:"repositories"`
	SessionID    string            `json:"sessionId,omitempty"`
	Genius       bool              `json:"genius,omitempty"`
}

// Index handles POST /repositories.
func (c *Client) Index(ctx context.Context, creds relay.Credentials, target relay.IndexTarget) (*relay.Passthrough, error) {
	return c.post(ctx, creds, "/repositories", repositoryRequest{
		Remote:     relay.Remote,
		Repository: target.Repo.String(),
		Branch:     target.Branch,
		Reload:     target.Reload,
		Notify:     target.Notify,
	})
}

// Query handles POST /query with a single user message scoped to one repository.
func (c *Client) Query(ctx context.Context, creds relay.Credentials, q relay.IndexQuery) (*relay.Passthrough, error) {
	return c.post(ctx, creds, "/query", queryRequest{
		Messages: []message{{ID: "1", Content: q.Content, Role: "user"}},
		Repositories: []repositoryScope{{
			Remote:     relay.Remote,
			Branch:     q.Branch,
			Repository: q.Repo.String(),
		}},
		SessionID: q.SessionID,
		Genius:    q.Genius,
	})
}

func (c *Client) post(ctx context.Context, creds relay.Credentials, path string, payload any) (*relay.Passthrough, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.IndexerKey)
	httpReq.Header.Set("X-GitHub-Token", creds.GitHubToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	defer func() { //nolint:errcheck // response body close errors are non-actionable after reading
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, relay.ExternalServiceError{
			Service:     ServiceName,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        respBody,
		}
	}

	return &relay.Passthrough{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
