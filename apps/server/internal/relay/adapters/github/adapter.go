// Package github implements relay.GitHost with the Git Data API using the
// go-github library. Wire it up through Provider, which builds an Adapter per
// caller token with apps/server/internal/platform/github.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	gogithub "github.com/google/go-github/v75/github"

	platformgithub "github.com/tilsley/coverbot/apps/server/internal/platform/github"
	"github.com/tilsley/coverbot/apps/server/internal/relay"
)

// ServiceName identifies this upstream in ExternalServiceError values.
const ServiceName = "github"

const (
	fileMode = "100644"
	blobType = "blob"
)

// Compile-time checks.
var (
	_ relay.GitHost         = (*Adapter)(nil)
	_ relay.GitHostProvider = (*Provider)(nil)
)

// Provider builds token-scoped Adapters against one API base URL.
type Provider struct {
	baseURL   string
	transport http.RoundTripper
}

// NewProvider creates a Provider. Pass baseURL="" for api.github.com and
// transport=nil for http.DefaultTransport.
func NewProvider(baseURL string, transport http.RoundTripper) *Provider {
	return &Provider{baseURL: baseURL, transport: transport}
}

// ForToken returns an Adapter authenticated with token.
func (p *Provider) ForToken(token string) relay.GitHost {
	return New(platformgithub.NewTokenClient(token, p.baseURL, p.transport))
}

// Adapter wraps a go-github client and implements relay.GitHost.
type Adapter struct {
	gh *gogithub.Client
}

// New creates an Adapter from an authenticated *github.Client.
func New(gh *gogithub.Client) *Adapter {
	return &Adapter{gh: gh}
}

// GetBranchSHA reads refs/heads/<branch> and returns the commit it points at.
func (a *Adapter) GetBranchSHA(ctx context.Context, repo relay.Repo, branch string) (string, error) {
	ref, resp, err := a.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "refs/heads/"+branch)
	if err != nil {
		return "", upstreamError(resp, err)
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("ref heads/%s has no object sha", branch)
	}
	return sha, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha. GitHub answers 422
// when the branch already exists.
func (a *Adapter) CreateBranch(ctx context.Context, repo relay.Repo, branch, sha string) error {
	_, resp, err := a.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, gogithub.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	})
	if err != nil {
		return upstreamError(resp, err)
	}
	return nil
}

// CreateTree layers files over baseTree. Each entry carries its full content
// inline, so no separate blobs are created.
func (a *Adapter) CreateTree(ctx context.Context, repo relay.Repo, baseTree string, files []relay.FileChange) (string, error) {
	entries := make([]*gogithub.TreeEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &gogithub.TreeEntry{
			Path:    gogithub.Ptr(f.Path),
			Mode:    gogithub.Ptr(fileMode),
			Type:    gogithub.Ptr(blobType),
			Content: gogithub.Ptr(f.Content),
		})
	}

	tree, resp, err := a.gh.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTree, entries)
	if err != nil {
		return "", upstreamError(resp, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit of treeSHA with parentSHA as its only parent.
func (a *Adapter) CreateCommit(ctx context.Context, repo relay.Repo, message, treeSHA, parentSHA string) (string, error) {
	commit, resp, err := a.gh.Git.CreateCommit(ctx, repo.Owner, repo.Name, gogithub.Commit{
		Message: gogithub.Ptr(message),
		Tree:    &gogithub.Tree{SHA: gogithub.Ptr(treeSHA)},
		Parents: []*gogithub.Commit{{SHA: gogithub.Ptr(parentSHA)}},
	}, nil)
	if err != nil {
		return "", upstreamError(resp, err)
	}
	return commit.GetSHA(), nil
}

// UpdateBranch moves refs/heads/<branch> to sha without forcing.
func (a *Adapter) UpdateBranch(ctx context.Context, repo relay.Repo, branch, sha string) error {
	_, resp, err := a.gh.Git.UpdateRef(ctx, repo.Owner, repo.Name, "refs/heads/"+branch, gogithub.UpdateRef{
		SHA:   sha,
		Force: gogithub.Ptr(false),
	})
	if err != nil {
		return upstreamError(resp, err)
	}
	return nil
}

// CreatePullRequest opens a pull request and returns GitHub's response body
// byte for byte.
func (a *Adapter) CreatePullRequest(ctx context.Context, repo relay.Repo, pr relay.PullRequestIntent) (*relay.Passthrough, error) {
	u := fmt.Sprintf("repos/%s/%s/pulls", url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	req, err := a.gh.NewRequest(http.MethodPost, u, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(pr.Title),
		Body:  gogithub.Ptr(pr.Body),
		Head:  gogithub.Ptr(pr.Head),
		Base:  gogithub.Ptr(pr.Base),
	})
	if err != nil {
		return nil, fmt.Errorf("build pull request: %w", err)
	}

	var buf bytes.Buffer
	resp, err := a.gh.Do(ctx, req, &buf)
	if err != nil {
		return nil, upstreamError(resp, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusCreated && isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("create pull request: unexpected HTTP %d (%s) from github", resp.StatusCode, contentType)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, relay.ExternalServiceError{
			Service:     ServiceName,
			Status:      resp.StatusCode,
			ContentType: contentType,
			Body:        buf.Bytes(),
		}
	}
	return &relay.Passthrough{
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        buf.Bytes(),
	}, nil
}

// DeleteBranch removes refs/heads/<branch>.
func (a *Adapter) DeleteBranch(ctx context.Context, repo relay.Repo, branch string) error {
	resp, err := a.gh.Git.DeleteRef(ctx, repo.Owner, repo.Name, "refs/heads/"+branch)
	if err != nil {
		return upstreamError(resp, err)
	}
	return nil
}

// upstreamError turns a go-github failure into relay.ExternalServiceError when
// GitHub answered with an error status. go-github re-populates the response
// body after reading it, so the original bytes are relayed. Transport
// failures and 2xx responses that could not be decoded are returned wrapped,
// so they never reach the caller as a success status.
func upstreamError(resp *gogithub.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("github request: %w", err)
	}
	if isSuccess(resp.StatusCode) && !isAPIError(err) {
		return fmt.Errorf("github HTTP %d (%s): %w", resp.StatusCode, resp.Header.Get("Content-Type"), err)
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(resp.Body) //nolint:errcheck // fall back to the decoded error below
	}
	if len(body) == 0 {
		var ghErr *gogithub.ErrorResponse
		if errors.As(err, &ghErr) {
			body, _ = json.Marshal(ghErr) //nolint:errcheck // ErrorResponse always marshals
		}
	}

	return relay.ExternalServiceError{
		Service:     ServiceName,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isAPIError(err error) bool {
	var (
		ghErr    *gogithub.ErrorResponse
		rateErr  *gogithub.RateLimitError
		abuseErr *gogithub.AbuseRateLimitError
	)
	return errors.As(err, &ghErr) || errors.As(err, &rateErr) || errors.As(err, &abuseErr)
}
