// Package github provides factory functions for creating authenticated GitHub
// API clients. The relay builds one client per request from the caller's
// token; see apps/server/internal/relay/adapters/github for the Git Data API
// calls made with it.
package github

import (
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

const (
	defaultAPIURL = "https://api.github.com"

	// APIVersion is sent as X-GitHub-Api-Version on every request.
	APIVersion = "2022-11-28"
)

// NewTokenClient creates a *github.Client authenticated with a bearer token.
// Pass baseURL="" to use the real GitHub API, or a custom URL (e.g. a GitHub
// Enterprise API root or "http://localhost:9090" for the mock server).
// base may be nil to use http.DefaultTransport.
func NewTokenClient(token, baseURL string, base http.RoundTripper) *gogithub.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = base
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		}
	}
	c := gogithub.NewClient(&http.Client{Transport: &versionTransport{base: rt}})
	applyBaseURL(c, baseURL)
	return c
}

// versionTransport pins the REST API version and media type.
type versionTransport struct {
	base http.RoundTripper
}

func (t *versionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Accept", "application/vnd.github+json")
	r.Header.Set("X-GitHub-Api-Version", APIVersion)
	return t.base.RoundTrip(r)
}

func applyBaseURL(c *gogithub.Client, baseURL string) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" || baseURL == defaultAPIURL {
		return
	}
	u, err := url.Parse(baseURL + "/")
	if err != nil {
		return
	}
	c.BaseURL = u
}
