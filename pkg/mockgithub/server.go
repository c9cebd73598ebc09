// Package mockgithub is an in-memory stand-in for the two upstreams the relay
// talks to: the GitHub Git Data / pulls REST API and the Greptile indexing
// API. It backs the apps/mock-github binary for local development and is
// used directly by tests through httptest.
package mockgithub

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

const docsURL = "https://docs.github.com/rest"

// Call is one request received by the mock, recorded in arrival order.
type Call struct {
	Method string
	Path   string
	Body   json.RawMessage
	Header http.Header
}

type injected struct {
	status int
	body   string
}

// Server is the mock upstream. The zero value is not usable; call New.
type Server struct {
	store   *store
	log     *slog.Logger
	baseURL string
	engine  *gin.Engine

	mu       sync.Mutex
	calls    []Call
	failures map[string]injected // "METHOD /path" → canned response
}

// New creates a Server. baseURL is used to build html_url links; it may be
// set later with SetBaseURL once an httptest server address is known.
func New(log *slog.Logger, baseURL string) *Server {
	s := &Server{
		store:    newStore(),
		log:      log,
		baseURL:  baseURL,
		failures: make(map[string]injected),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.record, s.inject)
	r.GET("/", s.dashboard)
	registerGitHubRoutes(r, s)
	registerIndexerRoutes(r, s)
	s.engine = r
	return s
}

// Handler returns the HTTP handler serving both upstream APIs.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr and serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// SetBaseURL changes the host used in generated html_url values.
func (s *Server) SetBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = u
}

// Seed creates (or advances) branch in owner/repo with exactly files and
// returns the new commit sha.
func (s *Server) Seed(owner, repo, branch string, files map[string]string) string {
	return s.store.seed(owner, repo, branch, files)
}

// BranchFiles returns the files at the tip of branch.
func (s *Server) BranchFiles(owner, repo, branch string) (map[string]string, bool) {
	files, _, ok := s.store.branchFiles(owner, repo, branch)
	return files, ok
}

// BranchHead returns the commit sha, message and parents at the tip of branch.
func (s *Server) BranchHead(owner, repo, branch string) (sha, message string, parents []string, ok bool) {
	c, ok := s.store.commitByBranch(owner, repo, branch)
	return c.SHA, c.Message, c.Parents, ok
}

// PullRequests returns the pull requests opened on owner/repo.
func (s *Server) PullRequests(owner, repo string) []PullRequest {
	return s.store.listPRs(owner, repo)
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallLines returns Calls as "METHOD /path" strings.
func (s *Server) CallLines() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method + " " + c.Path
	}
	return out
}

// ResetCalls clears the call log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// FailWith makes every later request matching method and path return status
// with body instead of being served.
func (s *Server) FailWith(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = injected{status: status, body: body}
}

func (s *Server) record(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		body, _ = c.GetRawData() //nolint:errcheck // an unreadable body is recorded as empty
		c.Request.Body = newBody(body)
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Body:   body,
		Header: c.Request.Header.Clone(),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.failures[c.Request.Method+" "+c.Request.URL.Path]
	s.mu.Unlock()
	if !ok {
		c.Next()
		return
	}
	c.Data(f.status, "application/json; charset=utf-8", []byte(f.body))
	c.Abort()
}

func (s *Server) currentBaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// writeError renders err the way GitHub does: {"message", "documentation_url", "status"}.
func writeError(c *gin.Context, err error, docs string) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	c.JSON(apiErr.Status, gin.H{
		"message":           apiErr.Message,
		"documentation_url": docsURL + docs,
		"status":            strconv.Itoa(apiErr.Status),
	})
}

func refParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("ref"), "/")
}

func (s *Server) refJSON(owner, repo, ref, sha string) gin.H {
	base := strings.TrimSuffix(s.currentBaseURL(), "/")
	return gin.H{
		"ref":     "refs/" + ref,
		"node_id": "REF_" + sha[:12],
		"url":     fmt.Sprintf("%s/repos/%s/%s/git/refs/%s", base, owner, repo, ref),
		"object": gin.H{
			"type": "commit",
			"sha":  sha,
			"url":  fmt.Sprintf("%s/repos/%s/%s/git/commits/%s", base, owner, repo, sha),
		},
	}
}

func registerGitHubRoutes(r *gin.Engine, s *Server) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// go-github reads single refs from /git/ref/; the plural form is the
	// older matching-refs endpoint. Both resolve exact branch names here.
	getRef := func(c *gin.Context) {
		owner, repo, ref := c.Param("owner"), c.Param("repo"), refParam(c)
		sha, err := s.store.getRef(owner, repo, ref)
		if err != nil {
			writeError(c, err, "/git/refs#get-a-reference")
			return
		}
		c.JSON(http.StatusOK, s.refJSON(owner, repo, ref, sha))
	}
	r.GET("/repos/:owner/:repo/git/ref/*ref", getRef)
	r.GET("/repos/:owner/:repo/git/refs/*ref", getRef)

	r.POST("/repos/:owner/:repo/git/refs", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		var req struct {
			Ref string `json:"ref" binding:"required"`
			SHA string `json:"sha" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error()}, "/git/refs#create-a-reference")
			return
		}
		ref := strings.TrimPrefix(req.Ref, "refs/")
		if err := s.store.createRef(owner, repo, ref, req.SHA); err != nil {
			writeError(c, err, "/git/refs#create-a-reference")
			return
		}
		s.log.Info("ref created", "owner", owner, "repo", repo, "ref", ref)
		c.JSON(http.StatusCreated, s.refJSON(owner, repo, ref, req.SHA))
	})

	r.PATCH("/repos/:owner/:repo/git/refs/*ref", func(c *gin.Context) {
		owner, repo, ref := c.Param("owner"), c.Param("repo"), refParam(c)
		var req struct {
			SHA   string `json:"sha" binding:"required"`
			Force bool   `json:"force"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error()}, "/git/refs#update-a-reference")
			return
		}
		if err := s.store.updateRef(owner, repo, ref, req.SHA, req.Force); err != nil {
			writeError(c, err, "/git/refs#update-a-reference")
			return
		}
		c.JSON(http.StatusOK, s.refJSON(owner, repo, ref, req.SHA))
	})

	r.DELETE("/repos/:owner/:repo/git/refs/*ref", func(c *gin.Context) {
		owner, repo, ref := c.Param("owner"), c.Param("repo"), refParam(c)
		if err := s.store.deleteRef(owner, repo, ref); err != nil {
			writeError(c, err, "/git/refs#delete-a-reference")
			return
		}
		s.log.Info("ref deleted", "owner", owner, "repo", repo, "ref", ref)
		c.Status(http.StatusNoContent)
	})

	r.POST("/repos/:owner/:repo/git/trees", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		var req struct {
			BaseTree string      `json:"base_tree"`
			Tree     []TreeEntry `json:"tree"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error()}, "/git/trees#create-a-tree")
			return
		}
		sha, files, err := s.store.createTree(owner, repo, req.BaseTree, req.Tree)
		if err != nil {
			writeError(c, err, "/git/trees#create-a-tree")
			return
		}
		entries := make([]gin.H, 0, len(files))
		for path, content := range files {
			entries = append(entries, gin.H{
				"path": path,
				"mode": "100644",
				"type": "blob",
				"size": len(content),
				"sha":  objectID("blob", content),
			})
		}
		c.JSON(http.StatusCreated, gin.H{"sha": sha, "tree": entries, "truncated": false})
	})

	r.POST("/repos/:owner/:repo/git/commits", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		var req struct {
			Message string   `json:"message" binding:"required"`
			Tree    string   `json:"tree"    binding:"required"`
			Parents []string `json:"parents"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error()}, "/git/commits#create-a-commit")
			return
		}
		cm, err := s.store.createCommit(owner, repo, req.Message, req.Tree, req.Parents)
		if err != nil {
			writeError(c, err, "/git/commits#create-a-commit")
			return
		}
		parents := make([]gin.H, 0, len(cm.Parents))
		for _, p := range cm.Parents {
			parents = append(parents, gin.H{"sha": p})
		}
		c.JSON(http.StatusCreated, gin.H{
			"sha":     cm.SHA,
			"message": cm.Message,
			"tree":    gin.H{"sha": cm.Tree},
			"parents": parents,
		})
	})

	r.POST("/repos/:owner/:repo/pulls", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		var req struct {
			Title string `json:"title" binding:"required"`
			Body  string `json:"body"`
			Head  string `json:"head"  binding:"required"`
			Base  string `json:"base"  binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error()}, "/pulls/pulls#create-a-pull-request")
			return
		}
		pr, err := s.store.createPR(owner, repo, s.currentBaseURL(), req.Title, req.Body, req.Head, req.Base)
		if err != nil {
			writeError(c, err, "/pulls/pulls#create-a-pull-request")
			return
		}
		s.log.Info("PR created", "owner", owner, "repo", repo, "number", pr.Number, "head", pr.Head.Ref)
		c.JSON(http.StatusCreated, pr)
	})

	r.GET("/repos/:owner/:repo/pulls", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.listPRs(c.Param("owner"), c.Param("repo")))
	})

	// File content endpoint (GitHub-compatible shape), read from ?ref=<branch>
	// or main.
	r.GET("/repos/:owner/:repo/contents/*path", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		path := strings.TrimPrefix(c.Param("path"), "/")
		branch := c.DefaultQuery("ref", "main")

		files, _, ok := s.store.branchFiles(owner, repo, branch)
		content, found := files[path]
		if !ok || !found {
			writeError(c, &apiError{Status: http.StatusNotFound, Message: msgNotFound}, "/repos/contents#get-repository-content")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"path":     path,
			"type":     "file",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})
	})
}
