package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/coverbot/apps/server/internal/relay"
	"github.com/tilsley/coverbot/pkg/logging"
)

type indexRepoRequest struct {
	APIKey       string `json:"apiKey"       binding:"required"`
	GitHubToken  string `json:"githubToken"  binding:"required"`
	GitHubRepo   string `json:"githubRepo"   binding:"required"`
	GitHubBranch string `json:"githubBranch" binding:"required"`
}

type queryCodeRequest struct {
	indexRepoRequest
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"sessionId"`
	Genius    bool   `json:"genius"`
}

type fileChange struct {
	FilePath   string `json:"filePath" binding:"required"`
	NewContent string `json:"newContent"`
}

type modifyRepoRequest struct {
	GitHubToken   string       `json:"githubToken"   binding:"required"`
	GitHubRepo    string       `json:"githubRepo"    binding:"required"`
	GitHubBranch  string       `json:"githubBranch"  binding:"required"`
	BaseSHA       string       `json:"baseSha"`
	NewBranch     string       `json:"newBranch"     binding:"required"`
	CommitMessage string       `json:"commitMessage" binding:"required"`
	FileChanges   []fileChange `json:"fileChanges"   binding:"required,dive"`
}

type createPRRequest struct {
	GitHubToken  string `json:"githubToken"  binding:"required"`
	GitHubRepo   string `json:"githubRepo"   binding:"required"`
	GitHubBranch string `json:"githubBranch"`
	BaseBranch   string `json:"baseBranch"`
	HeadBranch   string `json:"headBranch"   binding:"required"`
	Title        string `json:"title"        binding:"required"`
	Body         *string `json:"body"        binding:"required"`
}

type deleteBranchRequest struct {
	GitHubToken string `json:"githubToken" binding:"required"`
	GitHubRepo  string `json:"githubRepo"  binding:"required"`
	Branch      string `json:"branch"      binding:"required"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IndexRepo handles POST /index-repo: asks the indexing service to reindex one
// repository branch and relays its response.
func (h *Handler) IndexRepo(c *gin.Context) {
	var req indexRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds := relay.Credentials{IndexerKey: req.APIKey, GitHubToken: req.GitHubToken}
	out, err := h.svc.StartIndexing(c.Request.Context(), creds, req.GitHubRepo, req.GitHubBranch)
	if err != nil {
		h.fail(c, err, "index repo failed", "repo", req.GitHubRepo, "branch", req.GitHubBranch)
		return
	}
	passthrough(c, out)
}

// QueryCode handles POST /query-code.
func (h *Handler) QueryCode(c *gin.Context) {
	var req queryCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds := relay.Credentials{IndexerKey: req.APIKey, GitHubToken: req.GitHubToken}
	out, err := h.svc.QueryCode(c.Request.Context(), creds, relay.QueryRequest{
		Repo:      req.GitHubRepo,
		Branch:    req.GitHubBranch,
		Query:     req.Query,
		SessionID: req.SessionID,
		Genius:    req.Genius,
	})
	if err != nil {
		h.fail(c, err, "query code failed", "repo", req.GitHubRepo, "branch", req.GitHubBranch)
		return
	}
	passthrough(c, out)
}

// ModifyRepo handles POST /modify-repo: pushes fileChanges as one commit on a
// new branch forked from githubBranch.
func (h *Handler) ModifyRepo(c *gin.Context) {
	var req modifyRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := make([]relay.FileChange, len(req.FileChanges))
	for i, f := range req.FileChanges {
		files[i] = relay.FileChange{Path: f.FilePath, Content: f.NewContent}
	}

	err := h.svc.ModifyRepository(c.Request.Context(), req.GitHubToken, req.GitHubRepo, relay.CommitIntent{
		Message:    req.CommitMessage,
		BaseBranch: req.GitHubBranch,
		BaseSHA:    req.BaseSHA,
		NewBranch:  req.NewBranch,
		Files:      files,
	})
	if err != nil {
		h.fail(c, err, "modify repo failed",
			"repo", req.GitHubRepo, "base", req.GitHubBranch, "newBranch", req.NewBranch, "files", len(files))
		return
	}

	h.logger(c).Info("branch pushed", "repo", req.GitHubRepo, "newBranch", req.NewBranch, "files", len(files))
	c.JSON(http.StatusOK, gin.H{"message": relay.SuccessMessage})
}

// CreatePR handles POST /create-pr. The base branch may be sent as
// githubBranch or baseBranch.
func (h *Handler) CreatePR(c *gin.Context) {
	var req createPRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	base := req.GitHubBranch
	if base == "" {
		base = req.BaseBranch
	}
	if base == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "githubBranch is required"})
		return
	}

	out, err := h.svc.CreatePullRequest(c.Request.Context(), req.GitHubToken, req.GitHubRepo, relay.PullRequestIntent{
		Base:  base,
		Head:  req.HeadBranch,
		Title: req.Title,
		Body:  *req.Body,
	})
	if err != nil {
		h.fail(c, err, "create pr failed", "repo", req.GitHubRepo, "base", base, "head", req.HeadBranch)
		return
	}

	h.logger(c).Info("pull request created", "repo", req.GitHubRepo, "base", base, "head", req.HeadBranch)
	passthrough(c, out)
}

// DeleteBranch handles POST /delete-branch, the cleanup for a branch left
// behind by a partially failed /modify-repo.
func (h *Handler) DeleteBranch(c *gin.Context) {
	var req deleteBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.DeleteBranch(c.Request.Context(), req.GitHubToken, req.GitHubRepo, req.Branch); err != nil {
		h.fail(c, err, "delete branch failed", "repo", req.GitHubRepo, "branch", req.Branch)
		return
	}

	h.logger(c).Info("branch deleted", "repo", req.GitHubRepo, "branch", req.Branch)
	c.Status(http.StatusNoContent)
}

func (h *Handler) logger(c *gin.Context) *slog.Logger {
	return logging.FromContext(c.Request.Context(), h.log)
}

func passthrough(c *gin.Context, out *relay.Passthrough) {
	c.Data(out.Status, contentTypeOr(out.ContentType), out.Body)
}
