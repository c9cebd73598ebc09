package mockgithub

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func newBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

type indexScope struct {
	Remote     string `json:"remote"     binding:"required"`
	Repository string `json:"repository" binding:"required"`
	Branch     string `json:"branch"     binding:"required"`
}

// registerIndexerRoutes serves a minimal Greptile-shaped API. Any non-empty
// bearer key is accepted; indexing only succeeds for repositories whose branch
// exists in the mock.
func registerIndexerRoutes(r *gin.Engine, s *Server) {
	auth := func(c *gin.Context) {
		key := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if key == "" || c.GetHeader("X-GitHub-Token") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key or github token"})
			return
		}
		c.Next()
	}

	r.POST("/repositories", auth, func(c *gin.Context) {
		var req struct {
			indexScope
			Reload bool `json:"reload"`
			Notify bool `json:"notify"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !s.hasBranch(req.Repository, req.Branch) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository or branch not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"response":        "started repo processing",
			"statusEndpoint":  "/repositories/" + req.Remote + ":" + req.Branch + ":" + req.Repository,
			"reloadRequested": req.Reload,
			"notifyRequested": req.Notify,
		})
	})

	r.POST("/query", auth, func(c *gin.Context) {
		var req struct {
			Messages []struct {
				ID      string `json:"id"`
				Content string `json:"content"`
				Role    string `json:"role"`
			} `json:"messages" binding:"required"`
			Repositories []indexScope `json:"repositories" binding:"required"`
			SessionID    string       `json:"sessionId"`
			Genius       bool         `json:"genius"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.Messages) == 0 || len(req.Repositories) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "messages and repositories are required"})
			return
		}

		sources := make([]gin.H, 0)
		for _, scope := range req.Repositories {
			owner, name, _ := strings.Cut(scope.Repository, "/")
			files, paths, ok := s.store.branchFiles(owner, name, scope.Branch)
			if !ok {
				continue
			}
			for _, p := range paths {
				if strings.Contains(p, "_test") || strings.Contains(p, ".test.") {
					continue
				}
				sources = append(sources, gin.H{
					"repository": scope.Repository,
					"remote":     scope.Remote,
					"branch":     scope.Branch,
					"filepath":   p,
					"linestart":  1,
					"lineend":    strings.Count(files[p], "\n") + 1,
				})
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "mock answer to: " + req.Messages[len(req.Messages)-1].Content,
			"sources":   sources,
			"sessionId": req.SessionID,
			"genius":    req.Genius,
		})
	})
}

func (s *Server) hasBranch(repository, branch string) bool {
	owner, name, _ := strings.Cut(repository, "/")
	_, ok := s.store.commitByBranch(owner, name, branch)
	return ok
}
