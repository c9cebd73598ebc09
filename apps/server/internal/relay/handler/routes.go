package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/coverbot/apps/server/internal/relay"
)

// Handler translates HTTP requests into calls on the relay.Service.
type Handler struct {
	svc *relay.Service
	log *slog.Logger
}

// RegisterRoutes mounts the coverbot relay API onto the given Gin engine.
func RegisterRoutes(r *gin.Engine, svc *relay.Service, log *slog.Logger) {
	h := &Handler{svc: svc, log: log}

	r.GET("/health", h.Health)

	// Indexing service
	r.POST("/index-repo", h.IndexRepo)
	r.POST("/query-code", h.QueryCode)

	// Source host
	r.POST("/modify-repo", h.ModifyRepo)
	r.POST("/create-pr", h.CreatePR)
	r.POST("/delete-branch", h.DeleteBranch)
}
