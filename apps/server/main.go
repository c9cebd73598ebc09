package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tilsley/coverbot/apps/server/internal/platform/config"
	"github.com/tilsley/coverbot/apps/server/internal/platform/logger"
	"github.com/tilsley/coverbot/apps/server/internal/platform/telemetry"
	"github.com/tilsley/coverbot/apps/server/internal/platform/validation"
	"github.com/tilsley/coverbot/apps/server/internal/relay"
	"github.com/tilsley/coverbot/apps/server/internal/relay/adapters/github"
	"github.com/tilsley/coverbot/apps/server/internal/relay/adapters/greptile"
	"github.com/tilsley/coverbot/apps/server/internal/relay/handler"
	"github.com/tilsley/coverbot/schemas"
)

func main() {
	slog := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// --- Observability ---

	ctx := context.Background()
	tel, err := telemetry.New(ctx, cfg.OTelEnabled)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Adapters ---

	// Upstream calls carry no timeout; a hung upstream holds its request.
	transport := otelhttp.NewTransport(http.DefaultTransport)
	indexer := greptile.NewClient(cfg.IndexerAPIURL, &http.Client{Transport: transport})
	hosts := github.NewProvider(cfg.GitHubAPIURL, transport)

	// --- Service + HTTP ---

	svc := relay.NewService(indexer, hosts, relay.Options{FixedPrompt: cfg.FixedPrompt})

	validator, err := validation.New(schemas.OpenAPISpec)
	if err != nil {
		slog.Error("openapi validation middleware init failed", "error", err)
		os.Exit(1) //nolint:gocritic // nothing to flush yet
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		handler.CORS(),
		otelgin.Middleware(tel.ServiceName),
		handler.RequestID(slog),
		validator,
	)
	handler.RegisterRoutes(router, svc, slog)

	slog.Info("starting coverbot relay",
		"port", cfg.Port,
		"fixedPrompt", cfg.FixedPrompt,
		"githubApiUrl", cfg.GitHubAPIURL,
		"indexerApiUrl", cfg.IndexerAPIURL,
	)
	if err := router.Run(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1) //nolint:gocritic // deferred shutdown is best effort
	}
}
