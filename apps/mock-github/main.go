// Command mock-github serves pkg/mockgithub on a local port so the relay can
// run end to end without real GitHub or indexing service credentials. Point
// GITHUB_API_URL and INDEXER_API_URL of the relay at it.
package main

import (
	"os"

	"github.com/tilsley/coverbot/pkg/logging"
	"github.com/tilsley/coverbot/pkg/mockgithub"
)

func main() {
	log := logging.New().With("service", "mock-github")

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	baseURL := os.Getenv("PUBLIC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	s := mockgithub.New(log, baseURL)
	n := seedRepos(s)
	log.Info("seeded repos", "repos", n)

	log.Info("mock-github starting", "port", port, "baseURL", baseURL)
	if err := s.Run(":" + port); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
