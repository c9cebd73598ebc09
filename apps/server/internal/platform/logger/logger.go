// Package logger is the server's entry point to pkg/logging.
package logger

import (
	"log/slog"

	"github.com/tilsley/coverbot/pkg/logging"
)

// New returns a logger configured from LOG_FORMAT and LOG_LEVEL env vars,
// tagged with the service name. See pkg/logging for details.
func New() *slog.Logger {
	return logging.New().With("service", "coverbot-relay")
}
