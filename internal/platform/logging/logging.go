// Package logging configures the process-wide zerolog logger and exposes
// helpers for deriving request/job/tenant-scoped child loggers.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog with the given level and, if logPath is non-empty,
// also writes to that file in append mode. If opening the file fails, logs
// fall back to stdout and a warning is printed to stderr.
func Init(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// ForJob returns a logger scoped to a single job runner invocation.
func ForJob(tenantID, jobID, kind string) zerolog.Logger {
	return log.With().
		Str("tenant_id", tenantID).
		Str("job_id", jobID).
		Str("job_kind", kind).
		Logger()
}

// ForRequest returns a logger scoped to a single HTTP request.
func ForRequest(requestID, tenantID string) zerolog.Logger {
	return log.With().
		Str("request_id", requestID).
		Str("tenant_id", tenantID).
		Logger()
}
