package jobrunner

import (
	"context"

	"github.com/rs/zerolog"

	"ragcore/internal/metadata"
	"ragcore/internal/platform/logging"
)

func logFromJob(ctx context.Context, job metadata.Job) *zerolog.Logger {
	l := logging.ForJob(job.TenantID, job.ID, string(job.Kind))
	return &l
}
