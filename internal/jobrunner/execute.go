package jobrunner

import (
	"context"

	"ragcore/internal/eventbus"
	"ragcore/internal/metadata"
	"ragcore/internal/platform/logging"
)

// execute runs one claimed job's stage routine and applies the outcome to
// the Metadata Store and Event Bus, following the lifecycle in 4.7: set
// running, run the stage, then on success enqueue the next stage and
// publish *_done, or on failure classify the error and either requeue with
// backoff or mark the job (and document) failed.
func (r *Runner) execute(ctx context.Context, job metadata.Job, stage stageFunc) {
	log := logging.ForJob(job.TenantID, job.ID, string(job.Kind))
	r.publish(ctx, job, startedEvent(job.Kind), 0, nil)

	err := stage(ctx, job)
	if err == nil {
		if ferr := r.store.FinalizeJob(ctx, job.ID, metadata.JobDone, ""); ferr != nil {
			log.Error().Err(ferr).Msg("finalize done failed")
		}
		r.publish(ctx, job, doneEvent(job.Kind), 100, nil)
		return
	}

	log.Warn().Err(err).Int("attempts", job.Attempts).Msg("stage failed")

	retryable := classify(err)
	if retryable && job.Attempts < job.MaxAttempts {
		job.LastError = err.Error()
		delay := backoffDuration(job.Attempts, r.cfg.BackoffBase, r.cfg.BackoffCap)
		if rerr := r.store.EnqueueRetry(ctx, job, delay); rerr != nil {
			log.Error().Err(rerr).Msg("requeue after retryable failure failed")
		}
		return
	}

	msg := err.Error()
	if ferr := r.store.FinalizeJob(ctx, job.ID, metadata.JobFailed, msg); ferr != nil {
		log.Error().Err(ferr).Msg("finalize failed-job failed")
	}
	if serr := r.store.UpdateDocumentStatus(ctx, metadata.TenantScope{TenantID: job.TenantID}, job.DocumentID, metadata.DocumentFailed); serr != nil {
		log.Error().Err(serr).Msg("mark document failed failed")
	}
	r.publish(ctx, job, failedEvent(job.Kind), job.Progress, &msg)
}

func (r *Runner) publish(ctx context.Context, job metadata.Job, kind eventbus.EventKind, progress int, errMsg *string) {
	ev := eventbus.Event{
		Event:      kind,
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Kind:       string(job.Kind),
		Progress:   progress,
		Error:      errMsg,
	}
	if err := r.bus.Publish(ctx, job.TenantID, ev); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("event publish swallowed")
	}
}

func startedEvent(kind metadata.JobKind) eventbus.EventKind {
	switch kind {
	case metadata.JobParse:
		return eventbus.EventParseStarted
	case metadata.JobChunk:
		return eventbus.EventChunkStarted
	default:
		return eventbus.EventEmbedStarted
	}
}

func progressEvent(kind metadata.JobKind) eventbus.EventKind {
	switch kind {
	case metadata.JobParse:
		return eventbus.EventParseProgress
	case metadata.JobChunk:
		return eventbus.EventChunkProgress
	default:
		return eventbus.EventEmbedProgress
	}
}

func doneEvent(kind metadata.JobKind) eventbus.EventKind {
	switch kind {
	case metadata.JobParse:
		return eventbus.EventParseDone
	case metadata.JobChunk:
		return eventbus.EventChunkDone
	default:
		return eventbus.EventEmbedDone
	}
}

func failedEvent(kind metadata.JobKind) eventbus.EventKind {
	switch kind {
	case metadata.JobParse:
		return eventbus.EventParseFailed
	case metadata.JobChunk:
		return eventbus.EventChunkFailed
	default:
		return eventbus.EventEmbedFailed
	}
}
