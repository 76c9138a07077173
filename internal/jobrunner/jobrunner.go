// Package jobrunner implements the Job Runner (C7): a pool of workers,
// partitioned by queue kind, that drains the Metadata Store's job queue and
// drives each document through parse -> chunk -> embed. Grounded on
// manifold's internal/documents.Ingest worker-pool shape (a fixed-size
// goroutine pool draining a work channel via sync.WaitGroup), adapted from
// an in-process channel to polling a durable, multi-writer queue since jobs
// here survive process restarts and are claimed across runner instances.
package jobrunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"ragcore/internal/chunker"
	"ragcore/internal/config"
	"ragcore/internal/embedder"
	"ragcore/internal/eventbus"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/parser"
	"ragcore/internal/platform/logging"
	"ragcore/internal/vectorindex"
)

// pollInterval is how long an idle worker waits before re-attempting
// ClaimJob after finding no eligible job, mirroring the
// check-then-sleep-then-retry loop manifold's internal/services readiness
// probes use while waiting on external state.
const pollInterval = 250 * time.Millisecond

// Runner owns one worker pool per job kind and wires every ingest-pipeline
// component together: it is the only place in the module that calls all of
// C1, C2, C3, C4, C5, C6, and C8 from a single goroutine of control.
type Runner struct {
	store   metadata.Store
	objects objectstore.ObjectStore
	parser  *parser.Parser
	chunker *chunker.Chunker
	embed   embedder.Embedder
	index   vectorindex.Index
	bus     eventbus.Bus
	cfg     config.JobsConfig

	wg sync.WaitGroup
}

// New builds a Runner from the already-constructed component instances. The
// caller (cmd/worker) owns connecting each backend; Runner only orchestrates
// the pipeline logic between them.
func New(
	store metadata.Store,
	objects objectstore.ObjectStore,
	p *parser.Parser,
	c *chunker.Chunker,
	e embedder.Embedder,
	idx vectorindex.Index,
	bus eventbus.Bus,
	cfg config.JobsConfig,
) *Runner {
	return &Runner{
		store:   store,
		objects: objects,
		parser:  p,
		chunker: c,
		embed:   e,
		index:   idx,
		bus:     bus,
		cfg:     cfg,
	}
}

// Start launches the configured number of workers per kind. It returns
// immediately; workers run until ctx is cancelled. Call Wait to block for
// a clean shutdown.
func (r *Runner) Start(ctx context.Context) {
	r.spawn(ctx, metadata.JobParse, r.cfg.ParseWorkers, r.runParse)
	r.spawn(ctx, metadata.JobChunk, r.cfg.ChunkWorkers, r.runChunk)
	r.spawn(ctx, metadata.JobEmbed, r.cfg.EmbedWorkers, r.runEmbed)
}

// Wait blocks until every worker goroutine has exited, which happens once
// ctx passed to Start is cancelled.
func (r *Runner) Wait() { r.wg.Wait() }

type stageFunc func(ctx context.Context, job metadata.Job) error

func (r *Runner) spawn(ctx context.Context, kind metadata.JobKind, n int, stage stageFunc) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go r.workerLoop(ctx, kind, stage)
	}
}

func (r *Runner) workerLoop(ctx context.Context, kind metadata.JobKind, stage stageFunc) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.store.ClaimJob(ctx, kind)
		if err != nil {
			if isNoJobAvailable(err) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollInterval):
				}
				continue
			}
			logging.FromContext(ctx).Error().Err(err).Str("kind", string(kind)).Msg("job claim failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		r.execute(ctx, job, stage)
	}
}

func isNoJobAvailable(err error) bool {
	return errors.Is(err, metadata.ErrNotFound)
}
