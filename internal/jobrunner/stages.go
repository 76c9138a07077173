package jobrunner

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"ragcore/internal/metadata"
	"ragcore/internal/parser"
	"ragcore/internal/vectorindex"
)

// reportProgress records progress on the job row and publishes a
// *_progress event; callers pass whatever checkpoints make sense for the
// stage and this fans the same checkpoint out to both sinks. runParse
// reports 10, 35, 70 and 90 and runChunk 10, 40, 70 and 90 (four events
// each); runEmbed reports once per batch of embedBatchSize chunks, or 90
// once for a document with no chunks. No minimum number of progress
// events per stage is enforced.
func (r *Runner) reportProgress(ctx context.Context, job metadata.Job, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if err := r.store.UpdateJobProgress(ctx, job.ID, pct); err != nil {
		logFromJob(ctx, job).Warn().Err(err).Msg("progress update failed")
	}
	r.publish(ctx, job, progressEvent(job.Kind), pct, nil)
}

// runParse fetches the document's raw bytes from the Object Store Gateway,
// runs them through the Parser, persists the resulting Elements, advances
// the document to "parsing" -> elements stored, and enqueues the chunk job.
func (r *Runner) runParse(ctx context.Context, job metadata.Job) error {
	scope := metadata.TenantScope{TenantID: job.TenantID}
	doc, err := r.store.GetDocument(ctx, scope, job.DocumentID)
	if err != nil {
		return fmt.Errorf("jobrunner: parse: load document: %w", err)
	}
	if err := r.store.UpdateDocumentStatus(ctx, scope, doc.ID, metadata.DocumentParsing); err != nil {
		return fmt.Errorf("jobrunner: parse: set parsing status: %w", err)
	}
	r.reportProgress(ctx, job, 10)

	reader, _, err := r.objects.Get(ctx, doc.StorageURI)
	if err != nil {
		return fmt.Errorf("jobrunner: parse: fetch object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("jobrunner: parse: read object: %w", err)
	}
	r.reportProgress(ctx, job, 35)

	result, err := r.parser.Parse(parser.Input{MimeType: doc.Mime, Filename: doc.Name, Data: data})
	if err != nil {
		return fmt.Errorf("jobrunner: parse: %w", err)
	}
	r.reportProgress(ctx, job, 70)

	for i := range result.Elements {
		result.Elements[i].ID = uuid.NewString()
		result.Elements[i].DocumentID = doc.ID
	}
	if err := r.store.UpsertElements(ctx, doc.ID, result.Elements); err != nil {
		return fmt.Errorf("jobrunner: parse: persist elements: %w", err)
	}
	r.reportProgress(ctx, job, 90)

	if _, err := r.store.EnqueueJob(ctx, metadata.Job{
		ID:          uuid.NewString(),
		TenantID:    job.TenantID,
		DocumentID:  doc.ID,
		Kind:        metadata.JobChunk,
		MaxAttempts: job.MaxAttempts,
	}); err != nil {
		return fmt.Errorf("jobrunner: parse: enqueue chunk job: %w", err)
	}
	return nil
}

// runChunk loads the document's Elements, runs the Chunker, and idempotently
// replaces the document's Chunks, then enqueues the embed job.
func (r *Runner) runChunk(ctx context.Context, job metadata.Job) error {
	scope := metadata.TenantScope{TenantID: job.TenantID}
	if err := r.store.UpdateDocumentStatus(ctx, scope, job.DocumentID, metadata.DocumentChunking); err != nil {
		return fmt.Errorf("jobrunner: chunk: set chunking status: %w", err)
	}
	r.reportProgress(ctx, job, 10)

	elements, err := r.store.GetElements(ctx, scope, job.DocumentID)
	if err != nil {
		return fmt.Errorf("jobrunner: chunk: load elements: %w", err)
	}
	r.reportProgress(ctx, job, 40)

	chunks := r.chunker.Chunk(job.DocumentID, elements)
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
	}
	r.reportProgress(ctx, job, 70)

	if err := r.store.ReplaceChunks(ctx, job.DocumentID, chunks); err != nil {
		return fmt.Errorf("jobrunner: chunk: replace chunks: %w", err)
	}
	r.reportProgress(ctx, job, 90)

	if _, err := r.store.EnqueueJob(ctx, metadata.Job{
		ID:          uuid.NewString(),
		TenantID:    job.TenantID,
		DocumentID:  job.DocumentID,
		Kind:        metadata.JobEmbed,
		MaxAttempts: job.MaxAttempts,
	}); err != nil {
		return fmt.Errorf("jobrunner: chunk: enqueue embed job: %w", err)
	}
	return nil
}

// embedBatchSize bounds how many chunks are embedded and upserted per
// round trip, giving runEmbed natural checkpoints to report progress from
// regardless of how many chunks a document has.
const embedBatchSize = 16

// runEmbed loads the document's Chunks, embeds their text in batches,
// upserts the vectors into the Vector Index and the Metadata Store's
// embedding rows, and marks the document ready. This is the final pipeline
// stage: C5 (produce vectors) and C6 (index upsert) run as one job kind.
func (r *Runner) runEmbed(ctx context.Context, job metadata.Job) error {
	scope := metadata.TenantScope{TenantID: job.TenantID}
	if err := r.store.UpdateDocumentStatus(ctx, scope, job.DocumentID, metadata.DocumentEmbedding); err != nil {
		return fmt.Errorf("jobrunner: embed: set embedding status: %w", err)
	}

	chunks, err := r.store.GetChunksByDocument(ctx, scope, job.DocumentID)
	if err != nil {
		return fmt.Errorf("jobrunner: embed: load chunks: %w", err)
	}
	if len(chunks) == 0 {
		r.reportProgress(ctx, job, 90)
	}

	tag := r.embed.ProviderTag()
	dim := r.embed.Dimension()

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := r.embed.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("jobrunner: embed: embed batch: %w", err)
		}

		entries := make([]vectorindex.Entry, len(batch))
		embeddings := make([]metadata.Embedding, len(batch))
		for i, c := range batch {
			entries[i] = vectorindex.Entry{
				ChunkID:     c.ID,
				DocumentID:  job.DocumentID,
				TenantID:    job.TenantID,
				Vector:      vectors[i],
				ProviderTag: tag,
			}
			embeddings[i] = metadata.Embedding{
				ChunkID:     c.ID,
				DocumentID:  job.DocumentID,
				TenantID:    job.TenantID,
				Vector:      vectors[i],
				Dimension:   dim,
				ProviderTag: tag,
			}
		}
		if err := r.index.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("jobrunner: embed: index upsert: %w", err)
		}
		if err := r.store.UpsertEmbeddings(ctx, embeddings); err != nil {
			return fmt.Errorf("jobrunner: embed: persist embeddings: %w", err)
		}

		pct := 10 + int(float64(end)/float64(len(chunks))*80)
		r.reportProgress(ctx, job, pct)
	}

	if err := r.store.UpdateDocumentStatus(ctx, scope, job.DocumentID, metadata.DocumentReady); err != nil {
		return fmt.Errorf("jobrunner: embed: set ready status: %w", err)
	}
	return nil
}
