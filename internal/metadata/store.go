package metadata

import (
	"context"
	"errors"
	"time"
)

// Errors returned by Store implementations. Callers distinguish terminal
// conditions (ErrNotFound, ErrConflict) from ErrUnavailable, which the Job
// Runner treats as retryable.
var (
	ErrNotFound    = errors.New("metadata: not found")
	ErrConflict    = errors.New("metadata: conflicting write")
	ErrUnavailable = errors.New("metadata: store unavailable")
)

// Store is the Metadata Store's full contract. Every method takes a
// TenantScope (or an entity that already carries a TenantID) and never
// returns rows belonging to another tenant.
type Store interface {
	// CreateDocument inserts a new document row. It does not look for an
	// existing row with the same content hash; callers use
	// FindDocumentByHash for that.
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, scope TenantScope, documentID string) (Document, error)
	FindDocumentByHash(ctx context.Context, scope TenantScope, contentHash string) (Document, bool, error)
	UpdateDocumentStatus(ctx context.Context, scope TenantScope, documentID string, status DocumentStatus) error
	BumpDocumentVersion(ctx context.Context, scope TenantScope, documentID string) (int, error)

	// EnqueueJob creates a new queued job for a document.
	EnqueueJob(ctx context.Context, job Job) (Job, error)
	// ClaimJob atomically claims the oldest queued job of the given kind
	// whose AvailableAt has elapsed, marking it running. Returns
	// ErrNotFound if no job is claimable right now.
	ClaimJob(ctx context.Context, kind JobKind) (Job, error)
	GetJob(ctx context.Context, scope TenantScope, jobID string) (Job, error)
	// ListJobsByDocument returns every job ever enqueued for a document,
	// oldest first, for the ingest-status-by-document endpoint.
	ListJobsByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Job, error)
	// UpdateJobProgress records a bounded progress percentage for a running
	// job without changing its status.
	UpdateJobProgress(ctx context.Context, jobID string, progress int) error
	// FinalizeJob transitions a running job to done or failed. A failed
	// attempt that will be retried is not finalized: the runner returns it
	// to queued with EnqueueRetry instead, so JobFailed here is terminal.
	FinalizeJob(ctx context.Context, jobID string, status JobStatus, lastError string) error
	// EnqueueRetry returns a running job to queued with available_at pushed
	// delay into the future, for a retryable failure that hasn't exhausted
	// MaxAttempts. Attempts is left as ClaimJob last set it.
	EnqueueRetry(ctx context.Context, job Job, delay time.Duration) error
	JobStatusCounts(ctx context.Context, scope TenantScope, documentID string) (DocumentStatusCounts, error)

	// UpsertElements replaces all Elements for a document atomically.
	UpsertElements(ctx context.Context, documentID string, elements []Element) error
	GetElements(ctx context.Context, scope TenantScope, documentID string) ([]Element, error)

	// ReplaceChunks atomically replaces all Chunks for a document, used for
	// idempotent re-ingest.
	ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error
	GetChunksByIDs(ctx context.Context, scope TenantScope, chunkIDs []string) ([]Chunk, error)
	GetChunksByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Chunk, error)

	UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error

	Ping(ctx context.Context) error
}
