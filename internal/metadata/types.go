// Package metadata implements the Metadata Store: the system of record for
// documents, ingest jobs, parsed elements, chunks, and embedding rows. It is
// the only component with direct visibility into tenant boundaries end to
// end, so every query it serves is tenant-scoped by construction.
package metadata

import "time"

// DocumentStatus tracks a document's aggregate position in the ingest
// pipeline. On failure at any stage the document stays at the last
// successful stage rather than advancing, per spec.md §3's Lifecycle note.
type DocumentStatus string

const (
	DocumentUploaded  DocumentStatus = "uploaded"
	DocumentParsing   DocumentStatus = "parsing"
	DocumentChunking  DocumentStatus = "chunking"
	DocumentEmbedding DocumentStatus = "embedding"
	DocumentReady     DocumentStatus = "ready"
	DocumentFailed    DocumentStatus = "failed"
)

// JobKind names a stage of the ingest pipeline. Each document's ingest is a
// chain of jobs: parse -> chunk -> embed. The embed stage covers both
// producing vectors (C5) and upserting them into the Vector Index (C6);
// there is no separate index job kind.
type JobKind string

const (
	JobParse JobKind = "parse"
	JobChunk JobKind = "chunk"
	JobEmbed JobKind = "embed"
)

// JobStatus is the state machine driven by the Job Runner (C7).
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Document is a single ingested unit, scoped to exactly one tenant.
type Document struct {
	ID          string
	TenantID    string
	Name        string
	Mime        string
	SizeBytes   int64
	StorageURI  string // opaque locator into the Object Store Gateway
	ContentHash string
	Status      DocumentStatus
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Job is a unit of pipeline work claimed by exactly one worker at a time.
type Job struct {
	ID          string
	TenantID    string
	DocumentID  string
	Kind        JobKind
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	Progress    int // 0-100, reported by the worker
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ElementKind names the structural role a parsed Element plays in a document.
type ElementKind string

const (
	ElementHeading   ElementKind = "heading"
	ElementParagraph ElementKind = "paragraph"
	ElementTable     ElementKind = "table"
	ElementOther     ElementKind = "other"
)

// Element is one structural unit produced by the Parser (C3): a heading, a
// paragraph, a table, or an unparseable fallback region.
type Element struct {
	ID         string
	DocumentID string
	Kind       ElementKind
	Level      int // heading level 1-6; 0 for non-headings
	Text       string
	Metadata   map[string]string
	Ordinal    int  // position within the document
	Oversize   bool // table Element exceeds the Parser's configured row threshold; unsplit, splitting is the Chunker's job
}

// Chunk is a retrieval-sized span of text assembled from one or more
// Elements by the Chunker (C4).
type Chunk struct {
	ID         string
	DocumentID string
	ElementIDs []string
	Text       string
	TokenCount int
	HeaderPath []string // ordered ancestor heading strings, outermost first
	Ordinal    int
	Page       *int // page of the first underlying Element, nil if unknown
	IsTable    bool
	Metadata   map[string]string
}

// Embedding is the dense vector representation of one Chunk, produced by the
// Embedding Provider (C5) and indexed by the Vector Index (C6).
type Embedding struct {
	ChunkID     string
	DocumentID  string
	TenantID    string
	Vector      []float32
	Dimension   int
	ProviderTag string
}

// TenantScope carries the tenant identity through every metadata query so
// cross-tenant reads are a type error, not a missing WHERE clause.
type TenantScope struct {
	TenantID string
}

// DocumentStatusCounts summarizes job states for one document, used to
// compute an aggregate document status from its constituent jobs.
type DocumentStatusCounts struct {
	Queued  int
	Running int
	Done    int
	Failed  int
}
