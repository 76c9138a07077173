package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of pgx/v5, following the
// create-if-not-exists bootstrap style manifold's
// internal/persistence/databases postgres backends use for dev deployments.
// Production deployments are expected to manage schema migrations with an
// external tool; PostgresStore's schema setup is best-effort.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open pool: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			mime TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			storage_uri TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			version INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_tenant_hash ON documents(tenant_id, content_hash)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			last_error TEXT NOT NULL DEFAULT '',
			progress INT NOT NULL DEFAULT 0,
			available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs(kind, status, available_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_document ON jobs(document_id)`,
		`CREATE TABLE IF NOT EXISTS elements (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			level INT NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			ordinal INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_elements_document ON elements(document_id, ordinal)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			element_ids JSONB NOT NULL DEFAULT '[]',
			text TEXT NOT NULL,
			token_count INT NOT NULL,
			header_path JSONB NOT NULL DEFAULT '[]',
			ordinal INT NOT NULL,
			page INT,
			is_table BOOLEAN NOT NULL DEFAULT false,
			metadata JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, ordinal)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			dimension INT NOT NULL,
			provider_tag TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("metadata: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	now := time.Now().UTC()
	if doc.Status == "" {
		doc.Status = DocumentUploaded
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, name, mime, size_bytes, storage_uri, content_hash, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, doc.ID, doc.TenantID, doc.Name, doc.Mime, doc.SizeBytes, doc.StorageURI, doc.ContentHash, doc.Status, doc.Version, now)
	if err != nil {
		return Document{}, fmt.Errorf("metadata: create document: %w", err)
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, scope TenantScope, documentID string) (Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, mime, size_bytes, storage_uri, content_hash, status, version, created_at, updated_at
		FROM documents WHERE id=$1 AND tenant_id=$2
	`, documentID, scope.TenantID)
	var d Document
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Mime, &d.SizeBytes, &d.StorageURI, &d.ContentHash, &d.Status, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("metadata: get document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindDocumentByHash(ctx context.Context, scope TenantScope, contentHash string) (Document, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, mime, size_bytes, storage_uri, content_hash, status, version, created_at, updated_at
		FROM documents WHERE tenant_id=$1 AND content_hash=$2
		ORDER BY created_at DESC LIMIT 1
	`, scope.TenantID, contentHash)
	var d Document
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Mime, &d.SizeBytes, &d.StorageURI, &d.ContentHash, &d.Status, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("metadata: find document by hash: %w", err)
	}
	return d, true, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, scope TenantScope, documentID string, status DocumentStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET status=$1, updated_at=now() WHERE id=$2 AND tenant_id=$3`,
		status, documentID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("metadata: update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) BumpDocumentVersion(ctx context.Context, scope TenantScope, documentID string) (int, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE documents SET version = version + 1, updated_at = now()
		WHERE id=$1 AND tenant_id=$2
		RETURNING version
	`, documentID, scope.TenantID)
	var v int
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("metadata: bump document version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) EnqueueJob(ctx context.Context, job Job) (Job, error) {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, tenant_id, document_id, kind, status, attempts, max_attempts, last_error, progress, available_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	`, job.ID, job.TenantID, job.DocumentID, job.Kind, job.Status, job.Attempts, job.MaxAttempts, job.LastError, job.Progress, job.AvailableAt, now)
	if err != nil {
		return Job{}, fmt.Errorf("metadata: enqueue job: %w", err)
	}
	job.CreatedAt, job.UpdatedAt = now, now
	return job, nil
}

// ClaimJob uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent worker pool
// members never double-claim the same job row; the oldest eligible job wins.
func (s *PostgresStore) ClaimJob(ctx context.Context, kind JobKind) (Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("metadata: claim job begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, tenant_id, document_id, kind, status, attempts, max_attempts, last_error, progress, available_at, created_at, updated_at
		FROM jobs
		WHERE kind=$1 AND status=$2 AND available_at <= now()
		ORDER BY available_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, kind, JobQueued)

	var j Job
	if err := row.Scan(&j.ID, &j.TenantID, &j.DocumentID, &j.Kind, &j.Status, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.Progress, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("metadata: claim job scan: %w", err)
	}

	j.Status = JobRunning
	j.Attempts++
	if _, err := tx.Exec(ctx, `UPDATE jobs SET status=$1, attempts=$2, updated_at=now() WHERE id=$3`, j.Status, j.Attempts, j.ID); err != nil {
		return Job{}, fmt.Errorf("metadata: claim job update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("metadata: claim job commit: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, scope TenantScope, jobID string) (Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, document_id, kind, status, attempts, max_attempts, last_error, progress, available_at, created_at, updated_at
		FROM jobs WHERE id=$1 AND tenant_id=$2
	`, jobID, scope.TenantID)
	var j Job
	if err := row.Scan(&j.ID, &j.TenantID, &j.DocumentID, &j.Kind, &j.Status, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.Progress, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("metadata: get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, document_id, kind, status, attempts, max_attempts, last_error, progress, available_at, created_at, updated_at
		FROM jobs WHERE document_id=$1 AND tenant_id=$2 ORDER BY created_at ASC
	`, documentID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list jobs by document: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.TenantID, &j.DocumentID, &j.Kind, &j.Status, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.Progress, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("metadata: list jobs by document scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET progress=$1, updated_at=now() WHERE id=$2`, progress, jobID)
	if err != nil {
		return fmt.Errorf("metadata: update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FinalizeJob(ctx context.Context, jobID string, status JobStatus, lastError string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET status=$1, last_error=$2, updated_at=now() WHERE id=$3`, status, lastError, jobID)
	if err != nil {
		return fmt.Errorf("metadata: finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) EnqueueRetry(ctx context.Context, job Job, delay time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status=$1, last_error=$2, available_at=$3, updated_at=now()
		WHERE id=$4
	`, JobQueued, job.LastError, time.Now().UTC().Add(delay), job.ID)
	if err != nil {
		return fmt.Errorf("metadata: enqueue retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) JobStatusCounts(ctx context.Context, scope TenantScope, documentID string) (DocumentStatusCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM jobs WHERE document_id=$1 AND tenant_id=$2 GROUP BY status
	`, documentID, scope.TenantID)
	if err != nil {
		return DocumentStatusCounts{}, fmt.Errorf("metadata: job status counts: %w", err)
	}
	defer rows.Close()

	var c DocumentStatusCounts
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return DocumentStatusCounts{}, fmt.Errorf("metadata: job status counts scan: %w", err)
		}
		switch status {
		case JobQueued:
			c.Queued = n
		case JobRunning:
			c.Running = n
		case JobDone:
			c.Done = n
		case JobFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

func (s *PostgresStore) UpsertElements(ctx context.Context, documentID string, elements []Element) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("metadata: upsert elements begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM elements WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("metadata: clear elements: %w", err)
	}
	for _, e := range elements {
		meta, _ := json.Marshal(e.Metadata)
		if _, err := tx.Exec(ctx, `
			INSERT INTO elements (id, document_id, kind, level, text, metadata, ordinal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, e.ID, documentID, e.Kind, e.Level, e.Text, meta, e.Ordinal); err != nil {
			return fmt.Errorf("metadata: insert element: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetElements(ctx context.Context, scope TenantScope, documentID string) ([]Element, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.document_id, e.kind, e.level, e.text, e.metadata, e.ordinal
		FROM elements e JOIN documents d ON d.id = e.document_id
		WHERE e.document_id=$1 AND d.tenant_id=$2
		ORDER BY e.ordinal ASC
	`, documentID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get elements: %w", err)
	}
	defer rows.Close()

	var out []Element
	for rows.Next() {
		var e Element
		var meta []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Kind, &e.Level, &e.Text, &meta, &e.Ordinal); err != nil {
			return nil, fmt.Errorf("metadata: scan element: %w", err)
		}
		_ = json.Unmarshal(meta, &e.Metadata)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("metadata: replace chunks begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("metadata: clear embeddings: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("metadata: clear chunks: %w", err)
	}
	for _, c := range chunks {
		elemIDs, _ := json.Marshal(c.ElementIDs)
		headerPath, _ := json.Marshal(c.HeaderPath)
		meta, _ := json.Marshal(c.Metadata)
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, element_ids, text, token_count, header_path, ordinal, page, is_table, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, c.ID, documentID, elemIDs, c.Text, c.TokenCount, headerPath, c.Ordinal, c.Page, c.IsTable, meta); err != nil {
			return fmt.Errorf("metadata: insert chunk: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetChunksByIDs(ctx context.Context, scope TenantScope, chunkIDs []string) ([]Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.element_ids, c.text, c.token_count, c.header_path, c.ordinal, c.page, c.is_table, c.metadata
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id = ANY($1) AND d.tenant_id=$2
	`, chunkIDs, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get chunks by ids: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *PostgresStore) GetChunksByDocument(ctx context.Context, scope TenantScope, documentID string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.element_ids, c.text, c.token_count, c.header_path, c.ordinal, c.page, c.is_table, c.metadata
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.document_id=$1 AND d.tenant_id=$2
		ORDER BY c.ordinal ASC
	`, documentID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get chunks by document: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var elemIDs, headerPath, meta []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &elemIDs, &c.Text, &c.TokenCount, &headerPath, &c.Ordinal, &c.Page, &c.IsTable, &meta); err != nil {
			return nil, fmt.Errorf("metadata: scan chunk: %w", err)
		}
		_ = json.Unmarshal(elemIDs, &c.ElementIDs)
		_ = json.Unmarshal(headerPath, &c.HeaderPath)
		_ = json.Unmarshal(meta, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("metadata: upsert embeddings begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range embeddings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO embeddings (chunk_id, document_id, tenant_id, dimension, provider_tag)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (chunk_id) DO UPDATE SET dimension=$4, provider_tag=$5
		`, e.ChunkID, e.DocumentID, e.TenantID, e.Dimension, e.ProviderTag); err != nil {
			return fmt.Errorf("metadata: upsert embedding row: %w", err)
		}
	}
	return tx.Commit(ctx)
}
