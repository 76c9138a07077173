package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex backs the Vector Index with pgvector. Grounded on
// manifold's internal/persistence/databases/postgres_vector.go: the same
// vector-literal encoding and metric-to-operator switch, extended with a
// tenant_id column pushed into every query's WHERE clause (spec.md §4.6
// forbids a sidecar post-filter that could leak cross-tenant hits) and an
// explicit chunk_id tiebreak in ORDER BY so ties resolve the same way the
// in-memory and Qdrant backends do.
type PostgresIndex struct {
	pool    *pgxpool.Pool
	dim     int
	metric  string
	lists   int
	probes  int
}

func NewPostgresIndex(ctx context.Context, pool *pgxpool.Pool, dim int, metric string, lists, probes int) (*PostgresIndex, error) {
	if lists <= 0 {
		lists = 100
	}
	if probes <= 0 {
		probes = 10
	}
	idx := &PostgresIndex{pool: pool, dim: dim, metric: strings.ToLower(strings.TrimSpace(metric)), lists: lists, probes: probes}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("vectorindex: enable pgvector extension: %w", err)
	}
	vecType := "vector"
	if p.dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", p.dim)
	}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunk_embeddings (
  chunk_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  vec %s NOT NULL,
  provider_tag TEXT NOT NULL DEFAULT ''
)`, vecType)); err != nil {
		return fmt.Errorf("vectorindex: create table: %w", err)
	}
	if _, err := p.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_tenant ON chunk_embeddings(tenant_id)`); err != nil {
		return fmt.Errorf("vectorindex: create tenant index: %w", err)
	}
	opClass := p.opClass()
	_, _ = p.pool.Exec(ctx, fmt.Sprintf(`
CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_ivfflat ON chunk_embeddings
USING ivfflat (vec %s) WITH (lists = %d)`, opClass, p.lists))
	return nil
}

func (p *PostgresIndex) opClass() string {
	switch p.metric {
	case "l2", "euclidean":
		return "vector_l2_ops"
	case "ip", "dot":
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func (p *PostgresIndex) scoreExpr() (op, expr string) {
	switch p.metric {
	case "l2", "euclidean":
		return "<->", "1 / (1 + (vec <-> $1::vector))"
	case "ip", "dot":
		return "<#>", "1 - (-(vec <#> $1::vector))"
	default:
		// pgvector's <=> operator returns cosine distance, so 1 - distance is
		// cosine similarity in [-1,1]; halve the distance term instead to
		// land the score in [0,1], matching the in-memory and Qdrant
		// backends' normalization.
		return "<=>", "1 - (vec <=> $1::vector) / 2"
	}
}

func (p *PostgresIndex) Upsert(ctx context.Context, entries []Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
INSERT INTO chunk_embeddings (chunk_id, document_id, tenant_id, vec, provider_tag)
VALUES ($1, $2, $3, $4::vector, $5)
ON CONFLICT (chunk_id) DO UPDATE SET
  document_id = EXCLUDED.document_id,
  tenant_id = EXCLUDED.tenant_id,
  vec = EXCLUDED.vec,
  provider_tag = EXCLUDED.provider_tag
`, e.ChunkID, e.DocumentID, e.TenantID, toVectorLiteral(e.Vector), e.ProviderTag)
		if err != nil {
			return fmt.Errorf("vectorindex: upsert %s: %w", e.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return fmt.Errorf("vectorindex: delete: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, tenantID string, query []float32, k int, probes int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	if probes <= 0 {
		probes = p.probes
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("vectorindex: set probes: %w", err)
	}

	op, scoreExpr := p.scoreExpr()
	query2 := fmt.Sprintf(`
SELECT chunk_id, %s AS score
FROM chunk_embeddings
WHERE tenant_id = $2
ORDER BY vec %s $1::vector, chunk_id ASC
LIMIT $3`, scoreExpr, op)

	rows, err := conn.Query(ctx, query2, toVectorLiteral(query), tenantID, k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, fmt.Errorf("vectorindex: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortResults(out)
	return out, nil
}

func (p *PostgresIndex) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
