package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// tenantPayloadField is the Qdrant payload key tenant filters match against.
const tenantPayloadField = "tenant_id"

// chunkIDPayloadField stores the original chunk ID, since Qdrant point IDs
// must be a UUID or a positive integer.
const chunkIDPayloadField = "chunk_id"

// QdrantIndex backs the Vector Index with Qdrant's gRPC API. Grounded on
// manifold's internal/persistence/databases/qdrant_vector.go: the same
// deterministic-UUID-from-chunk-ID trick (Qdrant rejects arbitrary string
// IDs) and collection bootstrap. Extended with a tenant_id payload field
// pushed into every query's Filter so cross-tenant hits can't leak through
// a client-side post-filter, and a client-side stable sort enforcing the
// chunk_id tiebreak Qdrant's own ranking doesn't guarantee.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
	metric     string
}

func NewQdrantIndex(ctx context.Context, dsn, collection string, dim int, metric string) (*QdrantIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorindex: qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: invalid qdrant port: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", ErrUnavailable, err)
	}

	idx := &QdrantIndex{client: client, collection: collection, dim: dim, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", ErrUnavailable, err)
	}
	if exists {
		return nil
	}
	if q.dim <= 0 {
		return fmt.Errorf("vectorindex: qdrant requires a positive dimension")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection: %w", err)
	}
	return nil
}

func chunkPointID(chunkID string) string {
	if _, err := uuid.Parse(chunkID); err == nil {
		return chunkID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		payload := qdrant.NewValueMap(map[string]any{
			tenantPayloadField:  e.TenantID,
			chunkIDPayloadField: e.ChunkID,
			"document_id":       e.DocumentID,
			"provider_tag":      e.ProviderTag,
		})
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkPointID(e.ChunkID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, qdrant.NewIDUUID(chunkPointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, tenantID string, query []float32, k int, probes int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(query))
	copy(vec, query)

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(tenantPayloadField, tenantID)},
	}
	limit := uint64(k)

	var params *qdrant.SearchParams
	if probes > 0 {
		hnswEf := uint64(probes)
		params = &qdrant.SearchParams{HnswEf: &hnswEf}
	}

	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         filter,
		Limit:          &limit,
		Params:         params,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunkID := ""
		if hit.Payload != nil {
			if v, ok := hit.Payload[chunkIDPayloadField]; ok {
				chunkID = v.GetStringValue()
			}
		}
		if chunkID == "" {
			chunkID = hit.Id.GetUuid()
		}
		score := float64(hit.Score)
		switch q.metric {
		case "l2", "euclidean", "ip", "dot":
			// left as-is: Qdrant's Euclid/Dot distance types don't share
			// cosine's [-1,1] similarity range.
		default:
			// Qdrant reports raw cosine similarity ([-1,1]) for the Cosine
			// distance type rather than a normalized score.
			score = normalizeScore(score)
		}
		out = append(out, Result{ChunkID: chunkID, Score: score})
	}
	sortResults(out)
	return out, nil
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
