package httpapi

import (
	"encoding/json"
	"net/http"

	"ragcore/internal/metadata"
	"ragcore/internal/retriever"
)

type queryRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Rerank bool   `json:"rerank"`
	MaxCtx int    `json:"max_ctx"`
}

type matchPayload struct {
	DocumentID  string   `json:"doc_id"`
	ChunkID     string   `json:"chunk_id"`
	Page        *int     `json:"page"`
	Score       float64  `json:"score"`
	Snippet     string   `json:"snippet"`
	Breadcrumbs []string `json:"breadcrumbs"`
}

func toMatchPayloads(matches []retriever.Match) []matchPayload {
	out := make([]matchPayload, len(matches))
	for i, m := range matches {
		out[i] = matchPayload{
			DocumentID: m.DocumentID, ChunkID: m.ChunkID, Page: m.Page,
			Score: m.Score, Snippet: m.Snippet, Breadcrumbs: m.Breadcrumbs,
		}
	}
	return out
}

// handleQuery implements POST /query: retrieval only, no LLM call.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, errMissingQuery)
		return
	}
	tenantID, _ := tenantFromContext(r.Context())

	resp, err := s.retr.Retrieve(r.Context(), retriever.Request{
		TenantID: tenantID, Query: req.Query, TopK: req.TopK, Rerank: req.Rerank, MaxCtxTokens: req.MaxCtx,
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"matches": toMatchPayloads(resp.Matches),
		"usage":   map[string]int{"ctx_tokens": resp.CtxTokens},
	})
}

type chunkResponse struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"doc_id"`
	Page       *int     `json:"page"`
	Text       string   `json:"text"`
	HeaderPath []string `json:"header_path"`
}

// handleGetChunk implements GET /chunks/{id}.
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenantFromContext(r.Context())
	chunkID := r.PathValue("id")

	chunks, err := s.store.GetChunksByIDs(r.Context(), metadata.TenantScope{TenantID: tenantID}, []string{chunkID})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if len(chunks) == 0 {
		respondError(w, http.StatusNotFound, metadata.ErrNotFound)
		return
	}
	c := chunks[0]
	respondJSON(w, http.StatusOK, chunkResponse{ID: c.ID, DocumentID: c.DocumentID, Page: c.Page, Text: c.Text, HeaderPath: c.HeaderPath})
}
