package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/platform/logging"
)

var errUnsupportedMime = errors.New("httpapi: unsupported mime type")

// isSupportedUpload mirrors the Parser's own format classification closely
// enough to reject an unsupported upload before it is ever stored, without
// this package importing the Parser's unexported classify table.
func isSupportedUpload(mimeType, filename string) bool {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "pdf"),
		strings.Contains(m, "spreadsheet"), strings.Contains(m, "excel"),
		strings.Contains(m, "html"),
		strings.Contains(m, "markdown"),
		strings.Contains(m, "csv"), strings.Contains(m, "tsv"),
		strings.Contains(m, "text/plain"):
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range []string{".pdf", ".xlsx", ".xls", ".html", ".htm", ".md", ".markdown", ".csv", ".tsv", ".txt"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

type ingestResponse struct {
	JobID               string `json:"job_id"`
	DocumentID          string `json:"document_id"`
	Status              string `json:"status"`
	PossibleDuplicateOf string `json:"possible_duplicate_of,omitempty"`
}

// handleIngest implements POST /ingest. Uploading with an explicit
// "document_id" form field re-ingests into an existing document (replace
// semantics, bumped version); omitting it always creates a new document,
// even if identical content was uploaded before — deduplication of
// identical uploads is explicitly out of scope.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := tenantFromContext(ctx)
	log := logging.FromContext(ctx)

	maxBytes := int64(s.cfg.S3.MaxObjectMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: %v", objectstore.ErrPayloadTooLarge, err))
			return
		}
		respondError(w, http.StatusBadRequest, fmt.Errorf("httpapi: malformed upload: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("httpapi: missing file: %w", err))
		return
	}
	defer file.Close()

	safeMode, _ := strconv.ParseBool(r.FormValue("safe_mode"))
	log.Info().Bool("safe_mode", safeMode).Msg("ingest requested")

	sniff := make([]byte, 512)
	n, _ := io.ReadFull(file, sniff)
	sniff = sniff[:n]
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(sniff)
	}
	if !isSupportedUpload(mimeType, header.Filename) {
		respondError(w, http.StatusUnsupportedMediaType, fmt.Errorf("%w: %q", errUnsupportedMime, mimeType))
		return
	}

	scope := metadata.TenantScope{TenantID: tenantID}
	documentID := r.FormValue("document_id")
	isReingest := documentID != ""
	if isReingest {
		if _, err := s.store.GetDocument(ctx, scope, documentID); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	} else {
		documentID = uuid.NewString()
	}

	hasher := sha256.New()
	full := io.TeeReader(io.MultiReader(bytes.NewReader(sniff), file), hasher)
	storageKey := "docs/" + documentID
	if _, err := s.objects.Put(ctx, storageKey, full, objectstore.PutOptions{ContentType: mimeType}); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	var duplicateOf string
	if !isReingest {
		if dup, ok, err := s.store.FindDocumentByHash(ctx, scope, contentHash); err == nil && ok {
			duplicateOf = dup.ID
		}
		if _, err := s.store.CreateDocument(ctx, metadata.Document{
			ID: documentID, TenantID: tenantID, Name: header.Filename, Mime: mimeType,
			SizeBytes: header.Size, StorageURI: storageKey, ContentHash: contentHash,
		}); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	} else {
		if _, err := s.store.BumpDocumentVersion(ctx, scope, documentID); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
		if err := s.store.UpdateDocumentStatus(ctx, scope, documentID, metadata.DocumentUploaded); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	}

	job, err := s.store.EnqueueJob(ctx, metadata.Job{
		ID: uuid.NewString(), TenantID: tenantID, DocumentID: documentID,
		Kind: metadata.JobParse, MaxAttempts: s.cfg.Jobs.MaxAttempts,
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	respondJSON(w, http.StatusAccepted, ingestResponse{
		JobID: job.ID, DocumentID: documentID, Status: string(metadata.JobQueued), PossibleDuplicateOf: duplicateOf,
	})
}

type jobResponse struct {
	JobID      string  `json:"job_id"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Progress   int     `json:"progress"`
	DocumentID string  `json:"document_id"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	Error      *string `json:"error,omitempty"`
}

func toJobResponse(j metadata.Job) jobResponse {
	resp := jobResponse{
		JobID: j.ID, Kind: string(j.Kind), Status: string(j.Status), Progress: j.Progress,
		DocumentID: j.DocumentID, CreatedAt: j.CreatedAt.Format(time.RFC3339), UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	if j.LastError != "" {
		resp.Error = &j.LastError
	}
	return resp
}

// handleGetJob implements GET /ingest/{job_id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenantFromContext(r.Context())
	job, err := s.store.GetJob(r.Context(), metadata.TenantScope{TenantID: tenantID}, r.PathValue("job_id"))
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

type documentJobsResponse struct {
	DocumentID string        `json:"document_id"`
	Status     string        `json:"status"`
	Jobs       []jobResponse `json:"jobs"`
}

// handleGetDocumentJobs implements GET /ingest/document/{document_id}.
func (s *Server) handleGetDocumentJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := tenantFromContext(ctx)
	scope := metadata.TenantScope{TenantID: tenantID}
	documentID := r.PathValue("document_id")

	doc, err := s.store.GetDocument(ctx, scope, documentID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	jobs, err := s.store.ListJobsByDocument(ctx, scope, documentID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = toJobResponse(j)
	}
	respondJSON(w, http.StatusOK, documentJobsResponse{DocumentID: doc.ID, Status: string(doc.Status), Jobs: out})
}
