package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docqa/docqa-go/internal/ingestion"
	"github.com/docqa/docqa-go/internal/logging"
	"github.com/docqa/docqa-go/internal/rag"
)

// handleDocumentIndex handles POST /api/v1/document/index?user=&session=.
// The body is multipart form data; every part named "files" is one PDF
// document. Files succeed or fail independently: the response always carries
// one result per file, and the status is 200 as long as at least one file was
// indexed. If every file failed the status is 500.
func (s *Server) handleDocumentIndex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	user, session, ok := scopeParams(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be multipart form data")
		return
	}

	var files []ingestion.File
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != "files" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		files = append(files, ingestion.File{Name: part.FileName(), Data: data})
	}

	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	results := s.indexer.IndexFiles(r.Context(), user, session, files)

	succeeded := 0
	for _, res := range results {
		s.metrics.ingestFilesTotal.WithLabelValues(res.Status).Inc()
		if res.Status == ingestion.StatusSuccess {
			succeeded++
			s.metrics.ingestChunksTotal.Add(float64(res.IndexedChunks))
		}
	}
	s.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())

	log.Info("document index completed",
		slog.String("user", user),
		slog.String("session", session),
		slog.Int("files", len(files)),
		slog.Int("succeeded", succeeded),
	)

	// Partial success is still success; only a fully failed batch is an
	// error response.
	status := http.StatusOK
	if succeeded == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, indexResponse{Results: results})
}

// handleDocumentDelete handles DELETE /api/v1/document/delete?user=&session=.
// The filename comes from the JSON body {"filename": ...}; a filename query
// parameter is accepted as a fallback. Removes every chunk of the named
// document within the scope. Responds 404 when the scope holds no chunks for
// that filename.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	user, session, ok := scopeParams(w, r)
	if !ok {
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = r.URL.Query().Get("filename")
	}
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	deleted, err := s.docs.DeleteByFilename(r.Context(), user, session, filename)
	if err != nil {
		if errors.Is(err, rag.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no documents found with the given filename")
			return
		}
		log.Error("document delete failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	log.Info("document deleted",
		slog.String("user", user),
		slog.String("session", session),
		slog.String("filename", filename),
		slog.Int("chunks", deleted),
	)
	writeJSON(w, http.StatusOK, deleteResponse{Filename: filename, DeletedChunks: deleted})
}

// handleDocumentList handles GET /api/v1/document/list?user=.
// Returns, per session of the user, the distinct filenames and their chunk
// counts. A user with no documents gets an empty session list, not an error.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	sessions, err := s.docs.ListByUser(r.Context(), user)
	if err != nil {
		log.Error("document list failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if sessions == nil {
		sessions = []rag.SessionSummary{}
	}

	writeJSON(w, http.StatusOK, listResponse{User: user, Sessions: sessions})
}

// scopeParams extracts the user and session query parameters, writing a 400
// response and returning ok=false when either is missing.
func scopeParams(w http.ResponseWriter, r *http.Request) (user, session string, ok bool) {
	q := r.URL.Query()
	user = q.Get("user")
	session = q.Get("session")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return "", "", false
	}
	if session == "" {
		writeError(w, http.StatusBadRequest, "session query parameter is required")
		return "", "", false
	}
	return user, session, true
}
