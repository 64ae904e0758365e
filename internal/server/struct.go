package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docqa/docqa-go/internal/answer"
	"github.com/docqa/docqa-go/internal/ingestion"
	"github.com/docqa/docqa-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// RequestTimeout caps the total handling time of API requests; requests
	// that exceed it receive 504 Gateway Timeout. Defaults to 600s.
	RequestTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the total size of a multipart index request.
	// Defaults to 64 MiB.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// CORSOrigin is the value sent in Access-Control-Allow-Origin.
	// Defaults to "*".
	CORSOrigin string
}

// indexer is the interface handleDocumentIndex calls to run the ingestion
// pipeline. *ingestion.Pipeline satisfies it; tests inject a fake.
type indexer interface {
	// IndexFiles indexes the uploaded files under the (user, session) scope
	// and returns one result per file, in input order.
	IndexFiles(ctx context.Context, user, session string, files []ingestion.File) []ingestion.FileResult
}

// asker is the interface handleQuestion calls to answer a question.
// *answer.Pipeline satisfies it; tests inject a fake.
type asker interface {
	// Ask answers the question against the (user, session) scope.
	Ask(ctx context.Context, user, session, question string) (*answer.Answer, error)
}

// documents is the slice of the chunk store the delete and list handlers use.
type documents interface {
	// DeleteByFilename removes a document's chunks and reports how many.
	DeleteByFilename(ctx context.Context, user, session, filename string) (int, error)
	// ListByUser returns per-session document summaries.
	ListByUser(ctx context.Context, user string) ([]rag.SessionSummary, error)
}

// Server is the HTTP server that exposes the document indexing and
// question-answering API.
type Server struct {
	// indexer runs the document ingestion pipeline.
	indexer indexer
	// asker runs the question-answering pipeline.
	asker asker
	// docs serves document delete and list requests.
	docs documents
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// questionRequest is the JSON body for POST /api/v1/chat/question.
type questionRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// deleteRequest is the JSON body for DELETE /api/v1/document/delete.
type deleteRequest struct {
	// Filename names the document whose chunks should be removed.
	Filename string `json:"filename"`
}

// indexResponse is the JSON response for POST /api/v1/document/index.
type indexResponse struct {
	// Results holds one entry per uploaded file, in upload order.
	Results []ingestion.FileResult `json:"results"`
}

// deleteResponse is the JSON response for DELETE /api/v1/document/delete.
type deleteResponse struct {
	// Filename is the document whose chunks were removed.
	Filename string `json:"filename"`
	// DeletedChunks is the number of chunks removed.
	DeletedChunks int `json:"deleted_chunks"`
}

// listResponse is the JSON response for GET /api/v1/document/list.
type listResponse struct {
	// User echoes the queried user identifier.
	User string `json:"user"`
	// Sessions holds per-session document summaries.
	Sessions []rag.SessionSummary `json:"sessions"`
}

// errorResponse is the JSON error body used by all handlers.
type errorResponse struct {
	// Detail is the human-readable failure reason.
	Detail string `json:"detail"`
}
