package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/docqa/docqa-go/internal/answer"
	"github.com/docqa/docqa-go/internal/logging"
)

// handleQuestion handles POST /api/v1/chat/question?user=&session=.
// The body is {"question": "..."}. The answer is grounded exclusively in the
// scope's documents: a blank question is 400, a never-ingested scope is 404,
// and a question nothing matched is also 404 with a distinct detail.
func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	user, session, ok := scopeParams(w, r)
	if !ok {
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ans, err := s.asker.Ask(r.Context(), user, session, req.Question)

	outcome := "ok"
	status := http.StatusOK
	detail := ""
	switch {
	case err == nil:
	case errors.Is(err, answer.ErrEmptyQuestion):
		outcome, status, detail = "empty", http.StatusBadRequest, "question cannot be empty"
	case errors.Is(err, answer.ErrNoDocuments):
		outcome, status, detail = "no_documents", http.StatusNotFound, "no documents found for the session"
	case errors.Is(err, answer.ErrNoRelevantContext):
		outcome, status, detail = "no_context", http.StatusNotFound, "no relevant information found for the question"
	default:
		outcome, status, detail = "error", http.StatusInternalServerError, "failed to generate response"
		log.Error("question failed", slog.Any("error", err))
	}

	s.metrics.questionRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.questionDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		writeError(w, status, detail)
		return
	}

	log.Info("question answered",
		slog.String("user", user),
		slog.String("session", session),
		slog.Int("sources", len(ans.Sources)),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, ans)
}
