package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docqa/docqa-go/internal/answer"
)

// ---------------------------------------------------------------------------
// Fake asker for question handler tests
// ---------------------------------------------------------------------------

// fakeAsker implements the asker interface for tests.
type fakeAsker struct {
	ans     *answer.Answer
	err     error
	gotUser string
	gotSess string
	gotQ    string
}

func (f *fakeAsker) Ask(_ context.Context, user, session, question string) (*answer.Answer, error) {
	f.gotUser, f.gotSess, f.gotQ = user, session, question
	if f.err != nil {
		return nil, f.err
	}
	return f.ans, nil
}

// newChatTestServer builds a *Server wired with the given asker fake.
func newChatTestServer(a asker) *Server {
	return &Server{
		asker:   a,
		cfg:     &Config{Port: 8080},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func questionReq(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/chat/question?user=alice&session=s1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// POST /api/v1/chat/question
// ---------------------------------------------------------------------------

func TestHandleQuestion_Success(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{ans: &answer.Answer{
		Text:    "the report covers Q3 revenue",
		Sources: []answer.Source{{ID: "c1", Filename: "report.pdf", Score: 0.91}},
	}}
	s := newChatTestServer(a)

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`{"question":"what does the report cover?"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if a.gotUser != "alice" || a.gotSess != "s1" {
		t.Errorf("scope not forwarded: got %s/%s", a.gotUser, a.gotSess)
	}
	if a.gotQ != "what does the report cover?" {
		t.Errorf("question not forwarded: got %q", a.gotQ)
	}

	var resp answer.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "the report covers Q3 revenue" {
		t.Errorf("unexpected answer text: %q", resp.Text)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Filename != "report.pdf" {
		t.Errorf("sources lost: %v", resp.Sources)
	}
}

func TestHandleQuestion_EmptyQuestion(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{err: answer.ErrEmptyQuestion})

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`{"question":"   "}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("blank question must be 400, got %d", w.Code)
	}
}

func TestHandleQuestion_NoDocuments(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{err: answer.ErrNoDocuments})

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`{"question":"anything?"}`))

	if w.Code != http.StatusNotFound {
		t.Fatalf("empty scope must be 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no documents") {
		t.Errorf("detail should name the empty scope, got %s", w.Body.String())
	}
}

func TestHandleQuestion_NoRelevantContext(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{err: answer.ErrNoRelevantContext})

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`{"question":"anything?"}`))

	if w.Code != http.StatusNotFound {
		t.Fatalf("unanswerable question must be 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no relevant information") {
		t.Errorf("detail should name the missing context, got %s", w.Body.String())
	}
}

func TestHandleQuestion_BackendError(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{err: errors.New("LLM unavailable")})

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`{"question":"anything?"}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("backend failure must be 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "LLM unavailable") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestHandleQuestion_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{})

	w := httptest.NewRecorder()
	s.handleQuestion(w, questionReq(`not-json`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body must be 400, got %d", w.Code)
	}
}

func TestHandleQuestion_MissingScope(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeAsker{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/question?user=alice",
		strings.NewReader(`{"question":"hi"}`))
	w := httptest.NewRecorder()

	s.handleQuestion(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("missing session must be 400, got %d", w.Code)
	}
}
