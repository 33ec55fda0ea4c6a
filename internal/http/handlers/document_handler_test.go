package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/search"
	"github.com/tbourn/go-docqa-backend/internal/services"
)

// ---------- test plumbing ----------

// newDocHandlers wires a real DocumentService over a fresh DB and registry.
func newDocHandlers(t *testing.T, opts ...search.Option) (*Handlers, *services.DocumentService, string) {
	t.Helper()
	db := newSessionDB(t)
	reg := services.NewCollectionRegistry(opts...)
	svc := services.NewDocumentService(db, reg)

	sess, err := repo.CreateSession(context.Background(), db, "u1", "Docs")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	h := New(stubSessSvc{}, svc, stubAnsSvc{}, stubFBSvc{})
	return h, svc, sess.ID
}

// Flexible document service stub for error paths
type stubDocSvcDoc struct {
	add    func(ctx context.Context, userID, sessionID, docID, text string, metadata map[string]any) (search.AddResult, error)
	list   func(ctx context.Context, userID, sessionID string) ([]search.DocumentInfo, error)
	clear  func(ctx context.Context, userID, sessionID string) (int, error)
	status func(ctx context.Context, userID, sessionID string) (search.Stats, search.Limits, int64, error)
}

func (s stubDocSvcDoc) AddDocument(ctx context.Context, userID, sessionID, docID, text string, metadata map[string]any) (search.AddResult, error) {
	return s.add(ctx, userID, sessionID, docID, text, metadata)
}

func (s stubDocSvcDoc) ListDocuments(ctx context.Context, userID, sessionID string) ([]search.DocumentInfo, error) {
	return s.list(ctx, userID, sessionID)
}

func (s stubDocSvcDoc) ClearDocuments(ctx context.Context, userID, sessionID string) (int, error) {
	return s.clear(ctx, userID, sessionID)
}

func (s stubDocSvcDoc) Status(ctx context.Context, userID, sessionID string) (search.Stats, search.Limits, int64, error) {
	return s.status(ctx, userID, sessionID)
}

// ---------- AddDocument ----------

func TestAddDocument_UUID_And_Binding(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _ := newDocHandlers(t)
	r := gin.New()
	r.POST("/sessions/:id/documents", h.AddDocument)

	// invalid UUID
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/not-uuid/documents", bytes.NewBufferString(`{"text":"x"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid uuid -> %d", w.Code)
	}

	// missing text
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.NewString()+"/documents", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing text -> %d", w.Code)
	}

	// whitespace-only text
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.NewString()+"/documents", bytes.NewBufferString(`{"text":"   "}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank text -> %d", w.Code)
	}
}

func TestAddDocument_SessionNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _ := newDocHandlers(t)
	r := gin.New()
	r.POST("/sessions/:id/documents", h.AddDocument)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.NewString()+"/documents", bytes.NewBufferString(`{"text":"hello world"}`))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session -> %d body=%s", w.Code, w.Body.String())
	}
}

func TestAddDocument_Success_Replace_And_Metadata(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, sessID := newDocHandlers(t)
	r := gin.New()
	r.POST("/sessions/:id/documents", h.AddDocument)
	r.GET("/sessions/:id/documents", h.ListDocuments)

	// first upload with explicit id and metadata
	w := httptest.NewRecorder()
	body := `{"id":"report","text":"Solar adoption grew sharply in 2024 across residential markets.","metadata":{"source":"energy.pdf"}}`
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessID+"/documents", bytes.NewBufferString(body))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}
	var out AddDocumentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.DocumentID != "report" || out.ChunkCount < 1 || out.CharCount == 0 || out.Replaced {
		t.Fatalf("unexpected response: %#v", out)
	}

	// same id again → replaced
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessID+"/documents", bytes.NewBufferString(`{"id":"report","text":"Entirely new content."}`))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("replace -> %d", w.Code)
	}
	var out2 AddDocumentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out2); err != nil {
		t.Fatalf("json2: %v", err)
	}
	if !out2.Replaced {
		t.Fatalf("expected replaced=true: %#v", out2)
	}

	// list shows a single document with the metadata from the second upload gone
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sessID+"/documents", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	var list ListDocumentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json list: %v", err)
	}
	if list.Count != 1 || len(list.Documents) != 1 || list.Documents[0].ID != "report" {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestAddDocument_GeneratedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, sessID := newDocHandlers(t)
	r := gin.New()
	r.POST("/sessions/:id/documents", h.AddDocument)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessID+"/documents", bytes.NewBufferString(`{"text":"No id supplied for this one."}`))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}
	var out AddDocumentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.DocumentID == "" {
		t.Fatalf("expected generated document id")
	}
}

func TestAddDocument_CapacityConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, sessID := newDocHandlers(t, search.WithMaxDocuments(1))
	r := gin.New()
	r.POST("/sessions/:id/documents", h.AddDocument)

	// fills the single slot
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessID+"/documents", bytes.NewBufferString(`{"id":"a","text":"first document"}`))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first -> %d", w.Code)
	}

	// second distinct id → capacity conflict
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessID+"/documents", bytes.NewBufferString(`{"id":"b","text":"second document"}`))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("capacity -> %d body=%s", w.Code, w.Body.String())
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeCapacityExceeded {
		t.Fatalf("code = %q, want %q", er.Code, ErrCodeCapacityExceeded)
	}
}

// ---------- ListDocuments / ClearDocuments ----------

func TestListDocuments_EmptyAndError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// empty corpus → 200 with empty slice
	h, _, sessID := newDocHandlers(t)
	r := gin.New()
	r.GET("/sessions/:id/documents", h.ListDocuments)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessID+"/documents", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("empty list -> %d", w.Code)
	}
	var list ListDocumentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if list.Count != 0 || list.Documents == nil {
		t.Fatalf("expected empty non-nil documents: %#v", list)
	}

	// generic service error → 500
	errStub := stubDocSvcDoc{
		list: func(ctx context.Context, userID, sessionID string) ([]search.DocumentInfo, error) {
			return nil, context.DeadlineExceeded
		},
	}
	h2 := New(stubSessSvc{}, errStub, stubAnsSvc{}, stubFBSvc{})
	r2 := gin.New()
	r2.GET("/sessions/:id/documents", h2.ListDocuments)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.NewString()+"/documents", nil)
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("list error -> %d", w.Code)
	}
}

func TestClearDocuments_RemovedCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, svc, sessID := newDocHandlers(t)
	r := gin.New()
	r.DELETE("/sessions/:id/documents", h.ClearDocuments)

	ctx := context.Background()
	if _, err := svc.AddDocument(ctx, "u1", sessID, "a", "first text body", nil); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if _, err := svc.AddDocument(ctx, "u1", sessID, "b", "second text body", nil); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+sessID+"/documents", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear -> %d body=%s", w.Code, w.Body.String())
	}
	var out ClearDocumentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Removed != 2 {
		t.Fatalf("removed = %d, want 2", out.Removed)
	}
}

// ---------- SessionStatus ----------

func TestSessionStatus_Success_And_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, svc, sessID := newDocHandlers(t, search.WithChunkSize(50), search.WithChunkOverlap(10))
	r := gin.New()
	r.GET("/sessions/:id/status", h.SessionStatus)

	ctx := context.Background()
	if _, err := svc.AddDocument(ctx, "u1", sessID, "d1", "Some indexable body of text for the corpus status check.", nil); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	// one exchange so the count is visible
	if _, err := repo.CreateExchange(svc.DB, sessID, "q?", "a", nil); err != nil {
		t.Fatalf("seed exchange: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessID+"/status", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status -> %d body=%s", w.Code, w.Body.String())
	}
	var out SessionStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.SessionID != sessID || out.Documents != 1 || out.Chunks < 1 || out.Terms < 1 {
		t.Fatalf("unexpected status: %#v", out)
	}
	if out.Exchanges != 1 {
		t.Fatalf("exchanges = %d, want 1", out.Exchanges)
	}
	if out.Limits.ChunkSize != 50 || out.Limits.ChunkOverlap != 10 {
		t.Fatalf("limits not reported: %#v", out.Limits)
	}

	// unknown session → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.NewString()+"/status", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session -> %d", w.Code)
	}
}

// ---------- timing seam sanity ----------

func TestDocumentService_NowSeam(t *testing.T) {
	// The handler layer never touches Now directly; this guards the wiring in
	// newDocHandlers against a nil seam.
	db := newSessionDB(t)
	svc := services.NewDocumentService(db, services.NewCollectionRegistry())
	if svc.Now == nil {
		t.Fatalf("NewDocumentService must set the Now seam")
	}
	if d := time.Since(svc.Now()); d < 0 || d > time.Minute {
		t.Fatalf("Now seam should track wall clock")
	}
}
