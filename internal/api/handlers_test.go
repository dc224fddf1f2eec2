package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstack/pdfchat/internal/chunker"
	"github.com/docstack/pdfchat/internal/core"
	"github.com/docstack/pdfchat/internal/extract"
	"github.com/docstack/pdfchat/internal/store"
	"github.com/docstack/pdfchat/internal/vectorstore"
)

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return []byte("extracted page text\f"), nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestHandler(t *testing.T) (*APIHandler, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vectors := vectorstore.New(t.TempDir())
	splitter := chunker.NewSplitter(1000, 200)
	indexer := core.NewIndexer(stubEmbedder{}, splitter, vectors)
	extractor := extract.NewExtractorWithRunner(stubRunner{})

	cs := core.NewChatService(db, nil, nil)
	h := NewAPIHandler(db, cs, indexer, extractor, t.TempDir())
	return h, db
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func asUser(r *http.Request, userID int64) *http.Request {
	ctx := context.WithValue(r.Context(), "userID", userID)
	return r.WithContext(ctx)
}

func TestHealthRoute(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadRejectsNonPDF(t *testing.T) {
	h, _ := newTestHandler(t)

	body, contentType := multipartUpload(t, "file", "evil.pdf", []byte("just some text"))
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/pdfs", body), 1)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.UploadPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a valid PDF")
}

func TestUploadRequiresFileField(t *testing.T) {
	h, _ := newTestHandler(t)

	body, contentType := multipartUpload(t, "wrong_field", "doc.pdf", []byte("%PDF-1.4 stuff"))
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/pdfs", body), 1)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.UploadPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStoresDocument(t *testing.T) {
	h, db := newTestHandler(t)
	user, err := db.CreateUser("alice", "h")
	require.NoError(t, err)

	content := []byte("%PDF-1.4\nfake pdf body")
	body, contentType := multipartUpload(t, "file", "report.pdf", content)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/pdfs", body), user.ID)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.UploadPDFHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var doc store.Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, user.ID, doc.UserID)

	// The upload is stored byte for byte, magic prefix included.
	saved, err := os.ReadFile(h.uploadPath(doc.ID))
	require.NoError(t, err)
	assert.Equal(t, content, saved)

	docs, err := db.GetDocumentsByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestFeedbackUnknownMessage(t *testing.T) {
	h, _ := newTestHandler(t)

	payload := bytes.NewBufferString(`{"negative": true}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/messages/nope/feedback", payload), 1)

	rec := httptest.NewRecorder()
	h.MessageFeedbackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
