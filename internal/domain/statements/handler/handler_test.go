package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
)

type fakeService struct {
	mu        sync.Mutex
	imports   map[uuid.UUID]*repository.StatementImport
	createErr error
	processed chan uuid.UUID
}

func newFakeService() *fakeService {
	return &fakeService{
		imports:   make(map[uuid.UUID]*repository.StatementImport),
		processed: make(chan uuid.UUID, 1),
	}
}

func (f *fakeService) CreateImport(_ context.Context, userID, accountID uuid.UUID, filename, _ string, r io.Reader) (*repository.StatementImport, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	imp := &repository.StatementImport{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: accountID,
		FilePath:  "statements/" + filename,
		Status:    repository.StatusPending,
		CreatedAt: time.Now(),
	}
	f.mu.Lock()
	f.imports[imp.ID] = imp
	f.mu.Unlock()
	return imp, nil
}

func (f *fakeService) GetImport(_ context.Context, id uuid.UUID) (*repository.StatementImport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	imp, ok := f.imports[id]
	if !ok {
		return nil, fmt.Errorf("statement import %s not found: %w", id, pgx.ErrNoRows)
	}
	return imp, nil
}

func (f *fakeService) Process(_ context.Context, importID uuid.UUID) error {
	f.processed <- importID
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func multipartUpload(t *testing.T, accountID string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("account_id", accountID))
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestCreateImport_Accepted(t *testing.T) {
	svc := newFakeService()
	h := New(svc, testLogger())
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	accountID := uuid.New()
	body, contentType := multipartUpload(t, accountID.String(), "march.pdf", []byte("%PDF-1.4"))

	req, err := http.NewRequest(http.MethodPost, server.URL+"/imports", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.New().String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got importResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "pending", got.Status)
	assert.NotEmpty(t, got.ID)

	select {
	case processedID := <-svc.processed:
		assert.Equal(t, got.ID, processedID.String(), "processing kicks off for the created import")
	case <-time.After(2 * time.Second):
		t.Fatal("expected background processing to start")
	}
}

func TestCreateImport_Validation(t *testing.T) {
	svc := newFakeService()
	h := New(svc, testLogger())
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	t.Run("missing user header", func(t *testing.T) {
		body, contentType := multipartUpload(t, uuid.New().String(), "march.pdf", []byte("%PDF"))
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/imports", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing account id", func(t *testing.T) {
		body, contentType := multipartUpload(t, "", "march.pdf", []byte("%PDF"))
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/imports", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", uuid.New().String())

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("non-pdf upload rejected", func(t *testing.T) {
		body, contentType := multipartUpload(t, uuid.New().String(), "data.csv", []byte("a,b,c"))
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/imports", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", uuid.New().String())

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}

func TestGetImport(t *testing.T) {
	svc := newFakeService()
	h := New(svc, testLogger())
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	msg := "ocr rate limit exceeded, try again later"
	imp := &repository.StatementImport{
		ID:           uuid.New(),
		Status:       repository.StatusFailed,
		ErrorMessage: &msg,
		CreatedAt:    time.Now(),
	}
	svc.imports[imp.ID] = imp

	resp, err := http.Get(server.URL + "/imports/" + imp.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got importResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "failed", got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, msg, *got.ErrorMessage)
}

func TestGetImport_NotFound(t *testing.T) {
	svc := newFakeService()
	h := New(svc, testLogger())
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/imports/" + uuid.New().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetImport_BadID(t *testing.T) {
	svc := newFakeService()
	h := New(svc, testLogger())
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/imports/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
