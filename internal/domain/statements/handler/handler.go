// Package handler exposes the statement import HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
)

// maxUploadBytes caps statement uploads at 20 MiB.
const maxUploadBytes = 20 << 20

// processTimeout bounds a single background pipeline run.
const processTimeout = 5 * time.Minute

// ImportService is the pipeline surface the HTTP layer needs
type ImportService interface {
	CreateImport(ctx context.Context, userID, accountID uuid.UUID, filename, contentType string, r io.Reader) (*repository.StatementImport, error)
	GetImport(ctx context.Context, id uuid.UUID) (*repository.StatementImport, error)
	Process(ctx context.Context, importID uuid.UUID) error
}

// Handler serves the statement import endpoints
type Handler struct {
	service ImportService
	logger  *slog.Logger
}

// New creates a statement import handler
func New(svc ImportService, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Routes mounts the import endpoints on a chi router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/imports", h.createImport)
	r.Get("/imports/{id}", h.getImport)
	return r
}

type importResponse struct {
	ID                   string  `json:"id"`
	Status               string  `json:"status"`
	TotalTransactions    int     `json:"total_transactions"`
	ImportedTransactions int     `json:"imported_transactions"`
	ErrorMessage         *string `json:"error_message,omitempty"`
	CreatedAt            string  `json:"created_at"`
}

// createImport accepts a multipart PDF upload, records a pending import and
// kicks off processing in the background. Responds 202 with the import id;
// clients poll GET /imports/{id} for the outcome.
func (h *Handler) createImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
		return
	}

	accountID, err := uuid.Parse(r.FormValue("account_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid account_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing statement file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.Contains(contentType, "pdf") && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusUnsupportedMediaType, "only PDF statements are supported")
		return
	}

	imp, err := h.service.CreateImport(r.Context(), userID, accountID, header.Filename, contentType, file)
	if err != nil {
		h.logger.Error("failed to create import", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create import")
		return
	}

	// Detached from the request: the upload is acknowledged, processing
	// continues whether or not the client waits.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.service.Process(ctx, imp.ID); err != nil {
			h.logger.Error("import processing failed", "import_id", imp.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, toResponse(imp))
}

// getImport returns the current state of an import for status polling
func (h *Handler) getImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid import id")
		return
	}

	imp, err := h.service.GetImport(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "import not found")
			return
		}
		h.logger.Error("failed to load import", "import_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(imp))
}

func toResponse(imp *repository.StatementImport) importResponse {
	return importResponse{
		ID:                   imp.ID.String(),
		Status:               string(imp.Status),
		TotalTransactions:    imp.TotalTransactions,
		ImportedTransactions: imp.ImportedTransactions,
		ErrorMessage:         imp.ErrorMessage,
		CreatedAt:            imp.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
