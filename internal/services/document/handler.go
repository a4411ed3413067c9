// internal/services/document/handler.go
package document

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	commonauth "platform-services/internal/common/auth"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/upload", h.Upload)
	r.Get("/", h.List)
	r.Get("/search", h.Search)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/download", h.Download)
	r.Post("/{id}/review", h.Review)
	r.Post("/{id}/reset", h.Reset)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	maxSize := h.service.config.MaxSizeBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			commonerrors.WriteHTTP(w, commonerrors.NewPayloadTooLargeError(maxSize))
			return
		}
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(r.Context(), UploadInput{
		OwnerID:     commonauth.UserID(r.Context()),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	})
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.service.List(r.Context(), commonauth.UserID(r.Context()), limit, offset)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), commonauth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := h.service.Download(r.Context(), commonauth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"document_id": doc.ID,
		}).Warn("download stream interrupted")
	}
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("invalid JSON body"))
		return
	}

	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "reject":
		approve = false
	default:
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("decision must be 'approve' or 'reject'"))
		return
	}

	doc, err := h.service.Review(r.Context(), commonauth.UserID(r.Context()), chi.URLParam(r, "id"), approve, req.Note)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Reset(r.Context(), commonauth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), commonauth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.service.Search(r.Context(), commonauth.UserID(r.Context()), q, limit)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
