// internal/services/document/service.go
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"platform-services/internal/common/config"
	"platform-services/internal/common/database"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/notify"
	"platform-services/internal/models"
)

type PermissionChecker interface {
	Check(ctx context.Context, userID, permission string) (bool, error)
}

type Service struct {
	config    config.DocumentsConfig
	store     Store
	storage   ObjectStorage
	search    *database.ElasticsearchClient
	perms     PermissionChecker
	publisher events.Publisher
	notifier  *notify.Notifier
	logger    logger.Logger
}

func NewService(
	cfg config.DocumentsConfig,
	store Store,
	storage ObjectStorage,
	search *database.ElasticsearchClient,
	perms PermissionChecker,
	publisher events.Publisher,
	notifier *notify.Notifier,
	log logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		store:     store,
		storage:   storage,
		search:    search,
		perms:     perms,
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
	}
}

type UploadInput struct {
	OwnerID     string
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Upload validates the file, stores the content under a generated key and
// records the metadata row. The object is removed again if the metadata
// insert fails so storage and database stay consistent.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if err := s.validateUpload(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          uuid.New().String(),
		OwnerID:     in.OwnerID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		SizeBytes:   in.Size,
		Status:      models.DocumentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.StorageKey = doc.ID + strings.ToLower(filepath.Ext(in.Filename))

	if err := s.storage.Put(ctx, doc.StorageKey, in.Content, in.Size, in.ContentType); err != nil {
		return nil, commonerrors.NewStorageError(err)
	}

	if err := s.store.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, doc.StorageKey); delErr != nil {
			s.logger.WithError(delErr).WithFields(map[string]interface{}{
				"storage_key": doc.StorageKey,
			}).Error("failed to clean up orphaned object after insert failure")
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	s.indexDocument(ctx, doc)

	s.publisher.Emit(ctx, events.TypeDocumentUploaded, in.OwnerID, map[string]interface{}{
		"document_id":  doc.ID,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
	})

	s.logger.WithFields(map[string]interface{}{
		"document_id": doc.ID,
		"owner_id":    in.OwnerID,
		"size_bytes":  in.Size,
	}).Info("document uploaded")

	return doc, nil
}

func (s *Service) validateUpload(in UploadInput) error {
	if in.Filename == "" {
		return commonerrors.NewValidationError("filename is required")
	}
	if in.Size <= 0 {
		return commonerrors.NewValidationError("file is empty")
	}
	if in.Size > s.config.MaxSizeBytes {
		return commonerrors.NewPayloadTooLargeError(s.config.MaxSizeBytes)
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !contains(s.config.AllowedExtensions, ext) {
		return commonerrors.NewUnsupportedMediaError(fmt.Sprintf("extension %q is not allowed", ext))
	}
	mediaType := in.ContentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if !contains(s.config.AllowedMIMETypes, strings.ToLower(mediaType)) {
		return commonerrors.NewUnsupportedMediaError(fmt.Sprintf("content type %q is not allowed", mediaType))
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// indexDocument mirrors the metadata into the search index. Failures are
// logged and do not fail the upload.
func (s *Service) indexDocument(ctx context.Context, doc *models.Document) {
	if s.search == nil {
		return
	}
	body := map[string]interface{}{
		"id":           doc.ID,
		"owner_id":     doc.OwnerID,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
		"status":       string(doc.Status),
		"created_at":   doc.CreatedAt.Format(time.RFC3339),
	}
	if err := s.search.Index(ctx, s.config.IndexName, doc.ID, body); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"document_id": doc.ID,
		}).Warn("failed to index document metadata")
	}
}

// List returns the caller's documents, or all documents when the caller holds
// the list-all permission.
func (s *Service) List(ctx context.Context, callerID string, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.perms.Check(ctx, callerID, models.PermDocumentListAll)
	if err != nil {
		// Degrade to the caller's own documents rather than failing the list.
		s.logger.WithError(err).Warn("permission check failed, listing own documents only")
		all = false
	}

	var docs []*models.Document
	if all {
		docs, err = s.store.ListAll(ctx, limit, offset)
	} else {
		docs, err = s.store.ListByOwner(ctx, callerID, limit, offset)
	}
	if err != nil {
		return nil, commonerrors.NewDatabaseError(err)
	}
	return docs, nil
}

// Get returns the metadata for one document. Non-owners need the list-all
// permission.
func (s *Service) Get(ctx context.Context, callerID, docID string) (*models.Document, error) {
	doc, err := s.store.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("document", docID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}
	if err := s.authorizeRead(ctx, callerID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Download streams the stored object. The caller owns the metadata check.
func (s *Service) Download(ctx context.Context, callerID, docID string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, callerID, docID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, commonerrors.NewStorageError(err)
	}
	return doc, rc, nil
}

func (s *Service) authorizeRead(ctx context.Context, callerID string, doc *models.Document) error {
	if doc.OwnerID == callerID {
		return nil
	}
	allowed, err := s.perms.Check(ctx, callerID, models.PermDocumentListAll)
	if err != nil {
		return err
	}
	if !allowed {
		return commonerrors.NewNotFoundError("document", doc.ID)
	}
	return nil
}

// Review approves or rejects a pending document. Only reviewers may call it.
// A rejected document cannot be approved directly; it has to go through Reset
// first.
func (s *Service) Review(ctx context.Context, reviewerID, docID string, approve bool, note string) (*models.Document, error) {
	allowed, err := s.perms.Check(ctx, reviewerID, models.PermDocumentReview)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, commonerrors.NewPermissionDeniedError(models.PermDocumentReview)
	}

	doc, err := s.store.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("document", docID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	next := models.DocumentRejected
	if approve {
		next = models.DocumentApproved
	}
	if !doc.CanTransitionTo(next) {
		return nil, commonerrors.NewInvalidStatusError(string(doc.Status), string(next))
	}

	updated, err := s.store.UpdateStatus(ctx, docID, next, note, reviewerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a race with another reviewer.
			return nil, commonerrors.NewInvalidStatusError(string(doc.Status), string(next))
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	s.indexDocument(ctx, updated)
	s.notifyOwner(ctx, updated)

	s.publisher.Emit(ctx, events.TypeDocumentReviewed, updated.OwnerID, map[string]interface{}{
		"document_id": updated.ID,
		"status":      string(updated.Status),
		"reviewed_by": reviewerID,
	})

	return updated, nil
}

// Reset moves a rejected document back to pending so the owner can be
// re-reviewed. Only the owner or a reviewer may reset.
func (s *Service) Reset(ctx context.Context, callerID, docID string) (*models.Document, error) {
	doc, err := s.store.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("document", docID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	if doc.OwnerID != callerID {
		allowed, err := s.perms.Check(ctx, callerID, models.PermDocumentReview)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, commonerrors.NewNotFoundError("document", docID)
		}
	}

	if !doc.CanTransitionTo(models.DocumentPending) {
		return nil, commonerrors.NewInvalidStatusError(string(doc.Status), string(models.DocumentPending))
	}

	updated, err := s.store.UpdateStatus(ctx, docID, models.DocumentPending, "", "")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewInvalidStatusError(string(doc.Status), string(models.DocumentPending))
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	s.indexDocument(ctx, updated)
	return updated, nil
}

// Delete removes the metadata row, the stored object and the search index
// entry. Only the owner or a reviewer may delete; other callers get not-found
// so document existence is not leaked.
func (s *Service) Delete(ctx context.Context, callerID, docID string) error {
	doc, err := s.store.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return commonerrors.NewNotFoundError("document", docID)
		}
		return commonerrors.NewDatabaseError(err)
	}

	if doc.OwnerID != callerID {
		allowed, err := s.perms.Check(ctx, callerID, models.PermDocumentReview)
		if err != nil {
			return err
		}
		if !allowed {
			return commonerrors.NewNotFoundError("document", docID)
		}
	}

	if err := s.store.Delete(ctx, docID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return commonerrors.NewNotFoundError("document", docID)
		}
		return commonerrors.NewDatabaseError(err)
	}

	// The row is gone; object and index cleanup failures leave orphans that
	// are logged rather than failing the request.
	if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"storage_key": doc.StorageKey,
		}).Warn("failed to delete stored object")
	}
	if s.search != nil {
		if err := s.search.Delete(ctx, s.config.IndexName, docID); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"document_id": docID,
			}).Warn("failed to remove document from search index")
		}
	}

	s.publisher.Emit(ctx, events.TypeDocumentDeleted, doc.OwnerID, map[string]interface{}{
		"document_id": docID,
		"filename":    doc.Filename,
	})

	s.logger.WithFields(map[string]interface{}{
		"document_id": docID,
		"owner_id":    doc.OwnerID,
	}).Info("document deleted")

	return nil
}

func (s *Service) notifyOwner(ctx context.Context, doc *models.Document) {
	if s.notifier == nil {
		return
	}
	email, err := s.store.OwnerEmail(ctx, doc.OwnerID)
	if err != nil || email == "" {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"owner_id": doc.OwnerID,
		}).Warn("could not resolve owner email for review notification")
		return
	}
	subject := fmt.Sprintf("Your document %q was %s", doc.Filename, doc.Status)
	body := fmt.Sprintf("Document %s has been %s.", doc.Filename, doc.Status)
	if doc.ReviewNote != "" {
		body += "\n\nReviewer note: " + doc.ReviewNote
	}
	s.notifier.SendEmail(ctx, email, subject, body)
}

// SearchResult is one hit from the metadata index. Field names follow the
// indexed document shape.
type SearchResult struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
}

// Search queries the metadata index. Non-admin callers only see their own
// documents.
func (s *Service) Search(ctx context.Context, callerID, q string, limit int) ([]SearchResult, error) {
	if s.search == nil {
		return nil, commonerrors.NewSearchError(errors.New("search backend not configured"))
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"filename", "content_type", "status"},
			},
		},
	}
	all, err := s.perms.Check(ctx, callerID, models.PermDocumentListAll)
	if err != nil || !all {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"owner_id": callerID},
		})
	}

	query := map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
	}

	raw, err := s.search.Search(ctx, s.config.IndexName, query)
	if err != nil {
		return nil, commonerrors.NewSearchError(err)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source SearchResult `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, commonerrors.NewSearchError(err)
	}

	results := make([]SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, hit.Source)
	}
	return results, nil
}
