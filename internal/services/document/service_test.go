// internal/services/document/service_test.go
package document

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-services/internal/common/config"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/models"
)

type fakeStore struct {
	docs      map[string]*models.Document
	createErr error
}

func newFakeStore(docs ...*models.Document) *fakeStore {
	s := &fakeStore{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (f *fakeStore) Create(_ context.Context, doc *models.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeStore) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAll(_ context.Context, _, _ int) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status models.DocumentStatus, note, reviewedBy string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Status = status
	doc.ReviewNote = note
	doc.ReviewedBy = reviewedBy
	if status == models.DocumentPending {
		doc.ReviewedAt = nil
	} else {
		now := time.Now().UTC()
		doc.ReviewedAt = &now
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeStore) OwnerEmail(_ context.Context, _ string) (string, error) {
	return "owner@example.com", nil
}

type fakeStorage struct {
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, _ := io.ReadAll(r)
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type fakeChecker struct {
	allowed map[string]bool
	err     error
}

func (f *fakeChecker) Check(_ context.Context, _, permission string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[permission], nil
}

func testConfig() config.DocumentsConfig {
	return config.DocumentsConfig{
		MaxSizeBytes:      1024,
		AllowedExtensions: []string{".pdf", ".txt"},
		AllowedMIMETypes:  []string{"application/pdf", "text/plain"},
		IndexName:         "documents",
	}
}

func newTestService(store *fakeStore, storage *fakeStorage, checker *fakeChecker) *Service {
	if checker == nil {
		checker = &fakeChecker{allowed: map[string]bool{}}
	}
	return NewService(testConfig(), store, storage, nil, checker, events.NopPublisher{}, nil, logger.NewNoOpLogger())
}

func uploadInput(owner, filename, contentType string, body string) UploadInput {
	return UploadInput{
		OwnerID:     owner,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(body)),
		Content:     bytes.NewReader([]byte(body)),
	}
}

func TestUpload(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage()
	svc := newTestService(store, storage, nil)

	doc, err := svc.Upload(context.Background(), uploadInput("user-1", "report.pdf", "application/pdf", "content"))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, doc.Status)
	assert.NotEqual(t, "report.pdf", doc.StorageKey)
	assert.True(t, len(doc.StorageKey) > len(".pdf"))

	_, ok := storage.objects[doc.StorageKey]
	assert.True(t, ok, "object should be stored under the generated key")
	_, ok = store.docs[doc.ID]
	assert.True(t, ok, "metadata row should exist")
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    UploadInput
		wantCode commonerrors.ErrorCode
	}{
		{
			name:     "disallowed extension",
			input:    uploadInput("user-1", "script.exe", "application/pdf", "x"),
			wantCode: commonerrors.ErrCodeUnsupportedMedia,
		},
		{
			name:     "disallowed content type",
			input:    uploadInput("user-1", "notes.txt", "application/zip", "x"),
			wantCode: commonerrors.ErrCodeUnsupportedMedia,
		},
		{
			name:     "empty file",
			input:    uploadInput("user-1", "notes.txt", "text/plain", ""),
			wantCode: commonerrors.ErrCodeValidationFailed,
		},
		{
			name: "over size cap",
			input: UploadInput{
				OwnerID:     "user-1",
				Filename:    "big.txt",
				ContentType: "text/plain",
				Size:        2048,
				Content:     bytes.NewReader(make([]byte, 2048)),
			},
			wantCode: commonerrors.ErrCodePayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeStore(), newFakeStorage(), nil)
			_, err := svc.Upload(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, commonerrors.AsStandardError(err).Code)
		})
	}
}

func TestUploadRollsBackObjectOnInsertFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("insert failed")
	storage := newFakeStorage()
	svc := newTestService(store, storage, nil)

	_, err := svc.Upload(context.Background(), uploadInput("user-1", "report.pdf", "application/pdf", "content"))
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeDatabaseFailed, commonerrors.AsStandardError(err).Code)
	assert.Len(t, storage.deleted, 1, "orphaned object should be removed")
	assert.Empty(t, storage.objects)
}

func pendingDoc(id, owner string) *models.Document {
	now := time.Now().UTC()
	return &models.Document{
		ID:          id,
		OwnerID:     owner,
		Filename:    "report.pdf",
		StorageKey:  id + ".pdf",
		ContentType: "application/pdf",
		SizeBytes:   7,
		Status:      models.DocumentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestReviewApprove(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	checker := &fakeChecker{allowed: map[string]bool{models.PermDocumentReview: true}}
	svc := newTestService(store, newFakeStorage(), checker)

	doc, err := svc.Review(context.Background(), "admin-1", "doc-1", true, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentApproved, doc.Status)
	assert.Equal(t, "admin-1", doc.ReviewedBy)
	assert.Equal(t, "looks good", doc.ReviewNote)
}

func TestReviewWithoutPermission(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	svc := newTestService(store, newFakeStorage(), &fakeChecker{allowed: map[string]bool{}})

	_, err := svc.Review(context.Background(), "user-2", "doc-1", true, "")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodePermissionDenied, commonerrors.AsStandardError(err).Code)
}

func TestRejectedCannotBeApprovedDirectly(t *testing.T) {
	doc := pendingDoc("doc-1", "user-1")
	doc.Status = models.DocumentRejected
	store := newFakeStore(doc)
	checker := &fakeChecker{allowed: map[string]bool{models.PermDocumentReview: true}}
	svc := newTestService(store, newFakeStorage(), checker)

	_, err := svc.Review(context.Background(), "admin-1", "doc-1", true, "")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidStatus, commonerrors.AsStandardError(err).Code)
}

func TestApprovedIsTerminal(t *testing.T) {
	doc := pendingDoc("doc-1", "user-1")
	doc.Status = models.DocumentApproved
	store := newFakeStore(doc)
	checker := &fakeChecker{allowed: map[string]bool{models.PermDocumentReview: true}}
	svc := newTestService(store, newFakeStorage(), checker)

	_, err := svc.Review(context.Background(), "admin-1", "doc-1", false, "")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidStatus, commonerrors.AsStandardError(err).Code)

	_, err = svc.Reset(context.Background(), "user-1", "doc-1")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidStatus, commonerrors.AsStandardError(err).Code)
}

func TestResetFromRejected(t *testing.T) {
	doc := pendingDoc("doc-1", "user-1")
	doc.Status = models.DocumentRejected
	doc.ReviewNote = "bad scan"
	store := newFakeStore(doc)
	svc := newTestService(store, newFakeStorage(), nil)

	updated, err := svc.Reset(context.Background(), "user-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, updated.Status)
	assert.Empty(t, updated.ReviewNote)
	assert.Nil(t, updated.ReviewedAt)
}

func TestResetFromPendingFails(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	svc := newTestService(store, newFakeStorage(), nil)

	_, err := svc.Reset(context.Background(), "user-1", "doc-1")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInvalidStatus, commonerrors.AsStandardError(err).Code)
}

func TestGetHidesOtherUsersDocuments(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	svc := newTestService(store, newFakeStorage(), &fakeChecker{allowed: map[string]bool{}})

	_, err := svc.Get(context.Background(), "user-2", "doc-1")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeNotFound, commonerrors.AsStandardError(err).Code)
}

func TestGetAllowsAdmin(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	checker := &fakeChecker{allowed: map[string]bool{models.PermDocumentListAll: true}}
	svc := newTestService(store, newFakeStorage(), checker)

	doc, err := svc.Get(context.Background(), "admin-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
}

func TestDeleteRemovesRowAndObject(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	storage := newFakeStorage()
	storage.objects["doc-1.pdf"] = []byte("content")
	svc := newTestService(store, storage, nil)

	err := svc.Delete(context.Background(), "user-1", "doc-1")
	require.NoError(t, err)
	assert.NotContains(t, store.docs, "doc-1")
	assert.Equal(t, []string{"doc-1.pdf"}, storage.deleted)
}

func TestDeleteHidesOtherUsersDocuments(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	svc := newTestService(store, newFakeStorage(), &fakeChecker{allowed: map[string]bool{}})

	err := svc.Delete(context.Background(), "user-2", "doc-1")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeNotFound, commonerrors.AsStandardError(err).Code)
	assert.Contains(t, store.docs, "doc-1", "document must survive an unauthorized delete")
}

func TestDeleteAllowsReviewer(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	checker := &fakeChecker{allowed: map[string]bool{models.PermDocumentReview: true}}
	svc := newTestService(store, newFakeStorage(), checker)

	err := svc.Delete(context.Background(), "admin-1", "doc-1")
	require.NoError(t, err)
	assert.NotContains(t, store.docs, "doc-1")
}

func TestDeleteUnknownDocument(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeStorage(), nil)

	err := svc.Delete(context.Background(), "user-1", "missing")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeNotFound, commonerrors.AsStandardError(err).Code)
}

func TestDownload(t *testing.T) {
	store := newFakeStore(pendingDoc("doc-1", "user-1"))
	storage := newFakeStorage()
	storage.objects["doc-1.pdf"] = []byte("content")
	svc := newTestService(store, storage, nil)

	doc, rc, err := svc.Download(context.Background(), "user-1", "doc-1")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)
	assert.Equal(t, "application/pdf", doc.ContentType)
}
