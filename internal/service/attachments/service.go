// Package attachments stores uploaded files for projects, tasks and tickets:
// bytes in the blob store, metadata in the media table.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/metrics"
	"github.com/taskboard-labs/taskboard/internal/repo"
	"github.com/taskboard-labs/taskboard/internal/storage/objectstore"
)

const (
	DefaultMaxBytes  = 10 << 20
	DefaultURLTTL    = 15 * time.Minute
	defaultListLimit = 100
	sniffLen         = 512
)

// ErrTooLarge reports an upload above the configured size limit.
var ErrTooLarge = errors.New("file too large")

// Allowed reports whether a sniffed content type may be stored.
func Allowed(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"text/plain",
		"video/mp4", "video/x-msvideo", "video/quicktime":
		return true
	default:
		return false
	}
}

// Owners checks that an attachment owner exists.
type Owners interface {
	Exists(ctx context.Context, ownerType domain.OwnerType, ownerID string) error
}

type Deps struct {
	Repo     repo.AttachmentRepository
	Blobs    objectstore.Store
	Owners   Owners
	Bucket   string
	MaxBytes int64
	URLTTL   time.Duration
	Logger   *slog.Logger
}

type Service struct {
	repo     repo.AttachmentRepository
	blobs    objectstore.Store
	owners   Owners
	bucket   string
	maxBytes int64
	urlTTL   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("attachment repository is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if deps.Owners == nil {
		return nil, errors.New("owner lookup is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = DefaultMaxBytes
	}
	if deps.URLTTL <= 0 {
		deps.URLTTL = DefaultURLTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		blobs:    deps.Blobs,
		owners:   deps.Owners,
		bucket:   strings.TrimSpace(deps.Bucket),
		maxBytes: deps.MaxBytes,
		urlTTL:   deps.URLTTL,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// MaxBytes is the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

type UploadInput struct {
	OwnerType domain.OwnerType
	OwnerID   string
	FileName  string
	Body      io.Reader
}

// Upload sniffs, stores and records one file. The blob is removed again when
// the metadata row cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (domain.Attachment, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	if !in.OwnerType.Valid() {
		return domain.Attachment{}, domain.Invalidf("invalid owner_type %q", in.OwnerType)
	}
	if in.OwnerID == "" {
		return domain.Attachment{}, domain.Invalidf("owner_id is required")
	}
	if in.Body == nil {
		return domain.Attachment{}, domain.Invalidf("file is required")
	}
	if err := s.owners.Exists(ctx, in.OwnerType, in.OwnerID); err != nil {
		return domain.Attachment{}, err
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return domain.Attachment{}, fmt.Errorf("%w: limit is %s", ErrTooLarge, domain.HumanSize(s.maxBytes))
	}
	if len(data) == 0 {
		return domain.Attachment{}, domain.Invalidf("file is empty")
	}

	contentType, sniffedExt := Sniff(data)
	if !Allowed(contentType) {
		return domain.Attachment{}, domain.Invalidf("file type %s is not allowed", contentType)
	}

	fileName := SanitizeFilename(in.FileName)
	id := uuid.NewString()
	a := domain.Attachment{
		ID:          id,
		OwnerType:   in.OwnerType,
		OwnerID:     in.OwnerID,
		ObjectKey:   ObjectKey(in.OwnerType, id, extension(fileName, sniffedExt, contentType)),
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.blobs.Put(ctx, s.bucket, a.ObjectKey, bytes.NewReader(data), a.SizeBytes, a.ContentType); err != nil {
		return domain.Attachment{}, fmt.Errorf("store blob: %w", err)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if rmErr := s.blobs.Delete(ctx, s.bucket, a.ObjectKey); rmErr != nil {
			s.logger.Warn("orphaned attachment blob", "object_key", a.ObjectKey, "error", rmErr)
		}
		return domain.Attachment{}, err
	}
	metrics.AttachmentBytes.Add(float64(a.SizeBytes))
	return a, nil
}

func (s *Service) List(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error) {
	if !ownerType.Valid() {
		return nil, domain.Invalidf("invalid owner_type %q", ownerType)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListByOwner(ctx, ownerType, strings.TrimSpace(ownerID), limit)
}

// Link returns an attachment together with a presigned download URL.
func (s *Service) Link(ctx context.Context, id string) (domain.Attachment, string, error) {
	a, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Attachment{}, "", err
	}
	url, err := s.blobs.PresignGet(ctx, s.bucket, a.ObjectKey, s.urlTTL, a.FileName)
	if err != nil {
		return domain.Attachment{}, "", fmt.Errorf("presign: %w", err)
	}
	return a, url, nil
}

// Open streams the bytes of an attachment. The caller closes the reader.
func (s *Service) Open(ctx context.Context, id string) (domain.Attachment, io.ReadCloser, error) {
	a, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	body, _, err := s.blobs.Get(ctx, s.bucket, a.ObjectKey)
	if err != nil {
		return domain.Attachment{}, nil, fmt.Errorf("open blob: %w", err)
	}
	return a, body, nil
}

// Delete removes the metadata row, then the blob.
func (s *Service) Delete(ctx context.Context, id string) (domain.Attachment, error) {
	a, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return domain.Attachment{}, err
	}
	if err := s.blobs.Delete(ctx, s.bucket, a.ObjectKey); err != nil {
		s.logger.Warn("attachment blob delete failed", "media_id", a.ID, "object_key", a.ObjectKey, "error", err)
	}
	return a, nil
}

// RemoveBlobs deletes the stored bytes of attachments whose rows are gone.
func (s *Service) RemoveBlobs(ctx context.Context, attachments []domain.Attachment) error {
	var errs []error
	for _, a := range attachments {
		if err := s.blobs.Delete(ctx, s.bucket, a.ObjectKey); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.ObjectKey, err))
		}
	}
	return errors.Join(errs...)
}

// Purge deletes the rows and blobs of attachments whose owner was removed.
// Missing rows are skipped.
func (s *Service) Purge(ctx context.Context, attachments []domain.Attachment) error {
	var errs []error
	for _, a := range attachments {
		if err := s.repo.Delete(ctx, a.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", a.ID, err))
		}
	}
	if err := s.RemoveBlobs(ctx, attachments); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ForProject lists the attachments of a project and of its tasks and tickets.
func (s *Service) ForProject(ctx context.Context, projectID string) ([]domain.Attachment, error) {
	return s.repo.ListForProject(ctx, strings.TrimSpace(projectID))
}

// Sniff detects the content type of data from its leading bytes. Types the
// magic number table does not know fall back to net/http sniffing, which
// recognizes plain text.
func Sniff(data []byte) (string, string) {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, kind.Extension
	}
	detected := http.DetectContentType(head)
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType, ""
	}
	return detected, ""
}

// ObjectKey is the blob key of an attachment, e.g. media/tasks/<id>.pdf.
func ObjectKey(ownerType domain.OwnerType, id, ext string) string {
	return fmt.Sprintf("media/%ss/%s%s", ownerType, id, ext)
}

func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "" || base == "." || base == "/" {
		return "attachment.bin"
	}
	return base
}

func extension(fileName, sniffed, contentType string) string {
	if ext := strings.ToLower(path.Ext(fileName)); ext != "" && len(ext) <= 10 {
		return ext
	}
	if sniffed != "" {
		return "." + sniffed
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
