package attachments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
	"github.com/taskboard-labs/taskboard/internal/storage/objectstore"
)

type fakeRepo struct {
	rows      map[string]domain.Attachment
	createErr error
}

func (r *fakeRepo) Create(ctx context.Context, a domain.Attachment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.rows[a.ID] = a
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (domain.Attachment, error) {
	a, ok := r.rows[id]
	if !ok {
		return domain.Attachment{}, repo.ErrNotFound
	}
	return a, nil
}

func (r *fakeRepo) ListByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, a := range r.rows {
		if a.OwnerType == ownerType && a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListForProject(ctx context.Context, projectID string) ([]domain.Attachment, error) {
	return r.ListByOwner(ctx, domain.OwnerProject, projectID, 0)
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.rows[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type fakeBlobs struct {
	objects   map[string][]byte
	deleteErr error
}

func (b *fakeBlobs) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.objects[bucket+"/"+key] = data
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ObjectInfo{}, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (b *fakeBlobs) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, errors.New("no such key")
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, bucket, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, bucket+"/"+key)
	return nil
}

func (b *fakeBlobs) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration, downloadName string) (string, error) {
	return "https://blobs.test/" + bucket + "/" + key + "?name=" + downloadName, nil
}

type fakeOwners struct {
	known map[string]bool
}

func (o fakeOwners) Exists(ctx context.Context, ownerType domain.OwnerType, ownerID string) error {
	if !o.known[string(ownerType)+":"+ownerID] {
		return repo.ErrNotFound
	}
	return nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestService(t *testing.T, maxBytes int64) (*Service, *fakeRepo, *fakeBlobs) {
	t.Helper()
	r := &fakeRepo{rows: map[string]domain.Attachment{}}
	b := &fakeBlobs{objects: map[string][]byte{}}
	svc, err := NewService(Deps{
		Repo:     r,
		Blobs:    b,
		Owners:   fakeOwners{known: map[string]bool{"task:t-1": true, "ticket:k-1": true}},
		Bucket:   "attachments",
		MaxBytes: maxBytes,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}
	return svc, r, b
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{}); err == nil {
		t.Fatalf("expected error for empty deps")
	}
	svc, _, _ := newTestService(t, 0)
	if svc.MaxBytes() != DefaultMaxBytes {
		t.Fatalf("MaxBytes()=%d, want default", svc.MaxBytes())
	}
}

func TestUpload_StoresBlobAndRow(t *testing.T) {
	svc, r, b := newTestService(t, 0)
	body := append(append([]byte{}, pngHeader...), make([]byte, 64)...)

	a, err := svc.Upload(context.Background(), UploadInput{
		OwnerType: domain.OwnerTask,
		OwnerID:   "t-1",
		FileName:  "../../Screen Shot.PNG",
		Body:      bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}
	if a.ContentType != "image/png" || a.FileName != "Screen Shot.PNG" || a.SizeBytes != int64(len(body)) {
		t.Fatalf("attachment=%+v", a)
	}
	if !strings.HasPrefix(a.ObjectKey, "media/tasks/"+a.ID) || !strings.HasSuffix(a.ObjectKey, ".png") {
		t.Fatalf("ObjectKey=%q", a.ObjectKey)
	}
	if _, ok := r.rows[a.ID]; !ok {
		t.Fatalf("row not stored")
	}
	if got := b.objects["attachments/"+a.ObjectKey]; !bytes.Equal(got, body) {
		t.Fatalf("blob not stored")
	}
}

func TestUpload_PlainTextFallsBackToHTTPSniffing(t *testing.T) {
	svc, _, _ := newTestService(t, 0)
	a, err := svc.Upload(context.Background(), UploadInput{
		OwnerType: domain.OwnerTicket,
		OwnerID:   "k-1",
		FileName:  "notes",
		Body:      strings.NewReader("meeting notes for the sprint\n"),
	})
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}
	if a.ContentType != "text/plain" {
		t.Fatalf("ContentType=%q, want text/plain", a.ContentType)
	}
	if !strings.HasPrefix(a.ObjectKey, "media/tickets/") {
		t.Fatalf("ObjectKey=%q", a.ObjectKey)
	}
}

func TestUpload_Rejections(t *testing.T) {
	svc, r, b := newTestService(t, 32)
	ctx := context.Background()
	elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 57)...)

	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{name: "bad owner type", in: UploadInput{OwnerType: "content", OwnerID: "t-1", Body: strings.NewReader("x")}, want: domain.ErrValidation},
		{name: "missing owner", in: UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-9", Body: strings.NewReader("x")}, want: repo.ErrNotFound},
		{name: "empty file", in: UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-1", Body: strings.NewReader("")}, want: domain.ErrValidation},
		{name: "too large", in: UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-1", Body: strings.NewReader(strings.Repeat("a", 33))}, want: ErrTooLarge},
		{name: "disallowed type", in: UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-1", Body: bytes.NewReader(elf[:32])}, want: domain.ErrValidation},
	}
	for _, tc := range tests {
		if _, err := svc.Upload(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Upload() err=%v, want %v", tc.name, err, tc.want)
		}
	}
	if len(r.rows) != 0 || len(b.objects) != 0 {
		t.Fatalf("rejected uploads must not store anything")
	}
}

func TestUpload_RowFailureRemovesBlob(t *testing.T) {
	svc, r, b := newTestService(t, 0)
	r.createErr = repo.ErrConflict

	_, err := svc.Upload(context.Background(), UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-1", Body: strings.NewReader("plain")})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("Upload() err=%v, want conflict", err)
	}
	if len(b.objects) != 0 {
		t.Fatalf("blob left behind: %v", b.objects)
	}
}

func TestLinkOpenDelete(t *testing.T) {
	svc, r, b := newTestService(t, 0)
	ctx := context.Background()
	a, err := svc.Upload(ctx, UploadInput{OwnerType: domain.OwnerTask, OwnerID: "t-1", FileName: "a.txt", Body: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	_, url, err := svc.Link(ctx, a.ID)
	if err != nil {
		t.Fatalf("Link() err=%v", err)
	}
	if !strings.Contains(url, a.ObjectKey) || !strings.Contains(url, "a.txt") {
		t.Fatalf("url=%q", url)
	}

	_, rc, err := svc.Open(ctx, a.ID)
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != "hello" {
		t.Fatalf("Open() body=%q", got)
	}

	list, err := svc.List(ctx, domain.OwnerTask, "t-1", 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("List()=%v,%v", list, err)
	}

	if _, err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if len(r.rows) != 0 || len(b.objects) != 0 {
		t.Fatalf("delete left data: rows=%d objects=%d", len(r.rows), len(b.objects))
	}
	if _, err := svc.Delete(ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second Delete() err=%v", err)
	}
	if _, _, err := svc.Link(ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Link() after delete err=%v", err)
	}
}

func TestPurge(t *testing.T) {
	svc, r, b := newTestService(t, 0)
	ctx := context.Background()
	a, err := svc.Upload(ctx, UploadInput{OwnerType: domain.OwnerTicket, OwnerID: "k-1", Body: strings.NewReader("one")})
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}
	ghost := domain.Attachment{ID: "gone", ObjectKey: "media/tickets/gone.txt"}

	if err := svc.Purge(ctx, []domain.Attachment{a, ghost}); err != nil {
		t.Fatalf("Purge() err=%v", err)
	}
	if len(r.rows) != 0 || len(b.objects) != 0 {
		t.Fatalf("purge left data")
	}

	b.deleteErr = errors.New("minio down")
	if err := svc.RemoveBlobs(ctx, []domain.Attachment{ghost}); err == nil {
		t.Fatalf("expected RemoveBlobs() error")
	}
}

func TestSniff(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
	if ct, ext := Sniff(pdf); ct != "application/pdf" || ext != "pdf" {
		t.Fatalf("Sniff(pdf)=%q,%q", ct, ext)
	}
	if ct, _ := Sniff([]byte("just words")); ct != "text/plain" {
		t.Fatalf("Sniff(text)=%q", ct)
	}
}

func TestObjectKeyAndFilename(t *testing.T) {
	if got := ObjectKey(domain.OwnerProject, "abc", ".pdf"); got != "media/projects/abc.pdf" {
		t.Fatalf("ObjectKey()=%q", got)
	}
	tests := []struct {
		in   string
		want string
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: `C:\Users\me\report.pdf`, want: "report.pdf"},
		{in: "  ", want: "attachment.bin"},
		{in: "/", want: "attachment.bin"},
	}
	for _, tc := range tests {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("SanitizeFilename(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
	if got := extension("", "", "application/pdf"); got != ".pdf" {
		t.Fatalf("extension() fallback=%q, want .pdf", got)
	}
	if got := extension("scan.JPEG", "jpg", "image/jpeg"); got != ".jpeg" {
		t.Fatalf("extension()=%q, want .jpeg", got)
	}
}
