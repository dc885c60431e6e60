package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNilMinioStoreErrors(t *testing.T) {
	var s *MinioStore
	ctx := context.Background()
	if err := s.Put(ctx, "b", "k", strings.NewReader("x"), 1, "text/plain"); err == nil {
		t.Fatalf("expected Put error")
	}
	if _, _, err := s.Get(ctx, "b", "k"); err == nil {
		t.Fatalf("expected Get error")
	}
	if err := s.Delete(ctx, "b", "k"); err == nil {
		t.Fatalf("expected Delete error")
	}
	if _, err := s.PresignGet(ctx, "b", "k", time.Minute, ""); err == nil {
		t.Fatalf("expected PresignGet error")
	}
	if _, err := NewMinioStoreWithClient(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestContentDisposition(t *testing.T) {
	if got := ContentDisposition("report.pdf"); got != "attachment; filename=report.pdf" {
		t.Fatalf("ContentDisposition()=%q", got)
	}
	if got := ContentDisposition("plan final.pdf"); got != `attachment; filename="plan final.pdf"` {
		t.Fatalf("ContentDisposition()=%q", got)
	}
	if presignParams("") != nil {
		t.Fatalf("expected no params without a download name")
	}
	if got := presignParams("a.txt").Get("response-content-disposition"); got != "attachment; filename=a.txt" {
		t.Fatalf("presign params=%q", got)
	}
}
