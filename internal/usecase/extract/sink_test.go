package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalSink_Put(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalSink(dir, "https://cdn.example.com/images/")

	u, err := s.Put(context.Background(), "producer_1/doc_2/page_3_img_1.png", []byte("png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "https://cdn.example.com/images/producer_1/doc_2/page_3_img_1.png" {
		t.Errorf("unexpected url %q", u)
	}
	data, err := os.ReadFile(filepath.Join(dir, "producer_1", "doc_2", "page_3_img_1.png"))
	if err != nil || string(data) != "png" {
		t.Errorf("file not written: %v %q", err, data)
	}
}

func TestLocalSink_RejectsEscape(t *testing.T) {
	s := NewLocalSink(t.TempDir(), "/img")
	for _, key := range []string{"../x.png", "a/../../x.png", "/etc/x.png"} {
		if _, err := s.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}
}

func TestLocalSink_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocalSink(t.TempDir(), "/img").Put(ctx, "a.png", nil); err == nil {
		t.Error("expected context error")
	}
}
