package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestCreateGet(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	doc, err := r.Create(ctx, 7, "Press manual", "uploads/press.pdf", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID() <= 0 || doc.Status() != document.StatusPending {
		t.Fatalf("unexpected created doc %+v", doc)
	}

	got, err := r.Get(ctx, 7, doc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title() != "Press manual" || got.FileRef() != "uploads/press.pdf" {
		t.Errorf("unexpected doc %+v", got)
	}
	if m, ok := got.ModelID(); !ok || m != 3 {
		t.Errorf("model id = %d, %v", m, ok)
	}
}

func TestGet_OtherTenantIsNotFound(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	doc, err := r.Create(ctx, 7, "Press manual", "f", 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Get(ctx, 8, doc.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSave_Lifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	doc, _ := r.Create(ctx, 7, "Press manual", "f", 0)

	doc, err := doc.Start()
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc, err = doc.Complete(2, 3, at)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.Get(ctx, 7, doc.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != document.StatusCompleted || got.PageCount() != 2 || got.TotalChunks() != 3 {
		t.Errorf("unexpected doc after save: %+v", got)
	}
	if !got.ProcessedAt().Equal(at) {
		t.Errorf("processed_at = %s, want %s", got.ProcessedAt(), at)
	}
}

func TestSave_MissingDocument(t *testing.T) {
	r := newTestRepo(t)
	doc, _ := document.New(99, 7, "t", "f", 0)
	if err := r.Save(context.Background(), doc); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceChunks(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	doc, _ := r.Create(ctx, 7, "Press manual", "f", 0)

	first := []document.Chunk{
		{Index: 0, Text: "a", Page: 1, CharEnd: 1, VectorID: document.VectorID(doc.ID(), 0)},
		{Index: 1, Text: "b", Page: 1, CharStart: 1, CharEnd: 2, VectorID: document.VectorID(doc.ID(), 1)},
		{Index: 2, Text: "c", Page: 2, CharEnd: 1, VectorID: document.VectorID(doc.ID(), 2),
			Images: []document.Image{{Page: 2, URL: "http://img/1.png", Caption: "valve"}}},
	}
	if err := r.ReplaceChunks(ctx, doc.ID(), first); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if err := r.ReplaceChunks(ctx, doc.ID(), first[:1]); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	got, err := r.Chunks(ctx, doc.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "a" {
		t.Fatalf("expected only the replaced chunk, got %+v", got)
	}

	if err := r.ReplaceChunks(ctx, doc.ID(), first); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Chunks(ctx, doc.ID())
	if len(got) != 3 || len(got[2].Images) != 1 || got[2].Images[0].Caption != "valve" {
		t.Errorf("unexpected chunks %+v", got)
	}
}

func TestOpen_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc, err := r.Create(context.Background(), 1, "t", "f", 0)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	r, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()
	if _, err := r.Get(context.Background(), 1, doc.ID()); err != nil {
		t.Fatalf("document lost after reopen: %v", err)
	}
}
