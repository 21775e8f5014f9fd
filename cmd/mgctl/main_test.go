package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	ingestuc "github.com/kailas-cloud/machinegpt/internal/usecase/ingest"
)

// --- Mocks ---

type mockCreator struct {
	nextID  int64
	created []string
	err     error
}

func (m *mockCreator) Create(_ context.Context, producerID int64, title, fileRef string, modelID int64) (document.Source, error) {
	if m.err != nil {
		return document.Source{}, m.err
	}
	m.nextID++
	m.created = append(m.created, title)
	return document.New(m.nextID, producerID, title, fileRef, modelID)
}

type mockIngester struct {
	fail map[int64]string
	seen map[int64][]byte
}

func (m *mockIngester) Ingest(_ context.Context, _ tenant.Context, documentID int64, data []byte) (ingestuc.Report, error) {
	if m.seen == nil {
		m.seen = make(map[int64][]byte)
	}
	m.seen[documentID] = data
	if msg, ok := m.fail[documentID]; ok {
		return ingestuc.Report{DocumentID: documentID, Status: document.StatusFailed, Error: msg}, nil
	}
	return ingestuc.Report{DocumentID: documentID, Status: document.StatusCompleted, Pages: 2, Chunks: 5}, nil
}

// --- Tests ---

func TestTitleFor(t *testing.T) {
	tests := map[string]string{
		"/srv/press_x200-manual.pdf": "press x200 manual",
		"lathe.txt":                  "lathe",
		"a__b--c.PDF":                "a b c",
	}
	for in, want := range tests {
		if got := titleFor(in); got != want {
			t.Errorf("titleFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"one.pdf", "two.pdf", "three.txt"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(dir, "missing.pdf"))

	tc, _ := tenant.ForProducer(7)
	docs := &mockCreator{}
	ing := &mockIngester{fail: map[int64]string{2: "extract: no text extracted"}}
	var out bytes.Buffer
	steps := 0

	failed := ingestFiles(context.Background(), docs, ing, tc, paths, 3, &out, func() { steps++ })

	// two.pdf fails in the pipeline, missing.pdf cannot be read
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	if steps != len(paths) {
		t.Errorf("steps = %d, want %d", steps, len(paths))
	}
	if len(docs.created) != 3 {
		t.Errorf("created %d documents, want 3", len(docs.created))
	}
	if string(ing.seen[3]) != "three.txt" {
		t.Errorf("doc 3 got %q", ing.seen[3])
	}
	text := out.String()
	if !strings.Contains(text, "FAIL "+paths[1]) || !strings.Contains(text, "no text extracted") {
		t.Errorf("output missing pipeline failure:\n%s", text)
	}
	if !strings.Contains(text, "OK   "+paths[0]) {
		t.Errorf("output missing success line:\n%s", text)
	}
}

func TestIngestFiles_RegisterError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc, _ := tenant.ForProducer(1)
	var out bytes.Buffer

	failed := ingestFiles(context.Background(), &mockCreator{err: errors.New("db down")}, &mockIngester{},
		tc, []string{p}, 0, &out, func() {})
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if !strings.Contains(out.String(), "register document: db down") {
		t.Errorf("output = %q", out.String())
	}
}

func TestIngestFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tc, _ := tenant.ForProducer(1)

	failed := ingestFiles(ctx, &mockCreator{}, &mockIngester{}, tc, []string{"a", "b", "c"}, 0, &bytes.Buffer{}, func() {})
	if failed != 3 {
		t.Errorf("failed = %d, want 3", failed)
	}
}

func TestPrintAnswer(t *testing.T) {
	res := answer.Result{
		Outcome: answer.OutcomeAnswered,
		Answer:  "Check the hydraulic pressure valve.",
		Sources: []answer.Source{{DocID: 1, DocName: "Press X200", Page: 12, Score: 0.87}},
		Images: []answer.RankedImage{
			{URL: "http://img/p12.png", Caption: "valve diagram", Page: 12, Relevance: answer.RelevanceHigh},
		},
		Timings: answer.Timings{Total: 1500 * time.Millisecond},
		Tokens:  answer.Tokens{Input: 900, Output: 120},
	}
	var out bytes.Buffer
	printAnswer(&out, res)

	text := out.String()
	for _, want := range []string{
		"Check the hydraulic pressure valve.",
		"Press X200, page 12 (score 0.87)",
		"[high] page 12: valve diagram",
		"answered in 1.5s",
		"tokens 900/120",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
