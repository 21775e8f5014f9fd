package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/inbox"
	ingestuc "github.com/kailas-cloud/machinegpt/internal/usecase/ingest"
)

var (
	ingestGlob     string
	ingestModelID  int64
	ingestDocument int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir|file>",
	Short: "Ingest manuals from disk",
	Long: `Registers and ingests every file under dir matching --glob. Each file becomes
a new document owned by --producer and attached to --model.

With --document, the single file argument is re-ingested into that existing
document instead; a run interrupted by a vector store failure resumes.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestGlob, "glob", inbox.DefaultPattern, "file pattern relative to dir")
	f.Int64Var(&ingestModelID, "model", 0, "machine model the manuals document")
	f.Int64Var(&ingestDocument, "document", 0, "re-ingest into an existing document")
	rootCmd.AddCommand(ingestCmd)
}

// documentCreator registers new documents (ISP).
type documentCreator interface {
	Create(ctx context.Context, producerID int64, title, fileRef string, modelID int64) (document.Source, error)
}

// fileIngester runs the ingestion pipeline (ISP).
type fileIngester interface {
	Ingest(ctx context.Context, tc tenant.Context, documentID int64, data []byte) (ingestuc.Report, error)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if ingestDocument > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rep, err := s.app.Ingest.Ingest(ctx, s.tenant, ingestDocument, data)
		if err != nil {
			return err
		}
		printReport(out, args[0], rep)
		if rep.Status == document.StatusFailed {
			return fmt.Errorf("document %d failed", ingestDocument)
		}
		return nil
	}

	paths, err := inbox.Scan(args[0], ingestGlob)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintf(out, "no files under %s match %s\n", args[0], ingestGlob)
		return nil
	}

	bar := newProgress(len(paths))
	failed := ingestFiles(ctx, s.app.Records, s.app.Ingest, s.tenant, paths, ingestModelID, out, func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}

	fmt.Fprintf(out, "%d of %d files ingested\n", len(paths)-failed, len(paths))
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

// ingestFiles registers and ingests each path in order and returns the number of failures.
// One file failing never stops the rest.
func ingestFiles(
	ctx context.Context,
	docs documentCreator,
	ing fileIngester,
	tc tenant.Context,
	paths []string,
	modelID int64,
	out io.Writer,
	step func(),
) int {
	failed := 0
	for i, path := range paths {
		if ctx.Err() != nil {
			return failed + len(paths) - i
		}
		rep, err := ingestFile(ctx, docs, ing, tc, path, modelID)
		step()
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		printReport(out, path, rep)
		if rep.Status == document.StatusFailed {
			failed++
		}
	}
	return failed
}

func ingestFile(
	ctx context.Context, docs documentCreator, ing fileIngester, tc tenant.Context, path string, modelID int64,
) (ingestuc.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingestuc.Report{}, err
	}
	doc, err := docs.Create(ctx, tc.ProducerID(), titleFor(path), path, modelID)
	if err != nil {
		return ingestuc.Report{}, fmt.Errorf("register document: %w", err)
	}
	return ing.Ingest(ctx, tc, doc.ID(), data)
}

// titleFor derives a document title from a file name: "press_x200-manual.pdf" -> "press x200 manual".
func titleFor(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func printReport(out io.Writer, path string, rep ingestuc.Report) {
	if rep.Status == document.StatusFailed {
		fmt.Fprintf(out, "FAIL %s (doc %d): %s\n", path, rep.DocumentID, rep.Error)
		return
	}
	fmt.Fprintf(out, "OK   %s (doc %d): %d pages, %d chunks in %s\n",
		path, rep.DocumentID, rep.Pages, rep.Chunks, rep.Duration.Round(time.Millisecond))
}

// newProgress returns nil when stderr is not a terminal.
func newProgress(total int) *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
