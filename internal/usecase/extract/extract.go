// Package extract turns uploaded manuals into ordered pages of text and images.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

const (
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
)

// Extractor dispatches on the sniffed MIME type of the file.
type Extractor struct {
	captioner Captioner
	sink      ImageSink
	logger    *zap.Logger
}

// New creates an extractor. A nil sink disables image extraction;
// a nil captioner yields placeholder captions.
func New(captioner Captioner, sink ImageSink, logger *zap.Logger) *Extractor {
	return &Extractor{captioner: captioner, sink: sink, logger: logger}
}

// Extract returns the pages of doc's file in source order, numbered from 1.
func (e *Extractor) Extract(ctx context.Context, doc document.Source, data []byte) ([]document.Page, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimePDF):
		return e.extractPDF(ctx, doc, data)
	case isText(mt):
		return splitTextPages(string(data)), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, mt.String())
}

// Sniff reports the detected MIME type and whether Extract supports it.
func Sniff(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	return mt.String(), mt.Is(mimePDF) || isText(mt)
}

// isText accepts text/plain and its refinements (csv, json...), which mimetype
// detects as children of text/plain.
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mimeText) {
			return true
		}
	}
	return false
}

func (e *Extractor) extractPDF(ctx context.Context, doc document.Source, data []byte) ([]document.Page, error) {
	start := time.Now()
	conf := model.NewDefaultConfiguration()

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pdf pages: %w", err)
	}

	pages := make([]document.Page, pdfCtx.PageCount)
	for n := 1; n <= pdfCtx.PageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages[n-1] = document.Page{Number: n, Text: e.pageText(pdfCtx, doc, n)}
	}

	if e.sink != nil {
		e.attachImages(ctx, doc, data, conf, pages)
	}

	e.logger.Info("PDF extracted",
		zap.Int64("document_id", doc.ID()),
		zap.Int("pages", len(pages)),
		zap.Duration("took", time.Since(start)),
	)
	return pages, nil
}

func (e *Extractor) pageText(pdfCtx *model.Context, doc document.Source, n int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, n)
	if err != nil || r == nil {
		e.logger.Warn("Page content unavailable",
			zap.Int64("document_id", doc.ID()), zap.Int("page", n), zap.Error(err))
		return ""
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		e.logger.Warn("Page content unreadable",
			zap.Int64("document_id", doc.ID()), zap.Int("page", n), zap.Error(err))
		return ""
	}
	return contentText(raw)
}

// attachImages is best-effort: any failing image is logged and left out.
func (e *Extractor) attachImages(
	ctx context.Context, doc document.Source, data []byte, conf *model.Configuration, pages []document.Page,
) {
	perPage, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		e.logger.Warn("Image extraction failed", zap.Int64("document_id", doc.ID()), zap.Error(err))
		return
	}

	for _, imgs := range perPage {
		objNrs := make([]int, 0, len(imgs))
		for nr := range imgs {
			objNrs = append(objNrs, nr)
		}
		slices.Sort(objNrs)

		for _, nr := range objNrs {
			if ctx.Err() != nil {
				return
			}
			img := imgs[nr]
			if img.PageNr < 1 || img.PageNr > len(pages) || img.Reader == nil {
				continue
			}
			p := &pages[img.PageNr-1]
			stored, err := e.storeImage(ctx, doc, p.Number, len(p.Images), img)
			if err != nil {
				e.logger.Warn("Image skipped",
					zap.Int64("document_id", doc.ID()),
					zap.Int("page", p.Number),
					zap.Int("object", nr),
					zap.Error(err),
				)
				continue
			}
			p.Images = append(p.Images, stored)
		}
	}
}

func (e *Extractor) storeImage(
	ctx context.Context, doc document.Source, page, seq int, img model.Image,
) (document.Image, error) {
	raw, err := io.ReadAll(img)
	if err != nil {
		return document.Image{}, fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return document.Image{}, fmt.Errorf("empty image")
	}

	mt := mimetype.Detect(raw)
	filename := fmt.Sprintf("page_%d_img_%d%s", page, seq+1, mt.Extension())
	key := fmt.Sprintf("producer_%d/doc_%d/%s", doc.ProducerID(), doc.ID(), filename)

	url, err := e.sink.Put(ctx, key, raw)
	if err != nil {
		return document.Image{}, fmt.Errorf("store image: %w", err)
	}

	return document.Image{
		Page:     page,
		URL:      url,
		Caption:  e.caption(ctx, doc, page, raw, mt.String()),
		Filename: filename,
	}, nil
}

// caption falls back to a placeholder whenever the captioner cannot help.
func (e *Extractor) caption(ctx context.Context, doc document.Source, page int, raw []byte, mimeType string) string {
	placeholder := fmt.Sprintf("Image from page %d", page)
	if e.captioner == nil {
		return placeholder
	}
	c, err := e.captioner.Caption(ctx, raw, mimeType)
	if err != nil || c == "" {
		e.logger.Warn("Caption unavailable, using placeholder",
			zap.Int64("document_id", doc.ID()), zap.Int("page", page), zap.Error(err))
		return placeholder
	}
	return c
}
