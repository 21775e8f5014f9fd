package chi

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	ingestuc "github.com/kailas-cloud/machinegpt/internal/usecase/ingest"
)

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Question  string `json:"question" validate:"required,max=2000"`
	MachineID int64  `json:"machine_id" validate:"gte=0"`
}

// CreateDocumentRequest is the body of POST /v1/documents.
type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	FileRef string `json:"file_ref" validate:"required,max=1024"`
	ModelID int64  `json:"model_id" validate:"gte=0"`
}

// SourceResponse cites one passage of an answer.
type SourceResponse struct {
	DocID   int64   `json:"doc_id"`
	DocName string  `json:"doc_name,omitempty"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
}

// ImageResponse is an image surfaced with an answer.
type ImageResponse struct {
	URL       string `json:"url"`
	Caption   string `json:"caption"`
	Page      int    `json:"page"`
	Relevance string `json:"relevance"`
}

// TimingsResponse carries phase durations in milliseconds.
type TimingsResponse struct {
	RetrievalMS  int64 `json:"retrieval_ms"`
	GenerationMS int64 `json:"generation_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// TokensResponse is the generation usage.
type TokensResponse struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// QueryResponse is the reply to POST /v1/query.
type QueryResponse struct {
	Outcome       string           `json:"outcome"`
	Answer        string           `json:"answer"`
	Sources       []SourceResponse `json:"sources"`
	Images        []ImageResponse  `json:"images"`
	HasImages     bool             `json:"has_images"`
	Timings       TimingsResponse  `json:"timings"`
	Tokens        TokensResponse   `json:"tokens"`
	FailureReason string           `json:"failure_reason,omitempty"`
}

// DocumentResponse describes a document record and its processing state.
type DocumentResponse struct {
	ID              int64      `json:"id"`
	ProducerID      int64      `json:"producer_id"`
	Title           string     `json:"title"`
	FileRef         string     `json:"file_ref,omitempty"`
	ModelID         int64      `json:"model_id,omitempty"`
	Status          string     `json:"status"`
	PageCount       int        `json:"page_count"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessingError string     `json:"processing_error,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// IngestResponse reports one ingestion run.
type IngestResponse struct {
	RunID        string `json:"run_id"`
	DocumentID   int64  `json:"document_id"`
	Status       string `json:"status"`
	MimeType     string `json:"mime_type"`
	Pages        int    `json:"pages"`
	Chunks       int    `json:"chunks"`
	ResumedFrom  int    `json:"resumed_from"`
	StaleDeleted int    `json:"stale_deleted"`
	ResumeFrom   int    `json:"resume_from,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// DeleteVectorsResponse reports removed vectors.
type DeleteVectorsResponse struct {
	DocumentID int64 `json:"document_id"`
	Deleted    int   `json:"deleted"`
}

// HealthResponse is the reply to GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// validationErrors flattens validator errors into field -> failed tag.
func validationErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

func queryToResponse(res answer.Result) QueryResponse {
	sources := make([]SourceResponse, len(res.Sources))
	for i, s := range res.Sources {
		sources[i] = SourceResponse{DocID: s.DocID, DocName: s.DocName, Page: s.Page, Score: s.Score}
	}
	images := make([]ImageResponse, len(res.Images))
	for i, img := range res.Images {
		images[i] = ImageResponse{URL: img.URL, Caption: img.Caption, Page: img.Page, Relevance: string(img.Relevance)}
	}
	return QueryResponse{
		Outcome:   string(res.Outcome),
		Answer:    res.Answer,
		Sources:   sources,
		Images:    images,
		HasImages: res.HasImages(),
		Timings: TimingsResponse{
			RetrievalMS:  res.Timings.Retrieval.Milliseconds(),
			GenerationMS: res.Timings.Generation.Milliseconds(),
			TotalMS:      res.Timings.Total.Milliseconds(),
		},
		Tokens:        TokensResponse{Input: res.Tokens.Input, Output: res.Tokens.Output},
		FailureReason: res.FailureReason,
	}
}

func documentToResponse(doc document.Source) DocumentResponse {
	resp := DocumentResponse{
		ID:              doc.ID(),
		ProducerID:      doc.ProducerID(),
		Title:           doc.Title(),
		FileRef:         doc.FileRef(),
		Status:          string(doc.Status()),
		PageCount:       doc.PageCount(),
		TotalChunks:     doc.TotalChunks(),
		ProcessingError: doc.Error(),
	}
	if id, ok := doc.ModelID(); ok {
		resp.ModelID = id
	}
	if at := doc.ProcessedAt(); !at.IsZero() {
		utc := at.UTC()
		resp.ProcessedAt = &utc
	}
	return resp
}

func reportToResponse(rep ingestuc.Report, mimeType string) IngestResponse {
	return IngestResponse{
		RunID:        rep.RunID,
		DocumentID:   rep.DocumentID,
		Status:       string(rep.Status),
		MimeType:     mimeType,
		Pages:        rep.Pages,
		Chunks:       rep.Chunks,
		ResumedFrom:  rep.ResumedFrom,
		StaleDeleted: rep.StaleDeleted,
		ResumeFrom:   rep.ResumeFrom,
		Error:        rep.Error,
		DurationMS:   rep.Duration.Milliseconds(),
	}
}
