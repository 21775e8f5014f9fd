package extract

import "context"

// Captioner describes an image in a sentence for retrieval and display.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ImageSink persists extracted image bytes and returns their public URL.
type ImageSink interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}
