package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

const captionInstruction = "Describe this image from an industrial machine manual in one sentence. " +
	"Name the visible components, labels and part numbers. Reply with the description only."

const captionMaxTokens = 120

// Captioner describes manual images with a vision-capable chat model.
type Captioner struct {
	client *openai.Client
	model  string
	user   string
	logger *zap.Logger
}

// NewCaptioner creates an image captioner.
func NewCaptioner(cfg *Config) *Captioner {
	return &Captioner{
		client: newClient(cfg),
		model:  cfg.Model,
		user:   cfg.User,
		logger: cfg.Logger,
	}
}

// Caption sends the image inline as a data URI and returns the model's one-line description.
func (c *Captioner) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("caption: empty image")
	}
	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: captionInstruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    uri,
					Detail: openai.ImageURLDetailLow,
				}},
			},
		}},
		MaxTokens: captionMaxTokens,
		User:      c.user,
	})
	if err != nil {
		return "", wrapAPIError("caption", err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty caption response: %w", domain.ErrGeneration)
	}

	text := strings.Join(strings.Fields(resp.Choices[0].Message.Content), " ")
	c.logger.Debug("Image captioned", zap.Int("bytes", len(image)), zap.Int("tokens", resp.Usage.TotalTokens))
	return text, nil
}
