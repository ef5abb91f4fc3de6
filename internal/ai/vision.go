package ai

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const (
	MethodImageVision       = "image_vision"
	MethodImageVisionFailed = "image_vision_failed"

	VisionNoContentMarker = "[Image processing failed: No content extracted]"
	VisionAPIErrorMarker  = "[Image processing failed: API error]"

	visionPrompt = "Analyze this image and extract all text, tables, and structural information. " +
		"Return your analysis in Markdown format. Preserve table layouts as Markdown tables, " +
		"keep headings and lists, and transcribe any visible text exactly."
	visionRetryPrompt = "Extract all visible text, tables, and structured content from this image. Format as Markdown."
)

type VisionConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// VisionExtractor turns an image into Markdown text through a multimodal model.
type VisionExtractor struct {
	llm       llms.Model
	maxTokens int
	onError   func(err error)
}

func NewVisionExtractor(cfg VisionConfig) (*VisionExtractor, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return NewVisionExtractorWithModel(llm, cfg.MaxTokens), nil
}

func NewVisionExtractorWithModel(llm llms.Model, maxTokens int) *VisionExtractor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &VisionExtractor{llm: llm, maxTokens: maxTokens}
}

// OnError registers a hook for provider errors, which Extract otherwise swallows.
func (v *VisionExtractor) OnError(fn func(err error)) {
	v.onError = fn
}

// Extract never fails: an empty answer is retried once with a simpler prompt,
// and a second empty answer or a provider error yields a marker text.
func (v *VisionExtractor) Extract(ctx context.Context, image []byte, mimeType string) (string, string) {
	text, err := v.ask(ctx, image, mimeType, visionPrompt)
	if err == nil && text == "" {
		text, err = v.ask(ctx, image, mimeType, visionRetryPrompt)
	}
	if err != nil {
		if v.onError != nil {
			v.onError(err)
		}
		return VisionAPIErrorMarker, MethodImageVisionFailed
	}
	if text == "" {
		return VisionNoContentMarker, MethodImageVisionFailed
	}
	return text, MethodImageVision
}

func (v *VisionExtractor) ask(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.BinaryPart(mimeType, image),
			},
		},
	}
	resp, err := v.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(v.maxTokens))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
