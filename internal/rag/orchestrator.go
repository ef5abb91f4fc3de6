package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
)

const (
	NoInformationResponse = "I cannot find information about this in your files."
	AuthFailureResponse   = "I apologize, but there's an issue with the AI service authentication. Please check the API key configuration."
	QuotaFailureResponse  = "I apologize, but the AI service has reached its usage limit. Please try again later."
	genericFailureFormat  = "I apologize, but I'm having trouble processing your request. Error: %s"

	systemPrompt = `You are a helpful assistant that answers questions based on the provided context from user's documents.

If the context contains relevant information, use it to answer the question accurately.
If the context does not contain relevant information, say "I cannot find information about this in your files."
Always cite which file(s) you used when providing information from the context.

Format citations as: [filename] or [filename, page X] if page numbers are available.`
)

var DefaultModels = []string{
	"openai/gpt-4o-mini",
	"openai/gpt-4o",
	"anthropic/claude-3.5-sonnet",
	"google/gemini-2.0-flash-exp",
	"meta-llama/llama-3.1-70b-instruct",
}

type ChatCompletionProvider interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, scope model.ChunkScope, query []float32) ([]model.RetrievedChunk, error)
}

type KeywordSearcher interface {
	Match(ctx context.Context, question string, scope model.ChunkScope) ([]model.RetrievedChunk, error)
}

// OrchestratorConfig is the process-wide completion setup. Models are tried in order.
type OrchestratorConfig struct {
	Models       []string
	MaxTokens    int
	Temperature  float64
	CallTimeout  time.Duration
	HistoryTurns int
}

type AskInput struct {
	Question string
	UserID   uint
	FileIDs  []uint
	History  []model.Message
}

type Answer struct {
	Response   string           `json:"response"`
	Citations  []model.Citation `json:"citations"`
	ChunksUsed int              `json:"chunks_used"`
	Model      string           `json:"model,omitempty"`
	// Failure is set when every model failed; it wraps ErrConfiguration,
	// ErrQuotaExceeded or ErrTransientProvider.
	Failure error `json:"-"`
}

type ChatOrchestrator struct {
	cfg       OrchestratorConfig
	embedder  Embedder
	retriever Retriever
	keywords  KeywordSearcher
	llm       ChatCompletionProvider
	log       *logger.Logger
}

func NewChatOrchestrator(
	cfg OrchestratorConfig,
	embedder Embedder,
	retriever Retriever,
	keywords KeywordSearcher,
	llm ChatCompletionProvider,
	log *logger.Logger,
) *ChatOrchestrator {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChatOrchestrator{
		cfg:       cfg,
		embedder:  embedder,
		retriever: retriever,
		keywords:  keywords,
		llm:       llm,
		log:       log,
	}
}

func (o *ChatOrchestrator) Ask(ctx context.Context, in AskInput) (Answer, error) {
	if in.UserID == 0 {
		return Answer{}, ErrScopeViolation
	}
	log := o.log.With("user_id", in.UserID, "file_ids", in.FileIDs)
	scope := model.ChunkScope{UserID: in.UserID, FileIDs: in.FileIDs}

	chunks := o.retrieve(ctx, in.Question, scope, log)
	if len(chunks) == 0 {
		log.Info("no chunks after all fallbacks")
		return Answer{Response: NoInformationResponse, Citations: []model.Citation{}, ChunksUsed: 0}, nil
	}
	citations := Citations(chunks)

	messages := o.buildMessages(in, chunks)
	var lastErr error
	for _, m := range o.cfg.Models {
		text, err := o.complete(ctx, m, messages)
		if err == nil {
			log.Info("answer generated", "model", m, "chunks_used", len(chunks), "citations", len(citations))
			return Answer{Response: text, Citations: citations, ChunksUsed: len(chunks), Model: m}, nil
		}
		lastErr = err
		if errors.Is(err, ai.ErrAuthentication) {
			log.Error("completion authentication failed, stopping", "stage", "complete", "model", m, "error", err)
			break
		}
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ai.ErrRateLimited) {
			log.Warn("model rate limited, trying next", "stage", "complete", "model", m)
			continue
		}
		log.Warn("model failed, trying next", "stage", "complete", "model", m, "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("all models failed")
	}
	log.Error("all completion models failed", "stage", "complete", "error", lastErr)
	resp, failure := failureResponse(lastErr)
	return Answer{Response: resp, Citations: []model.Citation{}, ChunksUsed: len(chunks), Failure: failure}, nil
}

func (o *ChatOrchestrator) retrieve(ctx context.Context, question string, scope model.ChunkScope, log *logger.Logger) []model.RetrievedChunk {
	var chunks []model.RetrievedChunk
	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		log.Warn("query embedding failed, skipping vector retrieval", "stage", "embed", "error", err)
	} else {
		chunks, err = o.retriever.Retrieve(ctx, scope, vec)
		if err != nil {
			log.Error("vector retrieval failed", "stage", "retrieve", "error", err)
			chunks = nil
		}
	}

	if len(chunks) == 0 && len(scope.FileIDs) > 0 && o.keywords != nil {
		kw, err := o.keywords.Match(ctx, question, scope)
		if err != nil {
			log.Error("keyword fallback failed", "stage", "retrieve", "error", err)
			return nil
		}
		if len(kw) > 0 {
			log.Info("keyword fallback matched", "count", len(kw))
		}
		return kw
	}
	return chunks
}

func (o *ChatOrchestrator) buildMessages(in AskInput, chunks []model.RetrievedChunk) []ai.ChatMessage {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[From %s]: %s", c.Filename, c.Text))
	}
	grounding := strings.Join(parts, "\n\n")

	history := in.History
	if len(history) > o.cfg.HistoryTurns {
		history = history[len(history)-o.cfg.HistoryTurns:]
	}

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: systemPrompt})
	for _, h := range history {
		messages = append(messages, ai.ChatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, ai.ChatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Context from documents:\n\n%s\n\nUser question: %s", grounding, in.Question),
	})
	return messages
}

func (o *ChatOrchestrator) complete(ctx context.Context, modelID string, messages []ai.ChatMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	text, err := o.llm.Complete(callCtx, ai.CompletionRequest{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// Citations keeps one entry per filename, in first-seen order.
func Citations(chunks []model.RetrievedChunk) []model.Citation {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]model.Citation, 0, len(chunks))
	for _, c := range chunks {
		if c.Filename == "" {
			continue
		}
		if _, ok := seen[c.Filename]; ok {
			continue
		}
		seen[c.Filename] = struct{}{}
		out = append(out, model.Citation{Filename: c.Filename, PageNumber: c.PageNumber})
	}
	return out
}

func failureResponse(err error) (string, error) {
	switch {
	case errors.Is(err, ai.ErrAuthentication):
		return AuthFailureResponse, fmt.Errorf("%w: %w", ErrConfiguration, err)
	case errors.Is(err, ai.ErrRateLimited):
		return QuotaFailureResponse, fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	default:
		msg := []rune(err.Error())
		if len(msg) > 150 {
			msg = msg[:150]
		}
		return fmt.Sprintf(genericFailureFormat, string(msg)), fmt.Errorf("%w: %w", ErrTransientProvider, err)
	}
}
