package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
	"gopherai-docqa/internal/rag"
)

var ErrMessageEmpty = errors.New("message content is empty")

// FileStateError rejects a chat whose files cannot be searched yet.
type FileStateError struct {
	Message string
	Files   []string
}

func (e *FileStateError) Error() string {
	return e.Message
}

type Asker interface {
	Ask(ctx context.Context, in rag.AskInput) (rag.Answer, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, userID uint, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, userID uint, conversationID string, messages []model.Message) error
	Append(ctx context.Context, userID uint, conversationID string, messages ...model.Message) error
}

type MessageRepository interface {
	CreateBatch(ctx context.Context, messages []model.Message) error
	ListRecent(ctx context.Context, conversationID string, userID uint, limit int) ([]model.Message, error)
}

type ChatInput struct {
	UserID         uint
	Message        string
	ConversationID string
	FileIDs        []uint
}

type ChatResult struct {
	ConversationID string           `json:"conversation_id"`
	Response       string           `json:"response"`
	Citations      []model.Citation `json:"citations"`
	ChunksUsed     int              `json:"chunks_used"`
}

type ChatService struct {
	files        FileRepository
	messageRepo  MessageRepository
	historyCache HistoryCache
	orchestrator Asker
	historyTurns int
	log          *logger.Logger
}

func NewChatService(
	files FileRepository,
	messageRepo MessageRepository,
	historyCache HistoryCache,
	orchestrator Asker,
	historyTurns int,
	log *logger.Logger,
) *ChatService {
	if historyTurns <= 0 {
		historyTurns = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChatService{
		files:        files,
		messageRepo:  messageRepo,
		historyCache: historyCache,
		orchestrator: orchestrator,
		historyTurns: historyTurns,
		log:          log.With("service", "ChatService"),
	}
}

func (s *ChatService) Send(ctx context.Context, in ChatInput) (*ChatResult, error) {
	if in.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(in.Message)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	} else if _, err := uuid.Parse(conversationID); err != nil {
		return nil, fmt.Errorf("%w: conversation_id must be a uuid", ErrInvalidInput)
	}

	fileIDs := dedupeIDs(in.FileIDs)
	if err := s.checkFiles(ctx, in.UserID, fileIDs); err != nil {
		return nil, err
	}

	history := s.loadHistory(ctx, in.UserID, conversationID)
	answer, err := s.orchestrator.Ask(ctx, rag.AskInput{
		Question: content,
		UserID:   in.UserID,
		FileIDs:  fileIDs,
		History:  history,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	turns := []model.Message{
		{ConversationID: conversationID, UserID: in.UserID, Role: model.RoleUser, Content: content, CreatedAt: now},
		{ConversationID: conversationID, UserID: in.UserID, Role: model.RoleAssistant, Content: answer.Response, CreatedAt: now},
	}
	s.saveTurns(ctx, in.UserID, conversationID, turns)

	return &ChatResult{
		ConversationID: conversationID,
		Response:       answer.Response,
		Citations:      answer.Citations,
		ChunksUsed:     answer.ChunksUsed,
	}, nil
}

// checkFiles requires every id to be owned, none processing, and one ready.
func (s *ChatService) checkFiles(ctx context.Context, userID uint, fileIDs []uint) error {
	if len(fileIDs) == 0 {
		return nil
	}
	files, err := s.files.ListByIDsAndUserID(ctx, fileIDs, userID)
	if err != nil {
		return err
	}
	if len(files) != len(fileIDs) {
		return fmt.Errorf("%w: one or more files not found or access denied", ErrFileNotFound)
	}

	var processing, failed []string
	ready := 0
	for _, f := range files {
		switch f.Status {
		case model.FileStatusProcessing:
			processing = append(processing, f.Filename)
		case model.FileStatusReady:
			ready++
		case model.FileStatusFailed:
			failed = append(failed, f.Filename)
		}
	}
	if len(processing) > 0 {
		return &FileStateError{
			Message: fmt.Sprintf("File(s) still processing: %s. Please wait for processing to complete.", strings.Join(processing, ", ")),
			Files:   processing,
		}
	}
	if ready == 0 && len(failed) > 0 {
		return &FileStateError{
			Message: fmt.Sprintf("File(s) processing failed: %s. Please re-upload or retry processing.", strings.Join(failed, ", ")),
			Files:   failed,
		}
	}
	if ready == 0 {
		return &FileStateError{Message: "Files are not ready for chat. Please wait for processing to complete."}
	}
	return nil
}

func (s *ChatService) loadHistory(ctx context.Context, userID uint, conversationID string) []model.Message {
	if s.historyCache != nil {
		cached, hit, err := s.historyCache.GetHistory(ctx, userID, conversationID)
		if err == nil && hit {
			return trimMessages(cached, s.historyTurns)
		}
		if err != nil {
			s.log.Warn("read history cache failed", "user_id", userID, "conversation_id", conversationID, "error", err)
		}
	}
	if s.messageRepo == nil {
		return nil
	}
	messages, err := s.messageRepo.ListRecent(ctx, conversationID, userID, s.historyTurns)
	if err != nil {
		s.log.Warn("load history failed", "user_id", userID, "conversation_id", conversationID, "error", err)
		return nil
	}
	if s.historyCache != nil && len(messages) > 0 {
		_ = s.historyCache.SetHistory(ctx, userID, conversationID, messages)
	}
	return messages
}

func (s *ChatService) saveTurns(ctx context.Context, userID uint, conversationID string, turns []model.Message) {
	if s.messageRepo != nil {
		if err := s.messageRepo.CreateBatch(ctx, turns); err != nil {
			s.log.Error("persist chat turns failed", "user_id", userID, "conversation_id", conversationID, "error", err)
		}
	}
	if s.historyCache != nil {
		if err := s.historyCache.Append(ctx, userID, conversationID, turns...); err != nil {
			s.log.Warn("append history cache failed", "user_id", userID, "conversation_id", conversationID, "error", err)
		}
	}
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
