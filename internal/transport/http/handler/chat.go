package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/transport/http/middleware"
	"gopherai-docqa/internal/transport/http/response"
)

type ChatService interface {
	Send(ctx context.Context, in app.ChatInput) (*app.ChatResult, error)
}

type ChatHandler struct {
	chatService ChatService
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
	FileIDs        []uint `json:"file_ids"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Send(c.Request.Context(), app.ChatInput{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		FileIDs:        req.FileIDs,
	})
	if err != nil {
		var stateErr *app.FileStateError
		switch {
		case errors.As(err, &stateErr):
			response.ErrorWithData(c, http.StatusBadRequest, response.CodeFileNotReady, stateErr.Message, gin.H{"files": stateErr.Files})
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrFileNotFound):
			response.Error(c, http.StatusNotFound, response.CodeFileNotFound, "One or more files not found or access denied.")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to generate response")
		}
		return
	}

	response.OK(c, result)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID > 0
}
