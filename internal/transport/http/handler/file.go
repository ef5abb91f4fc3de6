package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/response"
)

type FileService interface {
	Finalize(ctx context.Context, in app.FinalizeInput) (*model.FileAsset, error)
	Get(ctx context.Context, userID, fileID uint) (*model.FileAsset, error)
	Retry(ctx context.Context, userID, fileID uint) (*model.FileAsset, error)
	Delete(ctx context.Context, userID, fileID uint) error
}

type FileHandler struct {
	fileService FileService
}

type FinalizeFileRequest struct {
	Filename   string `json:"filename" binding:"required,max=255"`
	FileType   string `json:"file_type"`
	StorageKey string `json:"storage_key" binding:"required,max=500"`
	Size       int64  `json:"size" binding:"required,gt=0"`
}

func NewFileHandler(fileService FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

func (h *FileHandler) Finalize(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req FinalizeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	asset, err := h.fileService.Finalize(c.Request.Context(), app.FinalizeInput{
		UserID:     userID,
		Filename:   req.Filename,
		FileType:   req.FileType,
		StorageKey: req.StorageKey,
		Size:       req.Size,
	})
	if err != nil {
		writeFinalizeError(c, err, asset)
		return
	}

	response.OK(c, asset)
}

func (h *FileHandler) Get(c *gin.Context) {
	userID, fileID, ok := fileRequestIDs(c)
	if !ok {
		return
	}

	asset, err := h.fileService.Get(c.Request.Context(), userID, fileID)
	if err != nil {
		writeFileError(c, err, "get file failed")
		return
	}
	response.OK(c, asset)
}

func (h *FileHandler) Retry(c *gin.Context) {
	userID, fileID, ok := fileRequestIDs(c)
	if !ok {
		return
	}

	asset, err := h.fileService.Retry(c.Request.Context(), userID, fileID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNotRetryable):
			response.Error(c, http.StatusBadRequest, response.CodeNotRetryable, "File is not in a retryable state")
		case errors.Is(err, app.ErrRetryInProgress):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		case errors.Is(err, app.ErrIngestionEnqueue):
			response.ErrorWithData(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "Processing setup failed. Please retry.", asset)
		default:
			writeFileError(c, err, "retry file failed")
		}
		return
	}
	response.OK(c, asset)
}

func (h *FileHandler) Delete(c *gin.Context) {
	userID, fileID, ok := fileRequestIDs(c)
	if !ok {
		return
	}

	if err := h.fileService.Delete(c.Request.Context(), userID, fileID); err != nil {
		switch {
		case errors.Is(err, app.ErrVectorDeletion):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Vector deletion failed")
		case errors.Is(err, app.ErrObjectDeletion):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Object storage deletion failed")
		case errors.Is(err, app.ErrDatabaseDeletion):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Database deletion failed")
		default:
			writeFileError(c, err, "delete file failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_file_id": fileID})
}

func fileRequestIDs(c *gin.Context) (uint, uint, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, 0, false
	}
	fileID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || fileID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid file id")
		return 0, 0, false
	}
	return userID, uint(fileID64), true
}

func writeFinalizeError(c *gin.Context, err error, asset *model.FileAsset) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedType, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrIngestionEnqueue):
		response.ErrorWithData(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "Processing setup failed. Please retry.", asset)
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "finalize file failed")
	}
}

func writeFileError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrFileNotFound):
		response.Error(c, http.StatusNotFound, response.CodeFileNotFound, "file not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
