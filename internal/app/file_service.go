package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/storage"
)

const MaxFileSize int64 = 10 * 1024 * 1024

var AllowedFileTypes = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
	"png":  {},
	"jpeg": {},
	"jpg":  {},
}

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrFileNotFound     = errors.New("file not found")
	ErrUnsupportedType  = errors.New("file type is not allowed")
	ErrFileTooLarge     = errors.New("file exceeds the 10MB limit")
	ErrNotRetryable     = errors.New("file is not in a retryable state")
	ErrRetryInProgress  = errors.New("a retry for this file is already in progress")
	ErrIngestionEnqueue = errors.New("processing setup failed, please retry")
	ErrVectorDeletion   = errors.New("vector deletion failed")
	ErrObjectDeletion   = errors.New("object storage deletion failed")
	ErrDatabaseDeletion = errors.New("database deletion failed")
)

type IngestionQueue interface {
	Submit(ctx context.Context, task model.IngestionTask) error
}

type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

type FileRepository interface {
	Create(ctx context.Context, asset *model.FileAsset) error
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.FileAsset, error)
	ListByIDsAndUserID(ctx context.Context, ids []uint, userID uint) ([]model.FileAsset, error)
	SaveState(ctx context.Context, asset *model.FileAsset) error
	DeleteByIDAndUserID(ctx context.Context, id, userID uint) error
}

type VectorDeleter interface {
	DeleteByFile(ctx context.Context, userID, fileID uint) error
}

type FileLocker interface {
	Acquire(ctx context.Context, fileID uint) (release func(), err error)
}

type Ingester interface {
	Ingest(ctx context.Context, task model.IngestionTask) (rag.IngestionResult, error)
}

type FinalizeInput struct {
	UserID     uint
	Filename   string
	FileType   string
	StorageKey string
	Size       int64
}

type FileService struct {
	files    FileRepository
	vectors  VectorDeleter
	objects  ObjectDeleter
	queue    IngestionQueue
	locks    FileLocker
	ingester Ingester
	log      *logger.Logger
}

type FileServiceDeps struct {
	Files    FileRepository
	Vectors  VectorDeleter
	Objects  ObjectDeleter
	Queue    IngestionQueue
	Locks    FileLocker
	Ingester Ingester
	Logger   *logger.Logger
}

func NewFileService(d FileServiceDeps) *FileService {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &FileService{
		files:    d.Files,
		vectors:  d.Vectors,
		objects:  d.Objects,
		queue:    d.Queue,
		locks:    d.Locks,
		ingester: d.Ingester,
		log:      d.Logger.With("service", "FileService"),
	}
}

// SetQueue wires the queue after construction; the in-process pool needs the
// service as its handler before the service can submit to it.
func (s *FileService) SetQueue(q IngestionQueue) {
	s.queue = q
}

// Finalize registers an uploaded object and schedules its ingestion. The
// asset is returned even when scheduling fails so the caller can retry it.
func (s *FileService) Finalize(ctx context.Context, in FinalizeInput) (*model.FileAsset, error) {
	if in.UserID == 0 {
		return nil, ErrInvalidInput
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" || in.Size <= 0 || !storage.OwnedBy(in.StorageKey, in.UserID) {
		return nil, ErrInvalidInput
	}
	fileType := normalizeFileType(in.FileType, filename)
	if _, ok := AllowedFileTypes[fileType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	if in.Size > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	asset := &model.FileAsset{
		UserID:          in.UserID,
		Filename:        filename,
		FileType:        fileType,
		StorageKey:      in.StorageKey,
		Size:            in.Size,
		Status:          model.FileStatusUploaded,
		IngestionStatus: model.IngestionNotStarted,
		Metadata:        model.Metadata{},
	}
	if err := s.files.Create(ctx, asset); err != nil {
		return nil, err
	}

	if err := s.schedule(ctx, asset, false); err != nil {
		return asset, err
	}
	return asset, nil
}

// Retry re-runs ingestion with chunk replacement for uploaded, failed or
// partially ingested files.
func (s *FileService) Retry(ctx context.Context, userID, fileID uint) (*model.FileAsset, error) {
	if userID == 0 || fileID == 0 {
		return nil, ErrInvalidInput
	}
	release, err := s.lock(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer release()

	asset, err := s.files.GetByIDAndUserID(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrFileNotFound
	}
	if !retryable(asset) {
		return nil, ErrNotRetryable
	}
	if n, ok := asset.Metadata.Int(model.MetaChunksFailed); ok && n > 0 {
		s.log.Info("retrying partial ingestion", "file_id", asset.ID, "chunks_failed", n)
	}

	delete(asset.Metadata, model.MetaFinalizeError)
	if err := s.schedule(ctx, asset, true); err != nil {
		return asset, err
	}
	return asset, nil
}

func retryable(asset *model.FileAsset) bool {
	switch {
	case asset.Status == model.FileStatusUploaded, asset.Status == model.FileStatusFailed:
		return true
	case asset.IngestionStatus == model.IngestionPartial:
		return true
	default:
		return false
	}
}

// schedule marks the asset processing before submitting, so a fast worker's
// final state is never overwritten. On submit failure the asset goes back to
// uploaded with finalize_error set.
func (s *FileService) schedule(ctx context.Context, asset *model.FileAsset, replace bool) error {
	prevStatus, prevIngestion := asset.Status, asset.IngestionStatus
	asset.Status = model.FileStatusProcessing
	asset.IngestionStatus = model.IngestionInProgress
	if err := s.files.SaveState(ctx, asset); err != nil {
		return err
	}

	task := model.IngestionTask{ID: uuid.NewString(), FileID: asset.ID, UserID: asset.UserID, Replace: replace}
	if s.queue == nil {
		return s.scheduleFailed(ctx, asset, prevStatus, prevIngestion, errors.New("ingestion queue not configured"))
	}
	if err := s.queue.Submit(ctx, task); err != nil {
		return s.scheduleFailed(ctx, asset, prevStatus, prevIngestion, err)
	}
	s.log.Info("ingestion scheduled", "file_id", asset.ID, "user_id", asset.UserID, "task_id", task.ID, "replace", replace)
	return nil
}

func (s *FileService) scheduleFailed(ctx context.Context, asset *model.FileAsset, status model.FileStatus, ingestion model.IngestionStatus, cause error) error {
	s.log.Error("submit ingestion failed", "file_id", asset.ID, "user_id", asset.UserID, "stage", "finalize", "error", cause)
	if status == model.FileStatusProcessing {
		status = model.FileStatusUploaded
	}
	asset.Status = status
	asset.IngestionStatus = ingestion
	asset.SetMeta(model.MetaFinalizeError, cause.Error())
	if err := s.files.SaveState(context.WithoutCancel(ctx), asset); err != nil {
		s.log.Error("record finalize error failed", "file_id", asset.ID, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrIngestionEnqueue, cause)
}

// RunIngestion is the worker entry point. Pipeline errors are already written
// to status and metadata; here they are also kept as finalize_error.
func (s *FileService) RunIngestion(ctx context.Context, task model.IngestionTask) error {
	res, err := s.ingester.Ingest(ctx, task)
	if err == nil {
		if partial := res.Err(); partial != nil {
			s.log.Warn("ingestion partially succeeded", "file_id", task.FileID, "user_id", task.UserID, "error", partial)
		}
		return nil
	}
	if errors.Is(err, rag.ErrFileNotFound) {
		s.log.Warn("ingestion skipped, file is gone", "file_id", task.FileID, "user_id", task.UserID)
		return err
	}

	asset, getErr := s.files.GetByIDAndUserID(context.WithoutCancel(ctx), task.FileID, task.UserID)
	if getErr != nil || asset == nil {
		s.log.Error("load file after failed ingestion failed", "file_id", task.FileID, "error", getErr)
		return err
	}
	asset.SetMeta(model.MetaFinalizeError, err.Error())
	if saveErr := s.files.SaveState(context.WithoutCancel(ctx), asset); saveErr != nil {
		s.log.Error("record finalize error failed", "file_id", task.FileID, "error", saveErr)
	}
	return err
}

func (s *FileService) Get(ctx context.Context, userID, fileID uint) (*model.FileAsset, error) {
	if userID == 0 || fileID == 0 {
		return nil, ErrInvalidInput
	}
	asset, err := s.files.GetByIDAndUserID(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrFileNotFound
	}
	return asset, nil
}

// Delete removes vectors, then the stored object, then the record. A failing
// step marks the file deletion_failed and stops; finished steps stay done.
func (s *FileService) Delete(ctx context.Context, userID, fileID uint) error {
	asset, err := s.Get(ctx, userID, fileID)
	if err != nil {
		return err
	}
	log := s.log.With("file_id", asset.ID, "user_id", asset.UserID)

	if err := s.vectors.DeleteByFile(ctx, userID, fileID); err != nil {
		return s.deletionFailed(ctx, asset, log, "delete_vectors", err.Error(), ErrVectorDeletion)
	}
	if err := s.objects.Delete(ctx, asset.StorageKey); err != nil {
		return s.deletionFailed(ctx, asset, log, "delete_object", "object deletion failed: "+err.Error(), ErrObjectDeletion)
	}
	if err := s.files.DeleteByIDAndUserID(ctx, fileID, userID); err != nil {
		return s.deletionFailed(ctx, asset, log, "delete_record", err.Error(), ErrDatabaseDeletion)
	}
	log.Info("file deleted")
	return nil
}

func (s *FileService) deletionFailed(ctx context.Context, asset *model.FileAsset, log *logger.Logger, stage, reason string, kind error) error {
	log.Error("file deletion step failed", "stage", stage, "error", reason)
	asset.Status = model.FileStatusDeletionFailed
	asset.SetMeta(model.MetaDeleteError, reason)
	if err := s.files.SaveState(context.WithoutCancel(ctx), asset); err != nil {
		log.Error("record delete error failed", "error", err)
	}
	return fmt.Errorf("%w: %s", kind, reason)
}

func (s *FileService) lock(ctx context.Context, fileID uint) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	release, err := s.locks.Acquire(ctx, fileID)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, ErrRetryInProgress
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

func normalizeFileType(fileType, filename string) string {
	ft := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
	if ft == "" {
		ft = strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	}
	return ft
}
