package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/rag"
)

type fileFixture struct {
	files   *memFiles
	queue   *recordingQueue
	vectors *stubVectors
	objects *stubObjects
	locks   *stubLocks
	svc     *FileService
}

func newFileFixture(ingester Ingester) *fileFixture {
	f := &fileFixture{
		files:   newMemFiles(),
		queue:   &recordingQueue{},
		vectors: &stubVectors{},
		objects: &stubObjects{},
		locks:   &stubLocks{},
	}
	f.svc = NewFileService(FileServiceDeps{
		Files:    f.files,
		Vectors:  f.vectors,
		Objects:  f.objects,
		Queue:    f.queue,
		Locks:    f.locks,
		Ingester: ingester,
	})
	return f
}

func validInput() FinalizeInput {
	return FinalizeInput{
		UserID:     7,
		Filename:   "contract.pdf",
		StorageKey: "uploads/7/0b5e/contract.pdf",
		Size:       2048,
	}
}

func TestFinalizeSchedulesIngestion(t *testing.T) {
	f := newFileFixture(nil)

	asset, err := f.svc.Finalize(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "pdf", asset.FileType)
	assert.Equal(t, model.FileStatusProcessing, asset.Status)

	stored, ok := f.files.get(asset.ID)
	require.True(t, ok)
	assert.Equal(t, model.FileStatusProcessing, stored.Status)
	assert.Equal(t, model.IngestionInProgress, stored.IngestionStatus)

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, asset.ID, task.FileID)
	assert.Equal(t, uint(7), task.UserID)
	assert.False(t, task.Replace)
	assert.NotEmpty(t, task.ID)
}

func TestFinalizeValidation(t *testing.T) {
	f := newFileFixture(nil)
	ctx := context.Background()

	in := validInput()
	in.Filename = "notes.exe"
	_, err := f.svc.Finalize(ctx, in)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	in = validInput()
	in.Size = MaxFileSize + 1
	_, err = f.svc.Finalize(ctx, in)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	in = validInput()
	in.StorageKey = "uploads/8/0b5e/contract.pdf"
	_, err = f.svc.Finalize(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = validInput()
	in.FileType = ".JPG"
	in.Filename = "scan"
	asset, err := f.svc.Finalize(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "jpg", asset.FileType)
}

func TestFinalizeSubmitFailureKeepsFileUploaded(t *testing.T) {
	f := newFileFixture(nil)
	f.queue.err = errBoom

	asset, err := f.svc.Finalize(context.Background(), validInput())
	require.ErrorIs(t, err, ErrIngestionEnqueue)
	require.NotNil(t, asset)

	stored, _ := f.files.get(asset.ID)
	assert.Equal(t, model.FileStatusUploaded, stored.Status)
	assert.Equal(t, model.IngestionNotStarted, stored.IngestionStatus)
	assert.Equal(t, "boom", stored.Metadata[model.MetaFinalizeError])
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("failed file is rescheduled with replace", func(t *testing.T) {
		f := newFileFixture(nil)
		f.queue.err = errBoom
		asset, _ := f.svc.Finalize(ctx, validInput())
		f.queue.err = nil

		got, err := f.svc.Retry(ctx, 7, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, model.FileStatusProcessing, got.Status)
		require.Len(t, f.queue.tasks, 1)
		assert.True(t, f.queue.tasks[0].Replace)
		assert.Equal(t, 1, f.locks.released)

		stored, _ := f.files.get(asset.ID)
		assert.NotContains(t, stored.Metadata, model.MetaFinalizeError)
	})

	t.Run("processing file is not retryable", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, err := f.svc.Finalize(ctx, validInput())
		require.NoError(t, err)

		_, err = f.svc.Retry(ctx, 7, asset.ID)
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("partial ingestion is retryable", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())
		asset.Status = model.FileStatusReady
		asset.IngestionStatus = model.IngestionPartial
		require.NoError(t, f.files.SaveState(ctx, asset))

		_, err := f.svc.Retry(ctx, 7, asset.ID)
		assert.NoError(t, err)
	})

	t.Run("held lock", func(t *testing.T) {
		f := newFileFixture(nil)
		f.locks.err = cache.ErrLockHeld
		_, err := f.svc.Retry(ctx, 7, 1)
		assert.ErrorIs(t, err, ErrRetryInProgress)
	})

	t.Run("other user's file", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())
		_, err := f.svc.Retry(ctx, 8, asset.ID)
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes vectors object and record", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())

		require.NoError(t, f.svc.Delete(ctx, 7, asset.ID))
		assert.Equal(t, 1, f.vectors.calls)
		assert.Equal(t, []string{asset.StorageKey}, f.objects.keys)
		_, ok := f.files.get(asset.ID)
		assert.False(t, ok)
	})

	t.Run("vector failure stops and marks deletion_failed", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())
		f.vectors.err = errBoom

		err := f.svc.Delete(ctx, 7, asset.ID)
		assert.ErrorIs(t, err, ErrVectorDeletion)
		assert.Empty(t, f.objects.keys)

		stored, ok := f.files.get(asset.ID)
		require.True(t, ok)
		assert.Equal(t, model.FileStatusDeletionFailed, stored.Status)
		assert.Equal(t, "boom", stored.Metadata[model.MetaDeleteError])
	})

	t.Run("object failure", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())
		f.objects.err = errBoom

		err := f.svc.Delete(ctx, 7, asset.ID)
		assert.ErrorIs(t, err, ErrObjectDeletion)
		stored, _ := f.files.get(asset.ID)
		assert.Equal(t, model.FileStatusDeletionFailed, stored.Status)
	})

	t.Run("record failure", func(t *testing.T) {
		f := newFileFixture(nil)
		asset, _ := f.svc.Finalize(ctx, validInput())
		f.files.delErr = errBoom

		err := f.svc.Delete(ctx, 7, asset.ID)
		assert.ErrorIs(t, err, ErrDatabaseDeletion)
	})

	t.Run("unknown file", func(t *testing.T) {
		f := newFileFixture(nil)
		assert.ErrorIs(t, f.svc.Delete(ctx, 7, 99), ErrFileNotFound)
	})
}

func TestRunIngestionRecordsFinalizeError(t *testing.T) {
	ctx := context.Background()
	f := newFileFixture(stubIngester{err: errBoom})
	asset, _ := f.svc.Finalize(ctx, validInput())

	err := f.svc.RunIngestion(ctx, model.IngestionTask{FileID: asset.ID, UserID: 7})
	assert.ErrorIs(t, err, errBoom)

	stored, _ := f.files.get(asset.ID)
	assert.Equal(t, "boom", stored.Metadata[model.MetaFinalizeError])
}

func TestRunIngestionPartialIsNotAnError(t *testing.T) {
	f := newFileFixture(stubIngester{res: rag.IngestionResult{
		IngestionStatus: model.IngestionPartial,
		Succeeded:       3,
		Failed:          2,
	}})
	assert.NoError(t, f.svc.RunIngestion(context.Background(), model.IngestionTask{FileID: 1, UserID: 7}))
}

