package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
)

var ErrFileNotFound = errors.New("file not found")

const allChunksFailedMessage = "All chunks failed to process"

type FileStore interface {
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.FileAsset, error)
	SaveState(ctx context.Context, asset *model.FileAsset) error
}

type ChunkWriter interface {
	CreateBatch(ctx context.Context, chunks []model.DocumentChunk) error
	DeleteByFile(ctx context.Context, userID, fileID uint) error
}

type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, fileType string) (extract.Document, error)
}

// ImageExtractor never fails; degraded output is signalled through the method tag.
type ImageExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (text string, method string)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type IngestionResult struct {
	FileID          uint
	Status          model.FileStatus
	IngestionStatus model.IngestionStatus
	Succeeded       int
	Failed          int
}

// Err is ErrPartialIngestion for partial runs and nil otherwise.
func (r IngestionResult) Err() error {
	if r.IngestionStatus == model.IngestionPartial {
		return fmt.Errorf("%w: %d of %d", ErrPartialIngestion, r.Failed, r.Succeeded+r.Failed)
	}
	return nil
}

type IngestionPipeline struct {
	files     FileStore
	chunks    ChunkWriter
	objects   ObjectReader
	documents DocumentExtractor
	images    ImageExtractor
	chunker   *Chunker
	embedder  Embedder
	log       *logger.Logger
}

type IngestionDeps struct {
	Files     FileStore
	Chunks    ChunkWriter
	Objects   ObjectReader
	Documents DocumentExtractor
	Images    ImageExtractor
	Chunker   *Chunker
	Embedder  Embedder
	Logger    *logger.Logger
}

func NewIngestionPipeline(d IngestionDeps) *IngestionPipeline {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Chunker == nil {
		d.Chunker = NewChunker(ChunkerConfig{})
	}
	return &IngestionPipeline{
		files:     d.Files,
		chunks:    d.Chunks,
		objects:   d.Objects,
		documents: d.Documents,
		images:    d.Images,
		chunker:   d.Chunker,
		embedder:  d.Embedder,
		log:       d.Logger,
	}
}

// Ingest runs one file through extract, chunk, embed and persist. Any error
// returned has already been written to the file's status and metadata.
func (p *IngestionPipeline) Ingest(ctx context.Context, task model.IngestionTask) (IngestionResult, error) {
	asset, err := p.files.GetByIDAndUserID(ctx, task.FileID, task.UserID)
	if err != nil {
		return IngestionResult{}, err
	}
	if asset == nil {
		return IngestionResult{}, fmt.Errorf("%w: %d", ErrFileNotFound, task.FileID)
	}
	log := p.log.With("file_id", asset.ID, "user_id", asset.UserID, "task_id", task.ID)

	asset.Status = model.FileStatusProcessing
	asset.IngestionStatus = model.IngestionInProgress
	for _, k := range []string{model.MetaError, model.MetaChunksSucceeded, model.MetaChunksFailed} {
		delete(asset.Metadata, k)
	}
	if err := p.files.SaveState(ctx, asset); err != nil {
		return IngestionResult{}, err
	}

	res, stage, err := p.run(ctx, asset, task.Replace, log)
	if err != nil {
		log.Error("ingestion failed", "stage", stage, "error", err)
		asset.Status = model.FileStatusFailed
		asset.IngestionStatus = model.IngestionFailed
		asset.SetMeta(model.MetaError, err.Error())
		if saveErr := p.files.SaveState(context.WithoutCancel(ctx), asset); saveErr != nil {
			log.Error("record ingestion failure failed", "error", saveErr)
		}
		return IngestionResult{FileID: asset.ID, Status: asset.Status, IngestionStatus: asset.IngestionStatus}, err
	}
	return res, nil
}

func (p *IngestionPipeline) run(ctx context.Context, asset *model.FileAsset, replace bool, log *logger.Logger) (IngestionResult, string, error) {
	if replace {
		if err := p.chunks.DeleteByFile(ctx, asset.UserID, asset.ID); err != nil {
			return IngestionResult{}, "delete_chunks", err
		}
	}

	data, err := p.objects.Get(ctx, asset.StorageKey)
	if err != nil {
		return IngestionResult{}, "download", err
	}

	pages, method, err := p.extractPages(ctx, asset.FileType, data)
	if err != nil {
		return IngestionResult{}, "extract", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if strings.TrimSpace(extract.Document{Pages: pages}.Text()) == "" {
		return IngestionResult{}, "extract", fmt.Errorf("%w: no text extracted from file", ErrExtraction)
	}

	textChunks := p.chunker.ChunkPages(pages)
	if len(textChunks) == 0 {
		return IngestionResult{}, "chunk", fmt.Errorf("%w: no chunks created from text", ErrExtraction)
	}

	vectors := make([][]float32, len(textChunks))
	failed := 0
	for i, tc := range textChunks {
		vec, err := p.embedder.Embed(ctx, tc.Text)
		if err != nil {
			if ctx.Err() != nil {
				return IngestionResult{}, "embed", ctx.Err()
			}
			failed++
			log.Warn("chunk embedding failed", "stage", "embed", "chunk_index", tc.Index, "error", err)
			continue
		}
		vectors[i] = vec
	}

	rows := make([]model.DocumentChunk, 0, len(textChunks)-failed)
	for i, tc := range textChunks {
		if len(vectors[i]) == 0 {
			continue
		}
		meta := model.Metadata{"chunk_index": tc.Index}
		if tc.PageNumber != nil {
			meta["page_number"] = *tc.PageNumber
		}
		rows = append(rows, model.DocumentChunk{
			FileID:           asset.ID,
			UserID:           asset.UserID,
			ChunkIndex:       tc.Index,
			PageNumber:       tc.PageNumber,
			ChunkText:        tc.Text,
			Embedding:        vectors[i],
			ExtractionMethod: method,
			Metadata:         meta,
		})
	}
	if len(rows)+failed != len(textChunks) {
		return IngestionResult{}, "embed", fmt.Errorf("embedding count mismatch: %d embedded, %d failed, %d chunks", len(rows), failed, len(textChunks))
	}
	if err := p.chunks.CreateBatch(ctx, rows); err != nil {
		return IngestionResult{}, "persist", err
	}

	succeeded := len(rows)
	switch {
	case failed == 0:
		asset.Status = model.FileStatusReady
		asset.IngestionStatus = model.IngestionComplete
	case succeeded > 0:
		asset.Status = model.FileStatusReady
		asset.IngestionStatus = model.IngestionPartial
		asset.SetMeta(model.MetaChunksSucceeded, succeeded)
		asset.SetMeta(model.MetaChunksFailed, failed)
	default:
		asset.Status = model.FileStatusFailed
		asset.IngestionStatus = model.IngestionFailed
		asset.SetMeta(model.MetaChunksFailed, failed)
		asset.SetMeta(model.MetaError, allChunksFailedMessage)
	}
	if err := p.files.SaveState(ctx, asset); err != nil {
		return IngestionResult{}, "finalize", err
	}

	log.Info("ingestion finished",
		"status", asset.Status,
		"ingestion_status", asset.IngestionStatus,
		"succeeded", succeeded,
		"failed", failed,
		"method", method,
	)
	return IngestionResult{
		FileID:          asset.ID,
		Status:          asset.Status,
		IngestionStatus: asset.IngestionStatus,
		Succeeded:       succeeded,
		Failed:          failed,
	}, "", nil
}

func (p *IngestionPipeline) extractPages(ctx context.Context, fileType string, data []byte) ([]extract.Page, string, error) {
	ft := strings.ToLower(fileType)
	if mime, ok := imageMIMETypes[ft]; ok {
		if p.images == nil {
			return nil, "", fmt.Errorf("no image extractor configured for %s", ft)
		}
		text, method := p.images.Extract(ctx, data, mime)
		return []extract.Page{{Text: text}}, method, nil
	}
	doc, err := p.documents.Extract(ctx, data, ft)
	if err != nil {
		return nil, "", err
	}
	return doc.Pages, ft, nil
}

var imageMIMETypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

func IsImageType(fileType string) bool {
	_, ok := imageMIMETypes[strings.ToLower(fileType)]
	return ok
}
