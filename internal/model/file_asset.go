package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type FileStatus string

const (
	FileStatusPending        FileStatus = "pending"
	FileStatusUploaded       FileStatus = "uploaded"
	FileStatusProcessing     FileStatus = "processing"
	FileStatusReady          FileStatus = "ready"
	FileStatusFailed         FileStatus = "failed"
	FileStatusDeletionFailed FileStatus = "deletion_failed"
)

type IngestionStatus string

const (
	IngestionNotStarted IngestionStatus = "not_started"
	IngestionInProgress IngestionStatus = "in_progress"
	IngestionPartial    IngestionStatus = "partial"
	IngestionComplete   IngestionStatus = "complete"
	IngestionFailed     IngestionStatus = "failed"
)

// Well-known metadata keys. The map is open: other keys may be present.
const (
	MetaError           = "error"
	MetaFinalizeError   = "finalize_error"
	MetaDeleteError     = "delete_error"
	MetaChunksSucceeded = "chunks_succeeded"
	MetaChunksFailed    = "chunks_failed"
)

// Metadata is a free-form map persisted as a JSON document.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata failed: %w", err)
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("unmarshal metadata failed: %w", err)
		}
	}
	*m = out
	return nil
}

// Int reads a numeric metadata value; JSON round trips turn ints into float64.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// FileAsset is an uploaded file owned by one user.
type FileAsset struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index:idx_file_user_status" json:"user_id"`
	Filename        string          `gorm:"size:255;not null" json:"filename"`
	FileType        string          `gorm:"size:50;not null" json:"file_type"`
	StorageKey      string          `gorm:"size:500;not null;uniqueIndex" json:"storage_key"`
	Size            int64           `gorm:"not null" json:"size"`
	Status          FileStatus      `gorm:"size:20;not null;index:idx_file_user_status" json:"status"`
	IngestionStatus IngestionStatus `gorm:"size:20;not null" json:"ingestion_status"`
	Metadata        Metadata        `gorm:"type:text" json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (f *FileAsset) SetMeta(key string, value any) {
	if f.Metadata == nil {
		f.Metadata = Metadata{}
	}
	f.Metadata[key] = value
}

// IngestionTask asks a worker to (re)ingest one file. Replace drops existing chunks first.
type IngestionTask struct {
	ID      string `json:"id"`
	FileID  uint   `json:"file_id"`
	UserID  uint   `json:"user_id"`
	Replace bool   `json:"replace"`
}
