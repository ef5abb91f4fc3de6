package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const DefaultEmbeddingDimension = 1024

// Embedding is stored as a pgvector column on postgres and as the same
// "[x,y,...]" text form on every other dialect.
type Embedding []float32

func (e Embedding) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(e).Value()
}

func (e *Embedding) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var v pgvector.Vector
	if err := v.Scan(src); err != nil {
		return fmt.Errorf("scan embedding failed: %w", err)
	}
	*e = v.Slice()
	return nil
}

// GormDataType names the schema type; the column type is dialect specific.
func (Embedding) GormDataType() string {
	return "vector"
}

// GormDBDataType sizes the column from the field's `dimension` tag setting.
// Postgres without the vector extension gets a text column, like the other
// dialects, so the in-memory similarity path still works.
func (Embedding) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	dim := DefaultEmbeddingDimension
	if raw, ok := field.TagSettings["DIMENSION"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			dim = n
		}
	}
	dialect := db.Dialector.Name()
	vectorEnabled := false
	if dialect == "postgres" {
		var n int64
		err := db.Session(&gorm.Session{NewDB: true}).
			Raw("SELECT COUNT(*) FROM pg_extension WHERE extname = ?", "vector").
			Scan(&n).Error
		vectorEnabled = err == nil && n > 0
	}
	return embeddingColumnType(dialect, vectorEnabled, dim)
}

func embeddingColumnType(dialect string, vectorEnabled bool, dim int) string {
	if dialect != "postgres" || !vectorEnabled {
		return "text"
	}
	return fmt.Sprintf("vector(%d)", dim)
}

// DocumentChunk is one embedded slice of a FileAsset's text.
// UserID is denormalized from the owning file so every query can filter on it.
type DocumentChunk struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	FileID           uint      `gorm:"not null;index:idx_chunk_user_file" json:"file_id"`
	UserID           uint      `gorm:"not null;index:idx_chunk_user_file" json:"user_id"`
	ChunkIndex       int       `gorm:"not null" json:"chunk_index"`
	PageNumber       *int      `json:"page_number,omitempty"`
	ChunkText        string    `gorm:"type:text;not null" json:"chunk_text"`
	Embedding        Embedding `gorm:"dimension:1024" json:"-"`
	ExtractionMethod string    `gorm:"size:50" json:"extraction_method"`
	Metadata         Metadata  `gorm:"type:text" json:"metadata"`
	CreatedAt        time.Time `json:"created_at"`
}
