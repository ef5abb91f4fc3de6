package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func TestDocumentChunkSchemaParses(t *testing.T) {
	s, err := schema.Parse(&DocumentChunk{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("Embedding")
	require.NotNil(t, field)
	assert.Equal(t, schema.DataType("vector"), field.DataType)
	assert.Equal(t, "1024", field.TagSettings["DIMENSION"])
}

func TestEmbeddingColumnType(t *testing.T) {
	tests := []struct {
		name          string
		dialect       string
		vectorEnabled bool
		want          string
	}{
		{"postgres with pgvector", "postgres", true, "vector(1024)"},
		{"postgres without pgvector", "postgres", false, "text"},
		{"sqlite", "sqlite", false, "text"},
		{"mysql", "mysql", true, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, embeddingColumnType(tt.dialect, tt.vectorEnabled, 1024))
		})
	}
}

func TestEmbeddingRoundTripOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&DocumentChunk{}))

	chunk := DocumentChunk{FileID: 1, UserID: 2, ChunkText: "lease term", Embedding: Embedding{0.5, -1, 2}}
	require.NoError(t, db.Create(&chunk).Error)
	empty := DocumentChunk{FileID: 1, UserID: 2, ChunkIndex: 1, ChunkText: "no vector"}
	require.NoError(t, db.Create(&empty).Error)

	var got []DocumentChunk
	require.NoError(t, db.Order("id").Find(&got).Error)
	require.Len(t, got, 2)
	assert.Equal(t, Embedding{0.5, -1, 2}, got[0].Embedding)
	assert.Nil(t, got[1].Embedding)
}
