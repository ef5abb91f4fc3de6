package model

// ChunkScope bounds every chunk query. UserID is mandatory; an empty FileIDs
// means all of the user's files.
type ChunkScope struct {
	UserID  uint
	FileIDs []uint
}

// ScopedChunk is a chunk row joined with its owning file's display name.
// Distance is only populated by the native vector query.
type ScopedChunk struct {
	DocumentChunk
	Filename string  `gorm:"column:filename"`
	Distance float64 `gorm:"column:distance"`
}

// RetrievedChunk is a ranked retrieval result. Similarity is a cosine score in
// [0,1], or a match ratio when produced by keyword matching.
type RetrievedChunk struct {
	ChunkID    uint    `json:"chunk_id"`
	FileID     uint    `json:"file_id"`
	UserID     uint    `json:"user_id"`
	ChunkIndex int     `json:"chunk_index"`
	PageNumber *int    `json:"page_number,omitempty"`
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	Similarity float64 `json:"similarity"`
}

func NewRetrievedChunk(c ScopedChunk, similarity float64) RetrievedChunk {
	return RetrievedChunk{
		ChunkID:    c.ID,
		FileID:     c.FileID,
		UserID:     c.UserID,
		ChunkIndex: c.ChunkIndex,
		PageNumber: c.PageNumber,
		Text:       c.ChunkText,
		Filename:   c.Filename,
		Similarity: similarity,
	}
}

type Citation struct {
	Filename   string `json:"filename"`
	PageNumber *int   `json:"page_number"`
}
