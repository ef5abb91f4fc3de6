package rag

import "errors"

var (
	ErrTransientProvider  = errors.New("transient provider failure")
	ErrConfiguration      = errors.New("provider configuration error")
	ErrQuotaExceeded      = errors.New("provider quota exceeded")
	ErrExtraction         = errors.New("extraction failed")
	ErrPartialIngestion   = errors.New("some chunks failed to embed")
	ErrScopeViolation     = errors.New("query is not scoped to a user")
	ErrEmbeddingExhausted = errors.New("embedding retries exhausted")
)
