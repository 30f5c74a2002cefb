// Package domain contains the core types of the corpora engine.
package domain

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates the chunk and embedding counts differ,
	// or an embedding's dimension does not match the store's dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Generation degrades to an explicit apology response.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Retrieval is skipped when this is the case.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreClosed indicates an operation was attempted on a closed store.
	ErrStoreClosed = errors.New("store closed")
)
