package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	// ErrContaminated marks extracted content that failed the metadata
	// contamination validator and must not be displayed or indexed.
	ErrContaminated = errors.New("content contaminated with metadata")
)
