package store

import "github.com/Laisky/errors/v2"

var (
	// ErrCommentNotFound is returned when the referenced comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrStateConflict means the stored state moved since the comment was read.
	ErrStateConflict = errors.New("comment state changed concurrently")
)
