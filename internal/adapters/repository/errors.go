package repository

import "errors"

// Sentinel kinds for analysis store errors.
var (
	ErrNotFound   = errors.New("analysis not found")
	ErrSuperseded = errors.New("analysis superseded by a newer request")
)
