package store

import (
	"github.com/apc-tools/apcstore/internal/errors"
)

var (
	ErrNotFound    = errors.ErrNotFound
	ErrUnavailable = errors.ErrUnavailable
	ErrCorrupt     = errors.ErrCorrupt
	ErrClosed      = errors.ErrClosed
)
