package images

import (
	"context"
	"errors"
)

// ErrEmptySource is returned when a pair source yields no rows at all.
var ErrEmptySource = errors.New("image pair source is empty")

// Pair holds two image references. Index i is shown to the i-th participant
// of a room once participants are sorted by id.
type Pair [2]string

// Source is an ordered table of image pairs. Every call to Open starts a new
// traversal from the first row.
type Source interface {
	Open(ctx context.Context) (Cursor, error)
}

// Cursor walks one traversal of a Source. Next returns io.EOF once the
// traversal is exhausted.
type Cursor interface {
	Next() (Pair, error)
	Close() error
}
