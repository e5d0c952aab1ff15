package evidence

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no frame exists for an id.
var ErrNotFound = errors.New("evidence frame not found")

// StorageError wraps a failure of the image store or the metadata store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("evidence storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
