package store

import "errors"

// ErrNotFound is returned when a requested key is not present in the store.
// This abstracts away the underlying storage implementation from the
// service layer.
var ErrNotFound = errors.New("key not found")
