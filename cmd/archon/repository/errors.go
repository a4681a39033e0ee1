package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist. Services
// translate it into their own not-found types so handlers can map it to
// a 404 instead of a 500.
var ErrNotFound = errors.New("not found")
