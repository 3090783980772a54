package model

import "errors"

// ErrThreadNotFound is returned by thread stores for an unknown thread, or one
// that belongs to another tenant.
var ErrThreadNotFound = errors.New("thread not found")
