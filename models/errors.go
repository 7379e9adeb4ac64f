package models

import "errors"

// ErrNotFound is returned by stores when a publication, file or location does not exist.
var ErrNotFound = errors.New("record not found")
