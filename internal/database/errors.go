package database

import "errors"

// ErrShortIDExists is returned when an attempt is made to create
// a new short link with a short identifier that already exists.
var ErrShortIDExists = errors.New("short id exists")
