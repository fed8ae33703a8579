package persistence

import "errors"

var (
	ErrNoDatabase = errors.New("no DATABASE_URL provided")
)
