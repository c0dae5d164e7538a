package config

import "errors"

var (
	// ErrCannotOpen is returned when config.yaml exists but can't be read
	// (permissions, I/O error).
	ErrCannotOpen = errors.New("config: cannot open file")

	// ErrInvalidFile is returned when config.yaml exists but doesn't parse
	// as valid YAML in the expected shape.
	ErrInvalidFile = errors.New("config: invalid file")
)
