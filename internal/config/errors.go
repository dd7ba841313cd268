package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure and bad CLI input.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading the YAML file or environment.
	ErrLoadConfig = errors.New("load config failed")
)
