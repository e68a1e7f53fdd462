package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNilPointer is returned when a nil pointer is passed to Load.
var ErrNilPointer = errors.New("nil pointer provided to config loader")

// ErrParsingConfig wraps env parsing failures.
var ErrParsingConfig = errors.New("failed to parse environment variables into config")

var loadDotEnv sync.Once

// Load parses environment variables into the provided struct based on its
// `env` field tags. The default .env file is loaded once per process; its
// absence is not an error.
func Load[T any](v *T) error {
	loadDotEnv.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure, for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
