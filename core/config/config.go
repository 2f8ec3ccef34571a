package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	// cache holds one loaded value per configuration type.
	cache sync.Map // reflect.Type -> any
)

// Load populates cfg from environment variables using the struct's env tags.
// A .env file in the working directory is loaded once per process before the
// first parse. Each configuration type is parsed only once; subsequent calls
// for the same type return the cached value.
func Load[T any](cfg *T) error {
	dotenvOnce.Do(func() {
		// Missing .env is fine; the environment may be set externally.
		_ = godotenv.Load()
	})

	t := reflect.TypeOf(*cfg)
	if cached, ok := cache.Load(t); ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", t, err)
	}

	actual, _ := cache.LoadOrStore(t, *cfg)
	*cfg = actual.(T)
	return nil
}

// MustLoad is Load that panics on failure. Useful during application startup
// where a missing required variable should abort immediately.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
