package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[string]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into the config struct based on its
// `env` field tags. A .env file, if present, is loaded into the environment
// once per process before the first parse. Each config type is parsed once;
// later calls return the cached value.
//
//	type AppConfig struct {
//		Environment string `env:"APP_ENV" envDefault:"development"`
//		Port        int    `env:"PORT" envDefault:"8080"`
//	}
//
//	var cfg AppConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	typeName := reflect.TypeOf(*v).String()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typeName]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	// Store a copy so callers cannot mutate the cached value.
	cache[typeName] = *v
	return nil
}

// MustLoad is Load that panics on failure, for configs the application
// cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
