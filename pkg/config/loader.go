package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache       sync.Map // reflect.Type -> *entry
	dotenvOnce  sync.Once
	envFileName = ".env"
)

// Load parses the environment into v. The first successful parse of a type
// is cached and copied into later calls for the same type. A failed parse is
// cached too: configuration does not change while the process runs.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDotenv()

	key := reflect.TypeFor[T]()
	e, _ := cache.LoadOrStore(key, &entry{})
	ent := e.(*entry)

	ent.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			ent.err = errors.Join(ErrParsingConfig, err)
			return
		}
		ent.value = parsed
	})

	if ent.err != nil {
		return ent.err
	}
	*v = ent.value.(T)
	return nil
}

// MustLoad works like Load but panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Reset drops every cached configuration. Intended for tests.
func Reset() {
	cache.Clear()
}

func loadDotenv() {
	dotenvOnce.Do(func() {
		name := envFileName
		if f := os.Getenv("ENV_FILE"); f != "" {
			name = f
		}
		// A missing file is fine; the environment may be set by the platform.
		_ = godotenv.Load(name)
	})
}
