package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sparkbridge/server/internal/timex"
)

// parseEnv overlays environment variables onto config. Unset variables keep
// the current value. Durations accept the day suffix ("7d"). PORT, when set,
// overrides the HTTP listen address the way hosting platforms expect.
func parseEnv(config *Config) error {
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (any, error) {
				return timex.ParseDuration(v)
			},
		},
	}

	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		config.HTTPAddr = ":" + port
	}
	return nil
}
