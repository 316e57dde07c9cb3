package config

import (
	"encoding/json"
	"os"

	"github.com/sparkbridge/server/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so "15m" and "7d" are both accepted.
type JsonConfig struct {
	HTTPAddr             string         `json:"http_addr"`
	GRPCAddr             string         `json:"grpc_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	AccessSecret         string         `json:"jwt_access_secret"`
	RefreshSecret        string         `json:"jwt_refresh_secret"`
	AccessTokenTTL       timex.Duration `json:"jwt_access_expires_in"`
	RefreshTokenTTL      timex.Duration `json:"jwt_refresh_expires_in"`
	BcryptCost           int            `json:"bcrypt_cost"`
	TokenCleanupInterval timex.Duration `json:"token_cleanup_interval"`
	AllowedOrigins       []string       `json:"cors_origins"`
	LogLevel             string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Keys missing from the file leave the current value untouched. A file that
// cannot be read or parsed is a startup error, so it panics.
func parseJson(config *Config) {
	path := jsonConfigPath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessSecret, c.AccessSecret)
	setString(&config.RefreshSecret, c.RefreshSecret)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenTTL.Duration != 0 {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.RefreshTokenTTL.Duration != 0 {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}
	if c.TokenCleanupInterval.Duration != 0 {
		config.TokenCleanupInterval = c.TokenCleanupInterval.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
