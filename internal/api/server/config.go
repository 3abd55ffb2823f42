package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/DjordjeVuckovic/pgbench/pkg/utils"
)

const (
	envPort        = "PGBENCH_API_PORT"
	envHttp2       = "PGBENCH_API_HTTP2"
	envCorsOrigins = "PGBENCH_API_CORS_ORIGINS"
)

type Config struct {
	Port        string   `yaml:"port"`
	UseHttp2    bool     `yaml:"use_http2"`
	CorsOrigins []string `yaml:"cors_origins"`
}

func DefaultConfig() Config {
	return Config{
		Port:        "8080",
		CorsOrigins: []string{"*"},
	}
}

// ApplyEnv overrides fields with the PGBENCH_API_* variables that are set.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv(envPort); port != "" {
		c.Port = port
	}
	if v := os.Getenv(envHttp2); v != "" {
		c.UseHttp2 = v == "true"
	}
	if v := os.Getenv(envCorsOrigins); v != "" {
		c.CorsOrigins = utils.SplitCSV(v)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if len(c.CorsOrigins) == 0 {
		c.CorsOrigins = []string{"*"}
	}
	return nil
}

func validatePort(port string) error {
	portNum, err := strconv.Atoi(port)

	if err != nil {
		return errors.New("port must be a number")
	}

	if portNum < 1 || portNum > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	return nil
}
