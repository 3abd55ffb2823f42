package env

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file.
// ENV_PATH overrides defaultPath. A missing file is skipped and variables
// that are already set keep their values.
func LoadDotEnv(defaultPath string) error {
	envPath := os.Getenv("ENV_PATH")
	if envPath == "" {
		envPath = defaultPath
	}
	if envPath == "" {
		return nil
	}

	err := godotenv.Load(envPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Skipping .env ...", "path", envPath)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Debug("Loaded .env", "path", envPath)
	return nil
}
