package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/printer"
)

// loadConfig reads .env from the working directory, then the --config file.
func loadConfig() (*config.BurrowConfig, error) {
	if err := config.LoadEnv("."); err != nil {
		return nil, printer.Error("failed to load .env", err.Error(), nil)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, printer.Error(
				"configuration not found",
				fmt.Sprintf("No configuration file at %s", configPath),
				[]string{
					"Create one in the current directory:\n  burrow init",
					"Or point at an existing file:\n  burrow run --config path/to/burrow.yml",
				},
			)
		}
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Compare with a fresh template:\n  burrow init --force (in an empty directory)"},
		)
	}
	return cfg, nil
}

// ledgerURL returns the Redis address of the run ledger. BURROW_REDIS_URL wins;
// otherwise the config is consulted, if there is one.
func ledgerURL() (string, error) {
	if err := config.LoadEnv("."); err != nil {
		return "", printer.Error("failed to load .env", err.Error(), nil)
	}
	if url := os.Getenv(config.RedisURLEnv); url != "" {
		return url, nil
	}

	if _, err := os.Stat(configPath); err == nil {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		if url := cfg.RedisURL(); url != "" {
			return url, nil
		}
	}

	return "", printer.Error(
		"run ledger not configured",
		"History is read from the Redis run ledger, which is not enabled.",
		[]string{
			fmt.Sprintf("Set the ledger address in %s:\n  events:\n    redis_url: redis://localhost:6379/0", filepath.Base(configPath)),
			fmt.Sprintf("Or export it:\n  export %s=redis://localhost:6379/0", config.RedisURLEnv),
		},
	)
}
