package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"reflection-journal/internal/bootstrap"
	"reflection-journal/internal/config"
	"reflection-journal/internal/logging"
)

func main() {
	if err := loadDotEnv(".env.local", ".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(openService).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv loads the files that exist. Variables already set in the
// environment win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("journalctl: load %s: %w", p, err)
		}
	}
	return nil
}

// openService wires the service from the environment. Logs go to stderr so
// stdout stays machine readable.
func openService(ctx context.Context) (journalService, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewWithWriter(os.Stderr, cfg.LogLevel, "text")
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app.Service, app.Close, nil
}
