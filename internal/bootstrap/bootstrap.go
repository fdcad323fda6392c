// Package bootstrap builds the journal service from configuration. Both
// entrypoints share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"reflection-journal/internal/config"
	"reflection-journal/internal/integrations/openai"
	"reflection-journal/internal/integrations/paramstore"
	"reflection-journal/internal/repository"
	"reflection-journal/internal/repository/sqlstore"
	"reflection-journal/internal/usecase"
)

type journalStore interface {
	usecase.EntryStore
	usecase.WeeklyStore
	usecase.SessionStore
}

// App holds the wired service and the resources to release on shutdown.
type App struct {
	Service *usecase.JournalService
	closers []func() error
}

// Close releases store connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build creates clients for cfg and wires the journal service.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
	}

	store, err := buildStore(ctx, cfg, awsCfg, app)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(cfg, awsCfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	temperature := cfg.OpenAITemperature
	svc, err := usecase.NewJournalService(gen, store, store, store, usecase.Settings{
		Temperature:       &temperature,
		ExtractAttempts:   cfg.ExtractAttempts,
		MaxQuestionLength: cfg.MaxQuestionLength,
		MaxMessageLength:  cfg.MaxMessageLength,
		MaxContextChars:   cfg.MaxContextChars,
		MaxSessionTurns:   cfg.MaxSessionTurns,
		Location:          loc,
	}, logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.Service = svc
	logger.Info("journal service ready", "store_driver", cfg.StoreDriver, "static_openai", cfg.UseStaticOpenAI())
	return app, nil
}

func buildStore(ctx context.Context, cfg config.Config, awsCfg aws.Config, app *App) (journalStore, error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		c, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, repository.WithSessionTTL(cfg.SessionTTL))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: dynamodb store: %w", err)
		}
		return c, nil
	case config.DriverPostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: postgres store: %w", err)
		}
		app.closers = append(app.closers, s.Close)
		return s, nil
	case config.DriverSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: sqlite store: %w", err)
		}
		app.closers = append(app.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.StoreDriver)
}

func buildGenerator(cfg config.Config, awsCfg aws.Config) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithRequestTimeout(cfg.OpenAIRequestTimeout),
		openai.WithMaxRetries(cfg.OpenAIMaxRetries),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIModel != "" {
		opts = append(opts, openai.WithModel(cfg.OpenAIModel))
	}

	var getter openai.Getter
	if !cfg.UseStaticOpenAI() {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: paramstore: %w", err)
		}
		getter = ps
	}
	c, err := openai.NewClient(getter, cfg.ParamPrefix, opts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: openai client: %w", err)
	}
	return c, nil
}
