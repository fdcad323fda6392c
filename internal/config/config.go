// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is read once at startup by the entrypoints.
type Config struct {
	StoreDriver string        `envconfig:"STORE_DRIVER" default:"dynamodb"`
	StateTable  string        `envconfig:"STATE_TABLE"`
	PostgresDSN string        `envconfig:"POSTGRES_DSN"`
	SQLitePath  string        `envconfig:"SQLITE_PATH" default:"journal.db"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	// ParamPrefix locates the OpenAI token and model in SSM.
	ParamPrefix          string        `envconfig:"PARAM_PREFIX"`
	OpenAIAPIKey         string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel          string        `envconfig:"OPENAI_MODEL"`
	OpenAIBaseURL        string        `envconfig:"OPENAI_BASE_URL"`
	OpenAITemperature    float64       `envconfig:"OPENAI_TEMPERATURE" default:"0.1"`
	OpenAIRequestTimeout time.Duration `envconfig:"OPENAI_REQUEST_TIMEOUT" default:"30s"`
	OpenAIMaxRetries     int           `envconfig:"OPENAI_MAX_RETRIES" default:"2"`

	ExtractAttempts   int    `envconfig:"EXTRACT_ATTEMPTS" default:"3"`
	MaxQuestionLength int    `envconfig:"MAX_QUESTION_LENGTH" default:"500"`
	MaxMessageLength  int    `envconfig:"MAX_MESSAGE_LENGTH" default:"4000"`
	MaxContextChars   int    `envconfig:"MAX_CONTEXT_CHARS" default:"0"`
	MaxSessionTurns   int    `envconfig:"MAX_SESSION_TURNS" default:"100"`
	Timezone          string `envconfig:"JOURNAL_TIMEZONE" default:"UTC"`

	LogLevel            string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat           string `envconfig:"LOG_FORMAT" default:"json"`
	AllowHeaderIdentity bool   `envconfig:"ALLOW_HEADER_IDENTITY" default:"false"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the settings each store driver and the generation client
// require.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if !c.UseStaticOpenAI() && strings.TrimSpace(c.ParamPrefix) == "" {
		return errors.New("config: PARAM_PREFIX is required unless OPENAI_API_KEY and OPENAI_MODEL are set")
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("config: OPENAI_TEMPERATURE %v out of range [0, 2]", c.OpenAITemperature)
	}
	if c.ExtractAttempts < 1 {
		return errors.New("config: EXTRACT_ATTEMPTS must be at least 1")
	}
	if c.MaxContextChars < 0 {
		return errors.New("config: MAX_CONTEXT_CHARS must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// UseStaticOpenAI reports whether the OpenAI key and model come from the
// environment rather than SSM.
func (c Config) UseStaticOpenAI() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != "" && strings.TrimSpace(c.OpenAIModel) != ""
}

// NeedsAWS reports whether any AWS client has to be built.
func (c Config) NeedsAWS() bool {
	return c.StoreDriver == DriverDynamoDB || !c.UseStaticOpenAI()
}

// Location resolves JOURNAL_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: JOURNAL_TIMEZONE: %w", err)
	}
	return loc, nil
}
