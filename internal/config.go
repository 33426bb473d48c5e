package internal

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
)

// Config is the environment-driven configuration of the archiver.
type Config struct {
	Token   string       `env:"ARCHIVE_BOT_TOKEN,required"`
	GuildID snowflake.ID `env:"ARCHIVE_GUILD_ID,required"`

	OutputDir string `env:"ARCHIVE_OUTPUT_DIR" envDefault:"backup"`
	// ResumeDir points at an existing run directory to continue instead of
	// starting a fresh timestamped one.
	ResumeDir string `env:"ARCHIVE_RESUME_DIR"`
	StatePath string `env:"ARCHIVE_STATE_PATH" envDefault:"archive-state.bolt"`

	SkipMedia        bool `env:"ARCHIVE_SKIP_MEDIA"`
	MediaConcurrency int  `env:"ARCHIVE_MEDIA_CONCURRENCY" envDefault:"4"`

	// RunOnReady starts an archive pass as soon as the guild is ready and
	// shuts down when it finishes. When false the bot stays up and waits
	// for the /archive command.
	RunOnReady bool `env:"ARCHIVE_RUN_ON_READY" envDefault:"true"`

	// DatabaseURL enables the optional Postgres run index.
	DatabaseURL string `env:"ARCHIVE_DATABASE_URL"`

	SentryDSN   string `env:"SENTRY_DSN"`
	Environment string `env:"ARCHIVE_ENVIRONMENT"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
