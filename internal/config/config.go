package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/leshachaplin/capirelay/internal/dispatch"
	"github.com/leshachaplin/capirelay/internal/pii"
	"github.com/leshachaplin/capirelay/internal/platform/meta"
	"github.com/leshachaplin/capirelay/internal/platform/snapchat"
	"github.com/leshachaplin/capirelay/internal/platform/tiktok"
	"github.com/leshachaplin/capirelay/internal/storage/report/clickhouse"
	"github.com/leshachaplin/capirelay/internal/worker"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/producer"
)

// Config is the main config for the application
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO" validate:"oneof=TRACE DEBUG INFO WARN ERROR PANIC"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	Meta     meta.Config     `envconfig:"META"`
	Snapchat snapchat.Config `envconfig:"SNAPCHAT"`
	TikTok   tiktok.Config   `envconfig:"TIKTOK"`
	Dispatch dispatch.Config `envconfig:"DISPATCH"`

	Phone               pii.PhoneRule `envconfig:"PHONE"`
	LocalPhonePlatforms []string      `envconfig:"PHONE_LOCAL_PLATFORMS"`
	DefaultCurrency     string        `envconfig:"CUSTOM_DEFAULT_CURRENCY" validate:"omitempty,len=3,alpha"`

	Report         worker.Config     `envconfig:"REPORT"`
	ReportProducer producer.Config   `envconfig:"REDPANDA"`
	ReportConsumer consumer.Config   `envconfig:"REDPANDA"`
	Clickhouse     clickhouse.Config `envconfig:"CLICKHOUSE"`
}

// PII assembles the normalizer settings.
func (c Config) PII() pii.Config {
	return pii.Config{
		Phone:               c.Phone,
		LocalPhonePlatforms: c.LocalPhonePlatforms,
	}
}

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "load %s", f)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}
	if cfg.Meta.DefaultCurrency == "" {
		cfg.Meta.DefaultCurrency = cfg.DefaultCurrency
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}
