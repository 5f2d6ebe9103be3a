package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Config struct {
	Addr     string `envconfig:"ADDR"`
	DB       string `envconfig:"DB" default:"default"`
	Username string `envconfig:"USERNAME" default:"default"`
	Password string `envconfig:"PASSWORD"`
	Debug    bool   `envconfig:"DEBUG"`
}

// Enabled is false when no address is configured; reports are then only logged.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

type Clickhouse struct {
	conn driver.Conn
}

func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Clickhouse, error) {
	l := logger.With().Str("component", "clickhouse").Logger()
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.DB,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Debugf: func(format string, v ...any) {
			l.Debug().Msgf(format, v...)
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Duration(10) * time.Minute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}

	if err = conn.Ping(ctx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			l.Error().
				Int32("code", exception.Code).
				Str("stack", exception.StackTrace).
				Msg(exception.Message)
		}
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping clickhouse")
	}

	return &Clickhouse{
		conn: conn,
	}, nil
}

func (c *Clickhouse) Close() error {
	return c.conn.Close()
}

// Migrate creates the delivery table: one row per platform outcome of a
// dispatch. It holds no user data, hashed or otherwise.
func (c *Clickhouse) Migrate(ctx context.Context) error {
	return c.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS capi_deliveries
		(
			report_id     String,
			event_id      String,
			event_name    String,
			status        LowCardinality(String),
			platform      LowCardinality(String),
			platform_name String,
			success       Bool,
			skipped       Bool,
			http_status   UInt16,
			trace_id      String,
			error         String,
			duration_ms   UInt32,
			event_time    DateTime,
			server_time   DateTime
		) Engine = MergeTree
		ORDER BY (server_time, event_id)`)
}
