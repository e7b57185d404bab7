package clickhouse

import (
	"anchor/internal/config"
	"context"
	"errors"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

const clientName = "anchor-batcher"

// Conn owns the native connection used by the audit writer
type Conn struct {
	Native ch.Conn
	db     string
}

// Options derives driver options from the DSN and fills what the DSN leaves out
func Options(cfg *config.ClickHouseConfig) (*ch.Options, error) {
	if cfg == nil {
		return nil, errors.New("clickhouse config is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 4
	}
	if opts.Settings == nil {
		opts.Settings = ch.Settings{}
	}
	// async inserts unless the DSN sets them
	if _, ok := opts.Settings["async_insert"]; !ok {
		opts.Settings["async_insert"] = 1
		opts.Settings["wait_for_async_insert"] = 1
	}
	opts.ClientInfo.Products = append(opts.ClientInfo.Products, struct{ Name, Version string }{
		Name: clientName, Version: "1.0",
	})

	return opts, nil
}

func New(ctx context.Context, cfg *config.ClickHouseConfig) (*Conn, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &Conn{Native: conn, db: opts.Auth.Database}, nil
}

func (c *Conn) Database() string {
	return c.db
}

func (c *Conn) Close() error {
	return c.Native.Close()
}
