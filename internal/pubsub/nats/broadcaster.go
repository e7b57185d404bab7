package nats

import (
	"anchor/internal/config"
	"anchor/internal/pubsub"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

var _ pubsub.Broadcaster = (*Client)(nil)

func New(log logger.Logger, cfg *config.NATSConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nats config is required")
	}

	url := cfg.URL
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("anchor-batcher"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnected
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS successfully, url=%s", url)

	return &Client{
		nc:     nc,
		log:    log,
		prefix: strings.TrimSuffix(cfg.BroadcastPrefix, "."),
	}, nil
}

// Subject joins the broadcast prefix and name
func (c *Client) Subject(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

// Publish encodes data as JSON and sends it to <prefix>.<subject>
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	if c.nc == nil {
		return errors.New("nats connection is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", subject, err)
	}

	full := c.Subject(subject)
	if err = c.nc.Publish(full, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", full, err)
	}

	c.log.Debugf("Published %d bytes to %s", len(payload), full)
	return nil
}

func (c *Client) Health(_ context.Context) error {
	if !c.Ready() {
		return fmt.Errorf("nats not connected, status=%s", c.Status())
	}
	return nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	// check not close this conn
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}
