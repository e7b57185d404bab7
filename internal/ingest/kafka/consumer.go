package kafka

import (
	"anchor/internal/config"
	"anchor/internal/dedupe"
	"anchor/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"gitlab.com/nevasik7/alerting/logger"
)

const source = "kafka"

type Submitter interface {
	SubmitIntent(ctx context.Context, in *domain.SwapIntent, source string) (string, error)
}

// subset of *kafka.Reader
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IntentMessage is the topic payload of one submission
type IntentMessage struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserAddress    string `json:"user_address"`
	FromToken      string `json:"from_token"`
	ToToken        string `json:"to_token"`
	FromChain      string `json:"from_chain"`
	ToChain        string `json:"to_chain"`
	Amount         string `json:"amount"`
	Recipient      string `json:"recipient"`
}

func (m *IntentMessage) toIntent() (*domain.SwapIntent, error) {
	amount, err := domain.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.SwapIntent{
		UserAddress: m.UserAddress,
		FromToken:   m.FromToken,
		ToToken:     m.ToToken,
		FromChain:   m.FromChain,
		ToChain:     m.ToChain,
		Amount:      amount,
		Recipient:   m.Recipient,
	}, nil
}

// Consumer turns topic messages into intent submissions, at-least-once with dedupe
type Consumer struct {
	log        logger.Logger
	reader     messageReader
	submitter  Submitter
	deduper    dedupe.Deduper
	maxRetries int
	backoff    time.Duration
}

func New(log logger.Logger, cfg *config.IngestConfig, submitter Submitter, deduper dedupe.Deduper) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("ingest config is required to the consumer")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("ingest brokers and topic are required to the consumer")
	}

	// sane defaults
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "anchor-batcher"
	}
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        groupID,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		MaxWait:        maxWait,
		SessionTimeout: sessionTimeout,
		StartOffset:    kafka.FirstOffset,
	})

	log.Infof("Kafka consumer configured, brokers=%v topic=%s group=%s", cfg.Brokers, cfg.Topic, groupID)
	return newConsumer(log, reader, submitter, deduper)
}

func newConsumer(log logger.Logger, reader messageReader, submitter Submitter, deduper dedupe.Deduper) (*Consumer, error) {
	if submitter == nil {
		return nil, errors.New("submitter is required to the consumer")
	}
	if deduper == nil {
		return nil, errors.New("deduper is required to the consumer")
	}

	return &Consumer{
		log:        log,
		reader:     reader,
		submitter:  submitter,
		deduper:    deduper,
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}, nil
}

// Run blocks until ctx is done; each message is committed after it was handled
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infof("Kafka consumer started")
	defer c.log.Infof("Kafka consumer stopped")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Errorf("Failed to fetch message, error=%v", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if !c.process(ctx, m) {
			// not committed, the group redelivers it after restart
			c.log.Warnf("Stopping with uncommitted offset %d of partition %d", m.Offset, m.Partition)
			return nil
		}

		if err = c.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			c.log.Errorf("Failed to commit offset %d of partition %d, error=%v", m.Offset, m.Partition, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// process reports whether m was handled: submitted, duplicate or invalid.
// Transient failures are retried with a capped backoff until ctx is done.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	for attempt := 0; ; attempt++ {
		err := c.handle(ctx, m)
		if err == nil {
			return true
		}

		if errors.Is(err, domain.ErrInvalidIntent) {
			c.log.Warnf("Dropping invalid intent message at offset %d, error=%v", m.Offset, err)
			return true
		}

		if attempt+1 == c.maxRetries {
			c.log.Errorf("Intent message at offset %d still failing after %d attempts, error=%v", m.Offset, attempt+1, err)
		} else {
			c.log.Warnf("Retrying intent message at offset %d, attempt=%d error=%v", m.Offset, attempt+1, err)
		}

		if !sleep(ctx, c.retryDelay(attempt)) {
			return false
		}
	}
}

func (c *Consumer) retryDelay(attempt int) time.Duration {
	if attempt >= c.maxRetries {
		attempt = c.maxRetries
	}
	return c.backoff * time.Duration(attempt+1)
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var msg IntentMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrInvalidIntent, err)
	}

	intent, err := msg.toIntent()
	if err != nil {
		return err
	}

	key := msg.IdempotencyKey
	if key == "" {
		key = string(m.Key)
	}

	if key != "" {
		seen, err := c.deduper.Seen(ctx, key)
		if err != nil {
			return fmt.Errorf("dedupe check failed for %s: %w", key, err)
		}
		if seen {
			c.log.Debugf("Duplicate intent message ignored: %s", key)
			return nil
		}
	}

	id, err := c.submitter.SubmitIntent(ctx, intent, source)
	if err != nil {
		if key != "" {
			if ferr := c.deduper.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				c.log.Errorf("Failed to release dedupe key %s, error=%v", key, ferr)
			}
		}
		return err
	}

	c.log.Debugf("Intent %s submitted from offset %d", id, m.Offset)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
