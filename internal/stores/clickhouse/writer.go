package clickhouse

import (
	"anchor/internal/config"
	"anchor/internal/domain"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

const createMatchedSwaps = `
	CREATE TABLE IF NOT EXISTS matched_swaps (
		batch_id       String,
		batch_time     DateTime64(3, 'UTC'),
		merkle_root    FixedString(66),
		intent_id      String,
		user_address   String,
		from_token     LowCardinality(String),
		to_token       LowCardinality(String),
		from_chain     LowCardinality(String),
		to_chain       LowCardinality(String),
		amount         Decimal(38, 18),
		net_amount     Decimal(38, 18),
		fill_kind      LowCardinality(String),
		matched_with   String,
		matched_amount Decimal(38, 18)
	) ENGINE = MergeTree
	ORDER BY (batch_time, batch_id, intent_id)
`

const insertMatchedSwaps = `
	INSERT INTO matched_swaps (
		batch_id,
		batch_time,
		merkle_root,
		intent_id,
		user_address,
		from_token,
		to_token,
		from_chain,
		to_chain,
		amount,
		net_amount,
		fill_kind,
		matched_with,
		matched_amount
	)
`

// One audit row per matched swap record of a committed batch
type SwapRow struct {
	BatchID       string
	BatchTime     time.Time
	MerkleRoot    string
	IntentID      string
	UserAddress   string
	FromToken     string
	ToToken       string
	FromChain     string
	ToChain       string
	Amount        string // Decimal(38,18), sent as string
	NetAmount     string
	FillKind      string
	MatchedWith   string
	MatchedAmount string
}

// Rows flattens a batch result into audit rows
func Rows(batchID, root string, ts time.Time, swaps []domain.MatchedSwap) []SwapRow {
	rows := make([]SwapRow, 0, len(swaps))
	for i := range swaps {
		s := &swaps[i]
		row := SwapRow{
			BatchID:       batchID,
			BatchTime:     ts,
			MerkleRoot:    root,
			IntentID:      s.IntentID,
			UserAddress:   s.UserAddress,
			FromToken:     s.FromToken,
			ToToken:       s.ToToken,
			FromChain:     s.FromChain,
			ToChain:       s.ToChain,
			Amount:        s.Amount.String(),
			NetAmount:     s.NetAmount.String(),
			MatchedAmount: "0",
		}
		if s.Fill != nil {
			row.FillKind = string(s.Fill.Kind())
		}
		if m, ok := s.Fill.(domain.Matched); ok {
			row.MatchedWith = m.Counterparty
			row.MatchedAmount = m.Amount.String()
		}
		rows = append(rows, row)
	}
	return rows
}

// subset of driver.Conn the writer needs
type batchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
}

// Writer buffers rows and inserts them in batches by size or interval
type Writer struct {
	log  logger.Logger
	conn batchConn
	cfg  config.ClickHouseWriterConfig

	mu     sync.RWMutex
	closed bool
	inCh   chan SwapRow
	wg     sync.WaitGroup
}

func NewWriter(log logger.Logger, conn batchConn, cfg config.ClickHouseWriterConfig) (*Writer, error) {
	if conn == nil {
		return nil, errors.New("clickhouse conn is required to the writer")
	}

	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:  log,
		conn: conn,
		cfg:  cfg,
		inCh: make(chan SwapRow, 8192),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// EnsureSchema creates the audit table if missing
func (w *Writer) EnsureSchema(ctx context.Context) error {
	return w.conn.Exec(ctx, createMatchedSwaps)
}

func (w *Writer) Enqueue(ctx context.Context, rows ...SwapRow) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}

	for _, row := range rows {
		select {
		case w.inCh <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *Writer) Health(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

// Close stops accepting rows, flushes what is buffered and waits for the loop
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.inCh)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]SwapRow, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}

			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []SwapRow) error {
	backoff := w.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = w.send(ctx, rows); lastErr == nil {
			return nil
		}

		if attempt == w.cfg.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (w *Writer) send(ctx context.Context, rows []SwapRow) error {
	batch, err := w.conn.PrepareBatch(ctx, insertMatchedSwaps)
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		if err = batch.Append(
			r.BatchID,
			r.BatchTime,
			r.MerkleRoot,
			r.IntentID,
			r.UserAddress,
			r.FromToken,
			r.ToToken,
			r.FromChain,
			r.ToChain,
			r.Amount,
			r.NetAmount,
			r.FillKind,
			r.MatchedWith,
			r.MatchedAmount,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
