package prices

import (
	"anchor/internal/domain"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

const SourceNone = "none"

// Provider is the external price feed, refreshed once per batch cycle
type Provider interface {
	Fetch(ctx context.Context) (*domain.PriceTable, error)
}

// FallbackProvider serves the secondary table whenever the primary feed fails
type FallbackProvider struct {
	log       logger.Logger
	primary   Provider
	secondary Provider
}

var _ Provider = (*FallbackProvider)(nil)

func NewFallbackProvider(log logger.Logger, primary, secondary Provider) (*FallbackProvider, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("primary and secondary providers are required to the fallback provider")
	}
	return &FallbackProvider{log: log, primary: primary, secondary: secondary}, nil
}

func (f *FallbackProvider) Fetch(ctx context.Context) (*domain.PriceTable, error) {
	table, err := f.primary.Fetch(ctx)
	if err == nil && table != nil {
		return table, nil
	}
	f.log.Warnf("Primary price feed failed, using fallback prices, error=%v", err)
	return f.secondary.Fetch(ctx)
}

// FetchOrEmpty bounds the provider call by timeout; any failure degrades to an empty table
func FetchOrEmpty(ctx context.Context, log logger.Logger, p Provider, timeout time.Duration) *domain.PriceTable {
	if p == nil {
		return emptyTable()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	table, err := p.Fetch(fetchCtx)
	if err != nil || table == nil {
		log.Warnf("%v: price fetch failed, defaults apply to every token, error=%v", domain.ErrPriceUnavailable, err)
		return emptyTable()
	}
	return table
}

// PriceOr1 returns the USD price of token, 1 with a warning when the table has no entry
func PriceOr1(log logger.Logger, table *domain.PriceTable, token string) decimal.Decimal {
	if p, ok := table.Lookup(token); ok {
		return p
	}
	log.Warnf("%v: no price for %s, using 1", domain.ErrPriceUnavailable, token)
	return decimal.NewFromInt(1)
}

func emptyTable() *domain.PriceTable {
	return &domain.PriceTable{
		Source:    SourceNone,
		Timestamp: time.Now().UTC(),
		Prices:    map[string]decimal.Decimal{},
	}
}

// Fixed prices for dev, or behind a live feed when prices.fallback_static is set
type StaticProvider struct {
	prices map[string]decimal.Decimal
}

// DefaultStaticPrices are the development prices of the reference deployment
func DefaultStaticPrices() map[string]string {
	return map[string]string{
		"USDC":  "1",
		"USDT":  "1",
		"ETH":   "2000",
		"MATIC": "0.8",
		"BTC":   "45000",
	}
}

func NewStaticProvider(raw map[string]string) (*StaticProvider, error) {
	if len(raw) == 0 {
		raw = DefaultStaticPrices()
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for token, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid static price for %s: %w", token, err)
		}
		out[token] = d
	}
	return &StaticProvider{prices: out}, nil
}

func (s *StaticProvider) Fetch(_ context.Context) (*domain.PriceTable, error) {
	cp := make(map[string]decimal.Decimal, len(s.prices))
	for k, v := range s.prices {
		cp[k] = v
	}
	return &domain.PriceTable{
		Source:    "static",
		Timestamp: time.Now().UTC(),
		Prices:    cp,
	}, nil
}
