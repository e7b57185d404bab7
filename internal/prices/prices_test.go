package prices

import (
	"anchor/internal/domain"
	"anchor/internal/testutil"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{}

func (failingProvider) Fetch(context.Context) (*domain.PriceTable, error) {
	return nil, errors.New("feed down")
}

type slowProvider struct{}

func (slowProvider) Fetch(ctx context.Context) (*domain.PriceTable, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStaticProvider_Defaults(t *testing.T) {
	p, err := NewStaticProvider(nil)
	require.NoError(t, err)

	table, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", table.Source)

	eth, ok := table.Lookup("ETH")
	require.True(t, ok)
	assert.True(t, eth.Equal(decimal.NewFromInt(2000)))

	matic, ok := table.Lookup("MATIC")
	require.True(t, ok)
	assert.True(t, matic.Equal(decimal.RequireFromString("0.8")))
}

func TestStaticProvider_InvalidPrice(t *testing.T) {
	_, err := NewStaticProvider(map[string]string{"ETH": "lots"})
	assert.Error(t, err)
}

func TestFetchOrEmpty(t *testing.T) {
	log := testutil.NewLogger()

	table := FetchOrEmpty(context.Background(), log, failingProvider{}, time.Second)
	require.NotNil(t, table)
	assert.Equal(t, SourceNone, table.Source)
	assert.Empty(t, table.Prices)

	start := time.Now()
	table = FetchOrEmpty(context.Background(), log, slowProvider{}, 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, SourceNone, table.Source)

	table = FetchOrEmpty(context.Background(), log, nil, time.Second)
	assert.Empty(t, table.Prices)
}

func TestFallbackProvider(t *testing.T) {
	static, err := NewStaticProvider(map[string]string{"ETH": "2500"})
	require.NoError(t, err)

	f, err := NewFallbackProvider(testutil.NewLogger(), failingProvider{}, static)
	require.NoError(t, err)

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)
	p, ok := table.Lookup("ETH")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(2500)))

	primary, err := NewStaticProvider(map[string]string{"ETH": "3000"})
	require.NoError(t, err)
	f, err = NewFallbackProvider(testutil.NewLogger(), primary, static)
	require.NoError(t, err)

	table, err = f.Fetch(context.Background())
	require.NoError(t, err)
	p, _ = table.Lookup("ETH")
	assert.True(t, p.Equal(decimal.NewFromInt(3000)))

	_, err = NewFallbackProvider(testutil.NewLogger(), nil, static)
	assert.Error(t, err)
}

func TestPriceOr1(t *testing.T) {
	log := testutil.NewLogger()
	table := &domain.PriceTable{Prices: map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)}}

	assert.True(t, PriceOr1(log, table, "ETH").Equal(decimal.NewFromInt(2000)))
	assert.True(t, PriceOr1(log, table, "DOGE").Equal(decimal.NewFromInt(1)))
	assert.True(t, PriceOr1(log, nil, "ETH").Equal(decimal.NewFromInt(1)))
}

func TestHermesProvider_Fetch(t *testing.T) {
	var gotIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query()["ids[]"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"binary": {"encoding": "hex", "data": []},
			"parsed": [
				{"id": "ff61", "price": {"price": "200012345678", "conf": "1", "expo": -8, "publish_time": 1}},
				{"id": "AA00", "price": {"price": "99990000", "conf": "1", "expo": -8, "publish_time": 1}},
				{"id": "dead", "price": {"price": "1", "conf": "1", "expo": 0, "publish_time": 1}}
			]
		}`))
	}))
	defer srv.Close()

	p, err := NewHermesProvider(srv.URL, map[string]string{"ETH": "0xff61", "USDC": "0xaa00"}, srv.Client())
	require.NoError(t, err)

	table, err := p.Fetch(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"0xff61", "0xaa00"}, gotIDs)
	assert.Equal(t, "pyth", table.Source)
	assert.Len(t, table.Prices, 2)
	assert.True(t, table.Prices["ETH"].Equal(decimal.RequireFromString("2000.12345678")))
	assert.True(t, table.Prices["USDC"].Equal(decimal.RequireFromString("0.9999")))
}

func TestHermesProvider_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "http_error", status: http.StatusServiceUnavailable, payload: "down"},
		{name: "bad_json", status: http.StatusOK, payload: "{"},
		{name: "no_prices", status: http.StatusOK, payload: `{"parsed": []}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.payload))
			}))
			defer srv.Close()

			p, err := NewHermesProvider(srv.URL, map[string]string{"ETH": "0xff61"}, srv.Client())
			require.NoError(t, err)

			_, err = p.Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestHash(t *testing.T) {
	a := &domain.PriceTable{Prices: map[string]decimal.Decimal{
		"ETH":  decimal.NewFromInt(2000),
		"USDC": decimal.NewFromInt(1),
	}}
	b := &domain.PriceTable{Source: "other", Prices: map[string]decimal.Decimal{
		"USDC": decimal.NewFromInt(1),
		"ETH":  decimal.RequireFromString("2000"),
	}}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Prices["ETH"] = decimal.NewFromInt(2001)
	hc, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)

	empty, err := Hash(nil)
	require.NoError(t, err)
	assert.NotEqual(t, ha, empty)
}
