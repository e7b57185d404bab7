package prices

import (
	"anchor/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultHermesURL = "https://hermes.pyth.network/v2/updates/price/latest"

// DefaultFeedIDs maps tokens to Pyth price feed ids
func DefaultFeedIDs() map[string]string {
	return map[string]string{
		"USDC":  "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
		"USDT":  "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
		"ETH":   "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
		"MATIC": "0x5de33a9112c2b700b8d30b8a3402c103578ccfa2765696471cc672bd5cf6ac52",
		"BTC":   "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	}
}

// Pyth Hermes latest-price client
type HermesProvider struct {
	endpoint string
	feeds    map[string]string // normalized feed id -> token
	client   *http.Client
}

func NewHermesProvider(endpoint string, feedIDs map[string]string, client *http.Client) (*HermesProvider, error) {
	if endpoint == "" {
		endpoint = DefaultHermesURL
	}
	if len(feedIDs) == 0 {
		feedIDs = DefaultFeedIDs()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid hermes url: %w", err)
	}

	feeds := make(map[string]string, len(feedIDs))
	for token, id := range feedIDs {
		feeds[normalizeFeedID(id)] = token
	}

	return &HermesProvider{endpoint: endpoint, feeds: feeds, client: client}, nil
}

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price string `json:"price"`
			Expo  int32  `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

func (h *HermesProvider) Fetch(ctx context.Context) (*domain.PriceTable, error) {
	q := url.Values{}
	for id := range h.feeds {
		q.Add("ids[]", "0x"+id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build hermes request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hermes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hermes returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload hermesResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode hermes response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(payload.Parsed))
	for _, p := range payload.Parsed {
		token, ok := h.feeds[normalizeFeedID(p.ID)]
		if !ok {
			continue
		}

		raw, err := decimal.NewFromString(p.Price.Price)
		if err != nil {
			continue
		}
		// price * 10^expo
		out[token] = raw.Shift(p.Price.Expo)
	}

	if len(out) == 0 {
		return nil, errors.New("hermes returned no usable prices")
	}

	return &domain.PriceTable{
		Source:    "pyth",
		Timestamp: time.Now().UTC(),
		Prices:    out,
	}, nil
}

func normalizeFeedID(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
}
