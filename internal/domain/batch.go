package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token -> USD price snapshot for one batch cycle
type PriceTable struct {
	Source    string                     `json:"source"` // hermes|static|none
	Timestamp time.Time                  `json:"timestamp"`
	Prices    map[string]decimal.Decimal `json:"prices"`
}

func (p *PriceTable) Lookup(token string) (decimal.Decimal, bool) {
	if p == nil || p.Prices == nil {
		return decimal.Zero, false
	}
	v, ok := p.Prices[token]
	if !ok || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}

// Inclusion proof of one leaf; hashes are 0x-hex
type MerkleProof struct {
	Leaf    string   `json:"leaf"`
	Path    []string `json:"path"`
	Indices []int    `json:"indices"` // per path level: 0 node is the left child, 1 right
}

type FlowDirection string

const (
	Inflow  FlowDirection = "inflow"
	Outflow FlowDirection = "outflow"
)

type TokenFlow struct {
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Direction FlowDirection   `json:"direction"`
}

type ChainSummary struct {
	ChainID    string          `json:"chainId"`
	NetInflow  decimal.Decimal `json:"netInflow"`
	NetOutflow decimal.Decimal `json:"netOutflow"`
	Tokens     []TokenFlow     `json:"tokens"`
}

// Pool liquidity needed on Chain in Token units to fill the residuals
type PoolDemand struct {
	Chain    string          `json:"chain"`
	Token    string          `json:"token"`
	Amount   decimal.Decimal `json:"amount"`
	ValueUSD decimal.Decimal `json:"valueUsd"`
}

type BatchSummary struct {
	BatchID          string          `json:"batchId"`
	Timestamp        time.Time       `json:"timestamp"`
	MerkleRoot       string          `json:"merkleRoot"`
	TotalIntents     int             `json:"totalIntents"`
	TotalSwaps       int             `json:"totalSwaps"`
	P2PMatched       int             `json:"p2pMatched"`
	PoolFilled       int             `json:"poolFilled"`
	NettedAmount     decimal.Decimal `json:"nettedAmount"`
	PoolFilledAmount decimal.Decimal `json:"poolFilledAmount"`
	NettingRatio     decimal.Decimal `json:"nettingRatio"` // percent of requested volume netted p2p
	NettedValueUSD   decimal.Decimal `json:"nettedValueUsd"`
	PriceData        PriceTable      `json:"priceData"`
	ChainSummaries   []ChainSummary  `json:"chainSummaries"`
	PoolDemand       []PoolDemand    `json:"poolDemand"`
}

type BatchResult struct {
	BatchID      string                   `json:"batchId"`
	Summary      BatchSummary             `json:"summary"`
	MerkleProofs map[string][]MerkleProof `json:"merkleProofs"` // intentId -> proofs of its records
	RawData      string                   `json:"rawData"`      // full snapshot for audit/dispute

	// Swaps are the netting records of a freshly processed batch, not persisted
	Swaps []MatchedSwap `json:"-"`
}

// Audit snapshot serialized into BatchResult.RawData
type BatchRawData struct {
	BatchID      string        `json:"batchId"`
	Intents      []SwapIntent  `json:"intents"`
	MatchedSwaps []MatchedSwap `json:"matchedSwaps"`
	PriceData    PriceTable    `json:"priceData"`
	Timestamp    time.Time     `json:"timestamp"`
}
