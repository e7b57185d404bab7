package settlement

import (
	"anchor/internal/domain"
	"anchor/internal/prices"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const settlementABI = `[
	{"type":"function","name":"settleBatch","stateMutability":"nonpayable","inputs":[
		{"name":"batchId","type":"bytes32"},
		{"name":"merkleRoot","type":"bytes32"},
		{"name":"timestamp","type":"uint256"},
		{"name":"totalIntents","type":"uint256"},
		{"name":"priceDataHash","type":"bytes32"}
	],"outputs":[]}
]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		panic(fmt.Sprintf("settlement abi: %v", err))
	}
}

// Payload is what the settlement contract needs to anchor one batch on-chain
type Payload struct {
	BatchID       string      `json:"batchId"`
	BatchIDHash   common.Hash `json:"batchIdHash"`
	MerkleRoot    common.Hash `json:"merkleRoot"`
	Timestamp     int64       `json:"timestamp"` // unix seconds
	TotalIntents  int         `json:"totalIntents"`
	PriceDataHash common.Hash `json:"priceDataHash"`
	CallData      string      `json:"callData"` // 0x-hex settleBatch input
}

// BatchIDHash is keccak256 of the utf-8 batch id, the contract's batch key
func BatchIDHash(batchID string) common.Hash {
	return crypto.Keccak256Hash([]byte(batchID))
}

func NewPayload(s *domain.BatchSummary) (*Payload, error) {
	if s == nil {
		return nil, errors.New("summary is required to the settlement payload")
	}

	root, err := hexutil.Decode(s.MerkleRoot)
	if err != nil || len(root) != common.HashLength {
		return nil, fmt.Errorf("invalid merkle root %q", s.MerkleRoot)
	}

	priceHash, err := prices.Hash(&s.PriceData)
	if err != nil {
		return nil, err
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	p := &Payload{
		BatchID:       s.BatchID,
		BatchIDHash:   BatchIDHash(s.BatchID),
		MerkleRoot:    common.BytesToHash(root),
		Timestamp:     ts.Unix(),
		TotalIntents:  s.TotalIntents,
		PriceDataHash: priceHash,
	}

	data, err := p.Pack()
	if err != nil {
		return nil, err
	}
	p.CallData = hexutil.Encode(data)

	return p, nil
}

// Pack ABI-encodes the settleBatch call, selector included
func (p *Payload) Pack() ([]byte, error) {
	data, err := parsedABI.Pack("settleBatch",
		[32]byte(p.BatchIDHash),
		[32]byte(p.MerkleRoot),
		big.NewInt(p.Timestamp),
		big.NewInt(int64(p.TotalIntents)),
		[32]byte(p.PriceDataHash),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack settleBatch: %w", err)
	}
	return data, nil
}
