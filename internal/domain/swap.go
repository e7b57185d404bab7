package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type FillKind string

const (
	FillMatched FillKind = "matched"
	FillPool    FillKind = "pool"
)

// Fill says how a MatchedSwap record is settled. Exactly one of Matched | PoolFilled
type Fill interface {
	Kind() FillKind
	Filled() decimal.Decimal
}

// Peer-to-peer portion settled against Counterparty
type Matched struct {
	Counterparty string
	Amount       decimal.Decimal
}

func (Matched) Kind() FillKind { return FillMatched }

func (m Matched) Filled() decimal.Decimal { return m.Amount }

// Portion drawn from the shared liquidity pool
type PoolFilled struct {
	Amount decimal.Decimal
}

func (PoolFilled) Kind() FillKind { return FillPool }

func (p PoolFilled) Filled() decimal.Decimal { return p.Amount }

// Netting output for one (intent, counter-intent, amount) pairing or one residual
type MatchedSwap struct {
	IntentID    string
	UserAddress string
	FromToken   string
	ToToken     string
	FromChain   string
	ToChain     string
	Amount      decimal.Decimal // original requested amount
	Recipient   string
	NetAmount   decimal.Decimal // portion requiring pool liquidity
	Fill        Fill
}

// MatchedWith returns the counter-intent id, "" if pool-filled
func (s *MatchedSwap) MatchedWith() string {
	if m, ok := s.Fill.(Matched); ok {
		return m.Counterparty
	}
	return ""
}

func (s *MatchedSwap) IsP2P() bool {
	_, ok := s.Fill.(Matched)
	return ok
}

type fillJSON struct {
	Kind         FillKind        `json:"kind"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

type matchedSwapJSON struct {
	IntentID    string          `json:"intentId"`
	UserAddress string          `json:"userAddress"`
	FromToken   string          `json:"fromToken"`
	ToToken     string          `json:"toToken"`
	FromChain   string          `json:"fromChain"`
	ToChain     string          `json:"toChain"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	MatchedWith string          `json:"matchedWith,omitempty"`
	Fill        *fillJSON       `json:"fill"`
}

func (s MatchedSwap) MarshalJSON() ([]byte, error) {
	out := matchedSwapJSON{
		IntentID:    s.IntentID,
		UserAddress: s.UserAddress,
		FromToken:   s.FromToken,
		ToToken:     s.ToToken,
		FromChain:   s.FromChain,
		ToChain:     s.ToChain,
		Amount:      s.Amount,
		Recipient:   s.Recipient,
		NetAmount:   s.NetAmount,
		MatchedWith: s.MatchedWith(),
	}

	switch f := s.Fill.(type) {
	case Matched:
		out.Fill = &fillJSON{Kind: FillMatched, Counterparty: f.Counterparty, Amount: f.Amount}
	case PoolFilled:
		out.Fill = &fillJSON{Kind: FillPool, Amount: f.Amount}
	case nil:
	default:
		return nil, fmt.Errorf("unknown fill type %T", f)
	}

	return json.Marshal(out)
}

func (s *MatchedSwap) UnmarshalJSON(b []byte) error {
	var in matchedSwapJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*s = MatchedSwap{
		IntentID:    in.IntentID,
		UserAddress: in.UserAddress,
		FromToken:   in.FromToken,
		ToToken:     in.ToToken,
		FromChain:   in.FromChain,
		ToChain:     in.ToChain,
		Amount:      in.Amount,
		Recipient:   in.Recipient,
		NetAmount:   in.NetAmount,
	}

	if in.Fill == nil {
		return nil
	}

	switch in.Fill.Kind {
	case FillMatched:
		s.Fill = Matched{Counterparty: in.Fill.Counterparty, Amount: in.Fill.Amount}
	case FillPool:
		s.Fill = PoolFilled{Amount: in.Fill.Amount}
	default:
		return fmt.Errorf("unknown fill kind %q", in.Fill.Kind)
	}
	return nil
}
