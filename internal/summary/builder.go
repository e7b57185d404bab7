package summary

import (
	"anchor/internal/domain"
	"anchor/internal/prices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

var hundred = decimal.NewFromInt(100)

type Input struct {
	BatchID    string
	MerkleRoot string
	Swaps      []domain.MatchedSwap
	PoolDemand []domain.PoolDemand
	Prices     *domain.PriceTable
	Timestamp  time.Time
}

// Build aggregates the netting output of one batch.
// Counts are per record, volumes per intent so partial fills are not double counted.
func Build(log logger.Logger, in Input) domain.BatchSummary {
	s := domain.BatchSummary{
		BatchID:          in.BatchID,
		Timestamp:        in.Timestamp,
		MerkleRoot:       in.MerkleRoot,
		TotalSwaps:       len(in.Swaps),
		NettedAmount:     decimal.Zero,
		PoolFilledAmount: decimal.Zero,
		NettingRatio:     decimal.Zero,
		NettedValueUSD:   decimal.Zero,
		ChainSummaries:   []domain.ChainSummary{},
		PoolDemand:       in.PoolDemand,
	}
	if in.Prices != nil {
		s.PriceData = *in.Prices
	}
	if s.PoolDemand == nil {
		s.PoolDemand = []domain.PoolDemand{}
	}

	type perIntent struct {
		swap *domain.MatchedSwap
		net  decimal.Decimal
	}
	order := make([]string, 0, len(in.Swaps))
	intents := make(map[string]*perIntent, len(in.Swaps))

	for i := range in.Swaps {
		sw := &in.Swaps[i]
		switch sw.Fill.(type) {
		case domain.Matched:
			s.P2PMatched++
		case domain.PoolFilled:
			s.PoolFilled++
		}
		s.PoolFilledAmount = s.PoolFilledAmount.Add(sw.NetAmount)

		pi, ok := intents[sw.IntentID]
		if !ok {
			pi = &perIntent{swap: sw, net: decimal.Zero}
			intents[sw.IntentID] = pi
			order = append(order, sw.IntentID)
		}
		pi.net = pi.net.Add(sw.NetAmount)
	}
	s.TotalIntents = len(order)

	requested := decimal.Zero
	flows := newFlowAcc()
	for _, id := range order {
		pi := intents[id]
		sw := pi.swap

		fromPrice := prices.PriceOr1(log, in.Prices, sw.FromToken)
		toPrice := prices.PriceOr1(log, in.Prices, sw.ToToken)

		netted := sw.Amount.Sub(pi.net)
		requested = requested.Add(sw.Amount)
		s.NettedAmount = s.NettedAmount.Add(netted)
		s.NettedValueUSD = s.NettedValueUSD.Add(netted.Mul(fromPrice))

		// the protocol receives fromToken on the source chain and pays toToken on the destination
		usd := sw.Amount.Mul(fromPrice)
		flows.add(sw.FromChain, sw.FromToken, sw.Amount, usd)
		flows.add(sw.ToChain, sw.ToToken, usd.Div(toPrice).Neg(), usd.Neg())
	}

	if requested.IsPositive() {
		s.NettingRatio = s.NettedAmount.Div(requested).Mul(hundred).Round(2)
	}
	s.ChainSummaries = flows.summaries()
	return s
}

type flowKey struct {
	chain string
	token string
}

type flow struct {
	amount decimal.Decimal
	usd    decimal.Decimal
}

type flowAcc struct {
	byKey map[flowKey]*flow
}

func newFlowAcc() *flowAcc {
	return &flowAcc{byKey: make(map[flowKey]*flow)}
}

// amounts are signed: positive inflow, negative outflow
func (f *flowAcc) add(chain, token string, amount, usd decimal.Decimal) {
	k := flowKey{chain: chain, token: token}
	fl, ok := f.byKey[k]
	if !ok {
		fl = &flow{amount: decimal.Zero, usd: decimal.Zero}
		f.byKey[k] = fl
	}
	fl.amount = fl.amount.Add(amount)
	fl.usd = fl.usd.Add(usd)
}

func (f *flowAcc) summaries() []domain.ChainSummary {
	byChain := make(map[string]*domain.ChainSummary)
	for k, fl := range f.byKey {
		cs, ok := byChain[k.chain]
		if !ok {
			cs = &domain.ChainSummary{ChainID: k.chain, NetInflow: decimal.Zero, NetOutflow: decimal.Zero, Tokens: []domain.TokenFlow{}}
			byChain[k.chain] = cs
		}
		if fl.amount.IsZero() {
			continue
		}

		tf := domain.TokenFlow{Token: k.token, Amount: fl.amount.Abs(), Direction: domain.Inflow}
		if fl.amount.IsNegative() {
			tf.Direction = domain.Outflow
			cs.NetOutflow = cs.NetOutflow.Add(fl.usd.Abs())
		} else {
			cs.NetInflow = cs.NetInflow.Add(fl.usd)
		}
		cs.Tokens = append(cs.Tokens, tf)
	}

	out := make([]domain.ChainSummary, 0, len(byChain))
	for _, cs := range byChain {
		sort.Slice(cs.Tokens, func(i, j int) bool {
			if cs.Tokens[i].Direction != cs.Tokens[j].Direction {
				return cs.Tokens[i].Direction < cs.Tokens[j].Direction
			}
			return cs.Tokens[i].Token < cs.Tokens[j].Token
		})
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
