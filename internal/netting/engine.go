package netting

import (
	"anchor/internal/domain"
	"anchor/internal/prices"
	"sort"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

// DefaultDustEpsilon is the residual at or below which an intent counts as fully matched
var DefaultDustEpsilon = decimal.RequireFromString("0.01")

// Netter turns one batch snapshot into matched swap records
type Netter interface {
	Net(intents []domain.SwapIntent, table *domain.PriceTable) (*Result, error)
}

type Result struct {
	Swaps      []domain.MatchedSwap
	PoolDemand []domain.PoolDemand
}

// Engine is the greedy pairwise netting policy: opposite orders of the same
// token/chain pair are matched largest first. It is a heuristic, not a min-cost-flow solver.
type Engine struct {
	log  logger.Logger
	dust decimal.Decimal
}

var _ Netter = (*Engine)(nil)

// NewEngine builds an engine; a negative epsilon falls back to DefaultDustEpsilon, zero disables dust absorption
func NewEngine(log logger.Logger, dustEpsilon decimal.Decimal) *Engine {
	if dustEpsilon.IsNegative() {
		dustEpsilon = DefaultDustEpsilon
	}
	return &Engine{log: log, dust: dustEpsilon}
}

type leg struct {
	token string
	chain string
}

func (l leg) less(o leg) bool {
	if l.token != o.token {
		return l.token < o.token
	}
	return l.chain < o.chain
}

// unordered leg pair; both directions of a market share it
type groupKey struct {
	lo leg
	hi leg
}

type order struct {
	idx       int // submission position in the snapshot
	remaining decimal.Decimal
}

type group struct {
	key   groupKey
	buys  []*order // lo -> hi
	sells []*order // hi -> lo
}

type pairing struct {
	counterparty string
	amount       decimal.Decimal
}

// Net never fails on validated input; the error return exists for the Netter contract
func (e *Engine) Net(intents []domain.SwapIntent, table *domain.PriceTable) (*Result, error) {
	res := &Result{Swaps: []domain.MatchedSwap{}, PoolDemand: []domain.PoolDemand{}}
	if len(intents) == 0 {
		return res, nil
	}

	groups := e.group(intents)
	fills := make([][]pairing, len(intents))
	remaining := make([]decimal.Decimal, len(intents))
	for i := range intents {
		remaining[i] = intents[i].Amount
	}

	for _, g := range groups {
		if len(g.buys) == 0 || len(g.sells) == 0 {
			continue
		}
		sortOrders(g.buys)
		sortOrders(g.sells)

		matched := e.matchGroup(intents, g, fills)
		for _, o := range g.buys {
			remaining[o.idx] = o.remaining
		}
		for _, o := range g.sells {
			remaining[o.idx] = o.remaining
		}

		e.log.Debugf("netting group %s@%s<->%s@%s: buys=%d sells=%d matched=%s",
			g.key.lo.token, g.key.lo.chain, g.key.hi.token, g.key.hi.chain,
			len(g.buys), len(g.sells), matched.String())
	}

	demand := newDemandAcc()
	for i := range intents {
		in := &intents[i]

		for _, p := range fills[i] {
			res.Swaps = append(res.Swaps, newSwap(in, decimal.Zero, domain.Matched{Counterparty: p.counterparty, Amount: p.amount}))
		}

		rest := remaining[i]
		if len(fills[i]) > 0 && rest.LessThanOrEqual(e.dust) {
			continue
		}
		if !rest.IsPositive() {
			continue
		}

		res.Swaps = append(res.Swaps, newSwap(in, rest, domain.PoolFilled{Amount: rest}))
		demand.add(e.log, table, in, rest)
	}

	res.PoolDemand = demand.list()
	return res, nil
}

func (e *Engine) group(intents []domain.SwapIntent) []*group {
	byKey := make(map[groupKey]*group)
	ordered := make([]*group, 0)

	for i := range intents {
		from := leg{token: intents[i].FromToken, chain: intents[i].FromChain}
		to := leg{token: intents[i].ToToken, chain: intents[i].ToChain}

		key := groupKey{lo: from, hi: to}
		forward := true
		if to.less(from) {
			key = groupKey{lo: to, hi: from}
			forward = false
		}

		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			ordered = append(ordered, g)
		}

		o := &order{idx: i, remaining: intents[i].Amount}
		if forward {
			g.buys = append(g.buys, o)
		} else {
			g.sells = append(g.sells, o)
		}
	}
	return ordered
}

// matchGroup walks buys largest first; each buy consumes sells in order until it is
// filled or the sells run dry. Sells keep their leftover capacity for later buys.
func (e *Engine) matchGroup(intents []domain.SwapIntent, g *group, fills [][]pairing) decimal.Decimal {
	total := decimal.Zero
	cursor := 0

	for _, buy := range g.buys {
		for buy.remaining.IsPositive() && cursor < len(g.sells) {
			sell := g.sells[cursor]
			if !sell.remaining.IsPositive() {
				cursor++
				continue
			}

			amt := decimal.Min(buy.remaining, sell.remaining)
			buy.remaining = buy.remaining.Sub(amt)
			sell.remaining = sell.remaining.Sub(amt)
			total = total.Add(amt)

			fills[buy.idx] = append(fills[buy.idx], pairing{counterparty: intents[sell.idx].ID, amount: amt})
			fills[sell.idx] = append(fills[sell.idx], pairing{counterparty: intents[buy.idx].ID, amount: amt})

			if !sell.remaining.IsPositive() {
				cursor++
			}
		}
	}
	return total
}

// amount desc, submission order on ties
func sortOrders(orders []*order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if c := orders[i].remaining.Cmp(orders[j].remaining); c != 0 {
			return c > 0
		}
		return orders[i].idx < orders[j].idx
	})
}

func newSwap(in *domain.SwapIntent, net decimal.Decimal, fill domain.Fill) domain.MatchedSwap {
	return domain.MatchedSwap{
		IntentID:    in.ID,
		UserAddress: in.UserAddress,
		FromToken:   in.FromToken,
		ToToken:     in.ToToken,
		FromChain:   in.FromChain,
		ToChain:     in.ToChain,
		Amount:      in.Amount,
		Recipient:   in.Recipient,
		NetAmount:   net,
		Fill:        fill,
	}
}

type demandKey struct {
	chain string
	token string
}

type demandAcc struct {
	byKey map[demandKey]*domain.PoolDemand
}

func newDemandAcc() *demandAcc {
	return &demandAcc{byKey: make(map[demandKey]*domain.PoolDemand)}
}

// add books the pool liquidity a residual needs on the destination leg
func (d *demandAcc) add(log logger.Logger, table *domain.PriceTable, in *domain.SwapIntent, residual decimal.Decimal) {
	fromPrice := prices.PriceOr1(log, table, in.FromToken)
	toPrice := prices.PriceOr1(log, table, in.ToToken)

	valueUSD := residual.Mul(fromPrice)
	out := valueUSD.Div(toPrice)

	k := demandKey{chain: in.ToChain, token: in.ToToken}
	pd, ok := d.byKey[k]
	if !ok {
		pd = &domain.PoolDemand{Chain: in.ToChain, Token: in.ToToken, Amount: decimal.Zero, ValueUSD: decimal.Zero}
		d.byKey[k] = pd
	}
	pd.Amount = pd.Amount.Add(out)
	pd.ValueUSD = pd.ValueUSD.Add(valueUSD)
}

func (d *demandAcc) list() []domain.PoolDemand {
	out := make([]domain.PoolDemand, 0, len(d.byKey))
	for _, pd := range d.byKey {
		out = append(out, *pd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Token < out[j].Token
	})
	return out
}
