package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusMatched Status = "matched"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusMatched, StatusSettled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether an intent may move from -> to.
// Forward only: pending -> matched -> settled, failed from any non-failed state.
// matched -> pending exists only to revert a batch that did not commit.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}

	switch to {
	case StatusMatched:
		return from == StatusPending
	case StatusSettled:
		return from == StatusMatched
	case StatusPending:
		return from == StatusMatched
	case StatusFailed:
		return from != StatusFailed
	}
	return false
}

// User request to convert Amount of FromToken on FromChain into ToToken on ToChain
type SwapIntent struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"userAddress"`
	FromToken   string          `json:"fromToken"`
	ToToken     string          `json:"toToken"`
	FromChain   string          `json:"fromChain"`
	ToChain     string          `json:"toChain"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      Status          `json:"status"`
	BatchID     string          `json:"batchId,omitempty"` // set once included in a batch
	SettledAt   *time.Time      `json:"settledAt,omitempty"`
}

// Normalize trims fields and fills the recipient from the user address when omitted
func (i *SwapIntent) Normalize() {
	i.UserAddress = strings.TrimSpace(i.UserAddress)
	i.FromToken = strings.TrimSpace(i.FromToken)
	i.ToToken = strings.TrimSpace(i.ToToken)
	i.FromChain = strings.TrimSpace(i.FromChain)
	i.ToChain = strings.TrimSpace(i.ToChain)
	i.Recipient = strings.TrimSpace(i.Recipient)
	if i.Recipient == "" {
		i.Recipient = i.UserAddress
	}
}

func (i *SwapIntent) Validate() error {
	missing := make([]string, 0, 5)
	if i.UserAddress == "" {
		missing = append(missing, "userAddress")
	}
	if i.FromToken == "" {
		missing = append(missing, "fromToken")
	}
	if i.ToToken == "" {
		missing = append(missing, "toToken")
	}
	if i.FromChain == "" {
		missing = append(missing, "fromChain")
	}
	if i.ToChain == "" {
		missing = append(missing, "toChain")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidIntent, strings.Join(missing, ", "))
	}

	if !i.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidIntent, i.Amount.String())
	}

	if i.FromToken == i.ToToken && i.FromChain == i.ToChain {
		return fmt.Errorf("%w: source and destination are identical", ErrInvalidIntent)
	}

	return nil
}

// ParseAmount parses a decimal string amount as submitted by clients
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: missing amount", ErrInvalidIntent)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a decimal", ErrInvalidIntent, s)
	}
	return d, nil
}

type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Matched int `json:"matched"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

func (q *QueueStats) Count(s Status) {
	q.Total++
	switch s {
	case StatusPending:
		q.Pending++
	case StatusMatched:
		q.Matched++
	case StatusSettled:
		q.Settled++
	case StatusFailed:
		q.Failed++
	}
}
