package batch

import (
	"anchor/internal/batchstore"
	"anchor/internal/domain"
	"anchor/internal/intents"
	"anchor/internal/merkle"
	"anchor/internal/netting"
	"anchor/internal/prices"
	"anchor/internal/summary"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateNetting
	StateCommitting
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateNetting:
		return "netting"
	case StateCommitting:
		return "committing"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

type Deps struct {
	Store        intents.Store
	Netter       netting.Netter
	Prices       prices.Provider // optional, nil means every token prices at 1
	Repo         batchstore.Repository
	Locker       Locker // optional, LocalLocker by default
	PriceTimeout time.Duration
}

// Orchestrator runs one batch cycle at a time:
// Idle -> Collecting -> Netting -> Committing -> Finalizing -> Idle.
// From Netting on the cycle is all-or-nothing for the intent store.
type Orchestrator struct {
	log          logger.Logger
	store        intents.Store
	netter       netting.Netter
	prices       prices.Provider
	repo         batchstore.Repository
	locker       Locker
	priceTimeout time.Duration
	now          func() time.Time

	state atomic.Int32
}

func NewOrchestrator(log logger.Logger, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("intent store is required to the orchestrator")
	}
	if deps.Netter == nil {
		return nil, errors.New("netter is required to the orchestrator")
	}
	if deps.Repo == nil {
		return nil, errors.New("batch repository is required to the orchestrator")
	}

	// sane defaults
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	timeout := deps.PriceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Orchestrator{
		log:          log,
		store:        deps.Store,
		netter:       deps.Netter,
		prices:       deps.Prices,
		repo:         deps.Repo,
		locker:       locker,
		priceTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// ProcessBatch runs one cycle. ErrNoPendingIntents and ErrBatchInProgress mean nothing was done;
// ErrNettingFailure means the cycle failed and its intents are pending again.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (*domain.BatchResult, error) {
	unlock, err := o.locker.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	defer o.setState(StateIdle)

	o.setState(StateCollecting)
	snapshot, err := o.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect pending intents: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, domain.ErrNoPendingIntents
	}

	batchID := domain.NewBatchID()
	touched := make([]string, 0, len(snapshot))

	res, err := o.run(ctx, batchID, snapshot, &touched)
	if err != nil {
		o.revert(ctx, batchID, touched)
		return nil, fmt.Errorf("%w: batch %s: %w", domain.ErrNettingFailure, batchID, err)
	}

	o.log.Infof("Batch %s processed: intents=%d swaps=%d p2p=%d pool=%d netted=%s root=%s",
		batchID, res.Summary.TotalIntents, res.Summary.TotalSwaps, res.Summary.P2PMatched,
		res.Summary.PoolFilled, res.Summary.NettedAmount.String(), res.Summary.MerkleRoot)

	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, batchID string, snapshot []domain.SwapIntent, touched *[]string) (res *domain.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s step: %v", o.State(), r)
		}
	}()

	o.setState(StateNetting)
	table := prices.FetchOrEmpty(ctx, o.log, o.prices, o.priceTimeout)

	for i := range snapshot {
		id := snapshot[i].ID
		if err = o.store.SetStatus(ctx, id, domain.StatusMatched, batchID); err != nil {
			return nil, fmt.Errorf("mark %s matched: %w", id, err)
		}
		*touched = append(*touched, id)
		snapshot[i].Status = domain.StatusMatched
		snapshot[i].BatchID = batchID
	}

	netted, err := o.netter.Net(snapshot, table)
	if err != nil {
		return nil, fmt.Errorf("netting: %w", err)
	}

	o.setState(StateCommitting)
	commitment, err := merkle.Commit(netted.Swaps)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	now := o.now()
	sum := summary.Build(o.log, summary.Input{
		BatchID:    batchID,
		MerkleRoot: commitment.Root.Hex(),
		Swaps:      netted.Swaps,
		PoolDemand: netted.PoolDemand,
		Prices:     table,
		Timestamp:  now,
	})

	o.setState(StateFinalizing)
	raw, err := json.Marshal(domain.BatchRawData{
		BatchID:      batchID,
		Intents:      snapshot,
		MatchedSwaps: netted.Swaps,
		PriceData:    *table,
		Timestamp:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode raw data: %w", err)
	}

	res = &domain.BatchResult{
		BatchID:      batchID,
		Summary:      sum,
		MerkleProofs: commitment.Proofs,
		RawData:      string(raw),
		Swaps:        netted.Swaps,
	}

	if err = o.repo.Save(ctx, res); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}
	return res, nil
}

// revert puts every touched intent back to pending; it must run even if ctx is done
func (o *Orchestrator) revert(ctx context.Context, batchID string, touched []string) {
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for _, id := range touched {
		if err := o.store.SetStatus(ctx, id, domain.StatusPending, ""); err != nil {
			failed++
			o.log.Errorf("Failed to revert intent %s of batch %s, error=%v", id, batchID, err)
		}
	}
	o.log.Warnf("Batch %s reverted: %d intents back to pending, %d failed", batchID, len(touched)-failed, failed)
}
