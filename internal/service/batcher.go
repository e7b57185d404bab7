package service

import (
	"anchor/internal/batchstore"
	"anchor/internal/domain"
	"anchor/internal/intents"
	"anchor/internal/merkle"
	"anchor/internal/metrics"
	"anchor/internal/pubsub"
	"anchor/internal/settlement"
	"anchor/internal/stores/clickhouse"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// Submission sources, used as the metrics label
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

type BatchProcessor interface {
	ProcessBatch(ctx context.Context) (*domain.BatchResult, error)
}

// AuditWriter receives the matched swaps of every committed batch
type AuditWriter interface {
	Enqueue(ctx context.Context, rows ...clickhouse.SwapRow) error
	Health(ctx context.Context) error
}

// Pinger is any optional dependency reported by CheckDependency
type Pinger interface {
	Health(ctx context.Context) error
}

type Deps struct {
	Store       intents.Store
	Processor   BatchProcessor
	Repo        batchstore.Repository
	Broadcaster pubsub.Broadcaster // optional
	Audit       AuditWriter        // optional
	Deduper     Pinger             // optional, health only
	Metrics     *metrics.Metrics   // optional
}

// BatcherService is the only orchestration point for HTTP, Kafka and the scheduler:
// submit → queue, batch → commit → broadcast → audit
type BatcherService struct {
	log         logger.Logger
	store       intents.Store
	processor   BatchProcessor
	repo        batchstore.Repository
	broadcaster pubsub.Broadcaster
	audit       AuditWriter
	deduper     Pinger
	metrics     *metrics.Metrics
}

func NewBatcherService(log logger.Logger, deps Deps) (*BatcherService, error) {
	if deps.Store == nil {
		return nil, errors.New("intent store is required to the batcher service")
	}
	if deps.Processor == nil {
		return nil, errors.New("batch processor is required to the batcher service")
	}
	if deps.Repo == nil {
		return nil, errors.New("batch repository is required to the batcher service")
	}

	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = pubsub.Noop{}
	}

	return &BatcherService{
		log:         log,
		store:       deps.Store,
		processor:   deps.Processor,
		repo:        deps.Repo,
		broadcaster: broadcaster,
		audit:       deps.Audit,
		deduper:     deps.Deduper,
		metrics:     deps.Metrics,
	}, nil
}

func (s *BatcherService) SubmitIntent(ctx context.Context, in *domain.SwapIntent, source string) (string, error) {
	id, err := s.store.Submit(ctx, in)
	if err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.IntentSubmitted(source)
	}
	s.log.Debugf("Intent %s queued from %s: %s %s/%s -> %s/%s",
		id, source, in.Amount.String(), in.FromToken, in.FromChain, in.ToToken, in.ToChain)

	return id, nil
}

// ProcessBatch runs one cycle and fans the committed result out; fan-out failures never fail the batch
func (s *BatcherService) ProcessBatch(ctx context.Context) (*domain.BatchResult, error) {
	started := time.Now()

	res, err := s.processor.ProcessBatch(ctx)
	if err != nil {
		s.observe(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.BatchProcessed(time.Since(started), res.Summary.TotalIntents,
			res.Summary.NettedAmount, res.Summary.PoolFilledAmount)
	}

	s.fanOut(ctx, res)
	return res, nil
}

func (s *BatcherService) observe(err error) {
	if s.metrics == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNoPendingIntents):
		s.metrics.BatchOutcome(metrics.OutcomeEmpty)
	case errors.Is(err, domain.ErrBatchInProgress):
		s.metrics.BatchOutcome(metrics.OutcomeBusy)
	default:
		s.metrics.BatchOutcome(metrics.OutcomeFailed)
	}
}

func (s *BatcherService) fanOut(ctx context.Context, res *domain.BatchResult) {
	if err := s.broadcaster.Publish(ctx, pubsub.SubjectBatch, res.Summary); err != nil {
		s.log.Errorf("Failed to broadcast summary of batch %s, error=%v", res.BatchID, err)
	}

	payload, err := settlement.NewPayload(&res.Summary)
	if err != nil {
		s.log.Errorf("Failed to build settlement payload of batch %s, error=%v", res.BatchID, err)
	} else if err = s.broadcaster.Publish(ctx, pubsub.SubjectSettlement, payload); err != nil {
		s.log.Errorf("Failed to broadcast settlement payload of batch %s, error=%v", res.BatchID, err)
	}

	if s.audit == nil {
		return
	}

	rows := clickhouse.Rows(res.BatchID, res.Summary.MerkleRoot, res.Summary.Timestamp, res.Swaps)
	if len(rows) == 0 {
		return
	}
	if err = s.audit.Enqueue(ctx, rows...); err != nil {
		s.log.Errorf("Failed to enqueue %d audit rows of batch %s, error=%v", len(rows), res.BatchID, err)
	}
}

// GetProofs returns intentId -> proofs of that intent's records
func (s *BatcherService) GetProofs(ctx context.Context, batchID string) (map[string][]domain.MerkleProof, error) {
	res, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return res.MerkleProofs, nil
}

func (s *BatcherService) GetSummary(ctx context.Context, batchID string) (*domain.BatchSummary, error) {
	res, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &res.Summary, nil
}

func (s *BatcherService) LatestBatch(ctx context.Context) (*domain.BatchResult, error) {
	return s.repo.Latest(ctx)
}

// ListIntents returns every intent, optionally filtered by status
func (s *BatcherService) ListIntents(ctx context.Context, status domain.Status) ([]domain.SwapIntent, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidIntent, status)
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}

	out := make([]domain.SwapIntent, 0, len(all))
	for _, in := range all {
		if in.Status == status {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *BatcherService) GetIntent(ctx context.Context, id string) (domain.SwapIntent, error) {
	return s.store.Get(ctx, id)
}

func (s *BatcherService) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	return s.store.Stats(ctx)
}

// ConfirmSettlement moves the matched intents of a committed batch to settled
// once the on-chain transaction is confirmed. Already settled intents are skipped.
func (s *BatcherService) ConfirmSettlement(ctx context.Context, batchID string) (int, error) {
	if _, err := s.repo.Get(ctx, batchID); err != nil {
		return 0, err
	}

	members, err := s.store.ByBatch(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to load intents of batch %s: %w", batchID, err)
	}

	settled := 0
	for _, in := range members {
		if in.Status != domain.StatusMatched {
			continue
		}
		if err = s.store.SetStatus(ctx, in.ID, domain.StatusSettled, batchID); err != nil {
			return settled, fmt.Errorf("failed to settle %s: %w", in.ID, err)
		}
		settled++
	}

	s.log.Infof("Batch %s settlement confirmed, settled=%d", batchID, settled)
	return settled, nil
}

// VerifyProof checks proof against root. When swap is given its leaf must equal proof.Leaf.
func (s *BatcherService) VerifyProof(swap *domain.MatchedSwap, proof domain.MerkleProof, root string) bool {
	if swap != nil {
		leaf, err := merkle.LeafHash(swap)
		if err != nil {
			return false
		}
		if !strings.EqualFold(leaf.Hex(), proof.Leaf) {
			return false
		}
	}
	return merkle.Verify(proof, root)
}

func (s *BatcherService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 3)

	if s.deduper != nil {
		if err := s.deduper.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("Dedupe store error: %v", err))
		}
	}

	if s.audit != nil {
		if err := s.audit.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("ClickHouse connection error: %v", err))
		}
	}

	if err := s.broadcaster.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("NATS: %v", err))
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	s.log.Debugf("All dependency check passed")
	return nil
}
