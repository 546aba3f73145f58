package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"votex-ledger/logger"
	"votex-ledger/models"
)

var (
	ErrQueueFull    = errors.New("vote queue is full")
	ErrQueueStopped = errors.New("vote queue is stopped")
)

// VoteRequest is a queued ballot.
type VoteRequest struct {
	VoterID     string `yaml:"voter_id" json:"voter_id"`
	ElectionID  int64  `yaml:"election_id" json:"election_id"`
	CandidateID int64  `yaml:"candidate_id" json:"candidate_id"`
}

// ProcessingResult is delivered once per queued vote.
type ProcessingResult struct {
	Request VoteRequest
	Receipt *Receipt
	Err     error
}

type queuedVote struct {
	req      VoteRequest
	resultCh chan<- *ProcessingResult
}

type flushResult struct {
	block *models.Block
	err   error
}

// QueueProcessor serializes vote submissions through one worker goroutine and
// decides when to mine: after every batchSize accepted votes, on Flush, and on
// Stop.
type QueueProcessor struct {
	votingService *VotingService
	batchSize     int
	log           logger.Logger

	voteCh     chan *queuedVote
	flushCh    chan chan flushResult
	shutdownCh chan struct{}
	doneCh     chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool

	unsealed int
	final    flushResult
}

func NewQueueProcessor(votingService *VotingService, queueSize, batchSize int, log logger.Logger) *QueueProcessor {
	if queueSize < 1 {
		queueSize = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &QueueProcessor{
		votingService: votingService,
		batchSize:     batchSize,
		log:           log,
		voteCh:        make(chan *queuedVote, queueSize),
		flushCh:       make(chan chan flushResult),
		shutdownCh:    make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the worker. ctx bounds every admission and mining call; when
// it is cancelled the queue closes, buffered votes get ErrQueueStopped and
// nothing more is sealed.
func (qp *QueueProcessor) Start(ctx context.Context) {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.started || qp.stopped {
		return
	}
	qp.started = true
	go qp.voteWorker(ctx)
}

// QueueVote enqueues req without blocking. The returned channel yields exactly
// one result and is then closed.
func (qp *QueueProcessor) QueueVote(req VoteRequest) (<-chan *ProcessingResult, error) {
	qp.mu.RLock()
	defer qp.mu.RUnlock()

	if qp.stopped {
		return nil, ErrQueueStopped
	}

	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.voteCh <- &queuedVote{req: req, resultCh: resultCh}:
		return resultCh, nil
	default:
		qp.log.Warn("Vote queue is full, request dropped", "voter_id", req.VoterID)
		return nil, ErrQueueFull
	}
}

// BatchQueueVotes enqueues every request; a nil channel marks a request that
// could not be queued, with its error at the same index.
func (qp *QueueProcessor) BatchQueueVotes(requests []VoteRequest) ([]<-chan *ProcessingResult, []error) {
	resultChannels := make([]<-chan *ProcessingResult, len(requests))
	errs := make([]error, len(requests))
	for i, req := range requests {
		resultChannels[i], errs[i] = qp.QueueVote(req)
	}
	return resultChannels, errs
}

// Flush waits until every vote queued before the call is processed, then
// mines the pending pool.
func (qp *QueueProcessor) Flush(ctx context.Context) (*models.Block, error) {
	qp.mu.RLock()
	running := qp.started && !qp.stopped
	qp.mu.RUnlock()
	if !running {
		return nil, ErrQueueStopped
	}

	reply := make(chan flushResult, 1)
	select {
	case qp.flushCh <- reply:
	case <-qp.doneCh:
		return nil, ErrQueueStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.block, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop refuses new votes, drains the queue, seals what is pending and waits
// for the worker. It returns the error of the final seal, if any.
func (qp *QueueProcessor) Stop() error {
	qp.mu.Lock()
	if qp.stopped {
		qp.mu.Unlock()
		<-qp.doneCh
		return nil
	}
	qp.stopped = true
	started := qp.started
	close(qp.shutdownCh)
	qp.mu.Unlock()

	if !started {
		close(qp.doneCh)
		return nil
	}

	<-qp.doneCh
	return qp.final.err
}

func (qp *QueueProcessor) voteWorker(ctx context.Context) {
	defer close(qp.doneCh)

	for {
		// cancellation wins over anything already buffered
		if ctx.Err() != nil {
			qp.cancel(ctx.Err())
			return
		}

		select {
		case <-ctx.Done():
			qp.cancel(ctx.Err())
			return
		case reply := <-qp.flushCh:
			qp.drain(ctx)
			block, err := qp.seal(ctx)
			reply <- flushResult{block: block, err: err}
		case vote := <-qp.voteCh:
			qp.process(ctx, vote)
		case <-qp.shutdownCh:
			qp.drain(ctx)
			block, err := qp.seal(ctx)
			qp.final = flushResult{block: block, err: err}
			return
		}
	}
}

// cancel closes the queue to new votes and answers every buffered vote with
// ErrQueueStopped. Nothing is sealed.
func (qp *QueueProcessor) cancel(cause error) {
	qp.mu.Lock()
	qp.stopped = true
	qp.mu.Unlock()

	dropped := 0
	for {
		select {
		case vote := <-qp.voteCh:
			vote.resultCh <- &ProcessingResult{
				Request: vote.req,
				Err:     errors.Wrapf(ErrQueueStopped, "%v", cause),
			}
			close(vote.resultCh)
			dropped++
		default:
			qp.log.Warn("Vote queue cancelled", "unsealed", qp.unsealed, "dropped", dropped, "error", cause)
			return
		}
	}
}

// drain processes everything already buffered.
func (qp *QueueProcessor) drain(ctx context.Context) {
	for {
		select {
		case vote := <-qp.voteCh:
			qp.process(ctx, vote)
		default:
			return
		}
	}
}

func (qp *QueueProcessor) process(ctx context.Context, vote *queuedVote) {
	receipt, err := qp.votingService.CastVote(vote.req.VoterID, vote.req.ElectionID, vote.req.CandidateID)
	vote.resultCh <- &ProcessingResult{Request: vote.req, Receipt: receipt, Err: err}
	close(vote.resultCh)

	if err != nil || !receipt.Accepted {
		return
	}

	qp.unsealed++
	if qp.unsealed >= qp.batchSize {
		if _, err := qp.seal(ctx); err != nil {
			qp.log.Error("Batch seal failed", "pending", qp.unsealed, "error", err)
		}
	}
}

func (qp *QueueProcessor) seal(ctx context.Context) (*models.Block, error) {
	block, err := qp.votingService.Seal(ctx)
	if err != nil {
		return nil, err
	}
	qp.unsealed = 0
	return block, nil
}
