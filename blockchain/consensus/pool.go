// Package consensus simulates a single-round Byzantine quorum over vote
// transactions. A pool of n validators tolerates f = (n-1)/3 faulty members
// and decides with a 2f+1 supermajority. There is no message passing; the
// pool tallies every validator's answer in-process.
package consensus

import (
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"votex-ledger/logger"
	"votex-ledger/models"
)

const DefaultNodeCount = 7

// Outcome is the result of one quorum round.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	// OutcomeNoQuorum means neither side reached 2f+1; the transaction is
	// rejected.
	OutcomeNoQuorum Outcome = "no_quorum"
)

// Decision describes one validation round.
type Decision struct {
	RoundID    uuid.UUID `json:"round_id"`
	TrueVotes  int       `json:"true_votes"`
	FalseVotes int       `json:"false_votes"`
	Quorum     int       `json:"quorum"`
	Outcome    Outcome   `json:"outcome"`
}

// Accepted reports whether the round admitted the transaction.
func (d Decision) Accepted() bool {
	return d.Outcome == OutcomeAccepted
}

type Pool struct {
	mu         sync.RWMutex
	validators []*Validator
	tolerance  int
	seed       uint64
	workers    int
	log        logger.Logger
}

// NewPool creates nodeCount honest validators. A nodeCount below one falls
// back to DefaultNodeCount. seed feeds the Byzantine pseudo-vote.
func NewPool(nodeCount int, seed uint64, log logger.Logger) *Pool {
	if nodeCount < 1 {
		nodeCount = DefaultNodeCount
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	validators := make([]*Validator, nodeCount)
	for i := range validators {
		validators[i] = newValidator(uint32(i))
	}

	return &Pool{
		validators: validators,
		tolerance:  (nodeCount - 1) / 3,
		seed:       seed,
		workers:    runtime.GOMAXPROCS(0),
		log:        log,
	}
}

// Size is the number of validators.
func (p *Pool) Size() int {
	return len(p.validators)
}

// Tolerance is f, the number of faulty validators the pool tolerates.
func (p *Pool) Tolerance() int {
	return p.tolerance
}

// Quorum is the 2f+1 supermajority.
func (p *Pool) Quorum() int {
	return 2*p.tolerance + 1
}

// Validate runs a round and reports whether tx was accepted.
func (p *Pool) Validate(tx models.Transaction) bool {
	return p.Vote(tx).Accepted()
}

// Vote runs one quorum round over tx. Validators vote independently against
// a snapshot of the Byzantine flags; commits happen only after the decision
// is final.
func (p *Pool) Vote(tx models.Transaction) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	votes := make([]bool, len(p.validators))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, v := range p.validators {
		i, v := i, v
		g.Go(func() error {
			votes[i] = v.evaluate(tx, p.seed, v.byzantine)
			return nil
		})
	}
	_ = g.Wait()

	decision := Decision{RoundID: uuid.New(), Quorum: p.Quorum()}
	for _, vote := range votes {
		if vote {
			decision.TrueVotes++
		} else {
			decision.FalseVotes++
		}
	}

	switch {
	case decision.TrueVotes >= decision.Quorum:
		decision.Outcome = OutcomeAccepted
		for _, v := range p.validators {
			v.commit(tx)
		}
	case decision.FalseVotes >= decision.Quorum:
		decision.Outcome = OutcomeRejected
	default:
		decision.Outcome = OutcomeNoQuorum
	}

	p.log.Debug("Quorum round finished",
		"round", decision.RoundID.String(),
		"voter_id", tx.VoterID,
		"true_votes", decision.TrueVotes,
		"false_votes", decision.FalseVotes,
		"quorum", decision.Quorum,
		"outcome", string(decision.Outcome),
	)

	return decision
}

// SetByzantine marks the first count validators faulty, clamped to f, and
// returns the number actually marked. Flags on the remaining validators are
// left as they are.
func (p *Pool) SetByzantine(count int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count > p.tolerance {
		p.log.Warn("Byzantine count clamped to tolerance", "requested", count, "tolerance", p.tolerance)
		count = p.tolerance
	}
	if count < 0 {
		count = 0
	}
	for i := 0; i < count; i++ {
		p.validators[i].byzantine = true
	}
	return count
}

// Reset clears every Byzantine flag and every commit log.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.validators {
		v.clear()
	}
}

// ByzantineCount is the number of validators currently marked faulty.
func (p *Pool) ByzantineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, v := range p.validators {
		if v.byzantine {
			n++
		}
	}
	return n
}

// Committed returns a copy of validator id's commit log.
func (p *Pool) Committed(id uint32) []models.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if int(id) >= len(p.validators) {
		return nil
	}
	log := p.validators[id].committed
	out := make([]models.Transaction, len(log))
	copy(out, log)
	return out
}

// IsByzantine reports the flag of validator id.
func (p *Pool) IsByzantine(id uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if int(id) >= len(p.validators) {
		return false
	}
	return p.validators[id].IsByzantine()
}
