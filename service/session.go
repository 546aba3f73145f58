package service

import (
	"sync"
	"time"
)

// VotingSession is the window during which votes are accepted.
type VotingSession struct {
	startTime time.Time
	endTime   time.Time
	isActive  bool
	mu        sync.RWMutex
}

func NewVotingSession(duration time.Duration) *VotingSession {
	now := time.Now()
	return &VotingSession{
		startTime: now,
		endTime:   now.Add(duration),
		isActive:  true,
	}
}

func (vs *VotingSession) IsActive() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.isActive && time.Now().Before(vs.endTime)
}

// Remaining is the time left before the window closes, zero once closed.
func (vs *VotingSession) Remaining() time.Duration {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if !vs.isActive {
		return 0
	}
	if left := time.Until(vs.endTime); left > 0 {
		return left
	}
	return 0
}

func (vs *VotingSession) StartTime() time.Time {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.startTime
}

func (vs *VotingSession) End() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.isActive = false
	vs.endTime = time.Now()
}
