package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks admission, mining and counting figures in memory.
type MetricsCollector struct {
	mu sync.RWMutex

	admissionStartTime time.Time
	admissionEndTime   time.Time
	accepted           int
	rejected           int
	admissionTotalTime time.Duration

	miningStartTime time.Time
	miningEndTime   time.Time
	blocksMined     int
	sealedTxs       int
	nonceAttempts   uint64
	miningFailures  int
	miningTotalTime time.Duration

	votingPhaseStarted   bool
	votingPhaseStartTime time.Time
	votingPhaseEndTime   time.Time
	votingPhaseDuration  time.Duration

	countingStartTime      time.Time
	countingEndTime        time.Time
	countingProcessingTime time.Duration
}

type AdmissionMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Accepted       int       `json:"accepted"`
	Rejected       int       `json:"rejected"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

type MiningMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Blocks         int       `json:"blocks"`
	Transactions   int       `json:"transactions"`
	NonceAttempts  uint64    `json:"nonce_attempts"`
	Failures       int       `json:"failures"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

type PhaseMetrics struct {
	StartTime      time.Time `json:"start_time,omitempty"`
	EndTime        time.Time `json:"end_time,omitempty"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse is a point-in-time copy of every counter.
type MetricsResponse struct {
	Admission AdmissionMetrics `json:"admission"`
	Mining    MiningMetrics    `json:"mining"`
	Voting    PhaseMetrics     `json:"voting"`
	Counting  PhaseMetrics     `json:"counting"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

func (mc *MetricsCollector) StartVotingPhase() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.votingPhaseStarted = true
	mc.votingPhaseStartTime = time.Now()
}

func (mc *MetricsCollector) EndVotingPhase() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.votingPhaseStarted {
		mc.votingPhaseEndTime = time.Now()
		mc.votingPhaseDuration = mc.votingPhaseEndTime.Sub(mc.votingPhaseStartTime)
	}
}

// RecordAdmission counts one quorum round and the time it took.
func (mc *MetricsCollector) RecordAdmission(accepted bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.accepted+mc.rejected == 0 {
		mc.admissionStartTime = now.Add(-duration)
	}
	if accepted {
		mc.accepted++
	} else {
		mc.rejected++
	}
	mc.admissionEndTime = now
	mc.admissionTotalTime += duration
}

// RecordBlock counts a sealed block. A block with nonce n took n+1 attempts.
func (mc *MetricsCollector) RecordBlock(transactions int, nonce uint64, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.blocksMined == 0 {
		mc.miningStartTime = now.Add(-duration)
	}
	mc.blocksMined++
	mc.sealedTxs += transactions
	mc.nonceAttempts += nonce + 1
	mc.miningEndTime = now
	mc.miningTotalTime += duration
}

func (mc *MetricsCollector) RecordMiningFailure(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.miningFailures++
	mc.miningTotalTime += duration
}

func (mc *MetricsCollector) RecordCountingStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.countingStartTime = time.Now()
}

func (mc *MetricsCollector) RecordCountingEnd() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.countingEndTime = time.Now()
	mc.countingProcessingTime = mc.countingEndTime.Sub(mc.countingStartTime)
}

func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Admission: AdmissionMetrics{
			StartTime:      mc.admissionStartTime,
			EndTime:        mc.admissionEndTime,
			Accepted:       mc.accepted,
			Rejected:       mc.rejected,
			ProcessingTime: mc.admissionTotalTime.Milliseconds(),
		},
		Mining: MiningMetrics{
			StartTime:      mc.miningStartTime,
			EndTime:        mc.miningEndTime,
			Blocks:         mc.blocksMined,
			Transactions:   mc.sealedTxs,
			NonceAttempts:  mc.nonceAttempts,
			Failures:       mc.miningFailures,
			ProcessingTime: mc.miningTotalTime.Milliseconds(),
		},
		Voting: PhaseMetrics{
			StartTime:      mc.votingPhaseStartTime,
			EndTime:        mc.votingPhaseEndTime,
			ProcessingTime: mc.votingPhaseDuration.Milliseconds(),
		},
		Counting: PhaseMetrics{
			StartTime:      mc.countingStartTime,
			EndTime:        mc.countingEndTime,
			ProcessingTime: mc.countingProcessingTime.Milliseconds(),
		},
	}
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.admissionStartTime = time.Time{}
	mc.admissionEndTime = time.Time{}
	mc.accepted = 0
	mc.rejected = 0
	mc.admissionTotalTime = 0

	mc.miningStartTime = time.Time{}
	mc.miningEndTime = time.Time{}
	mc.blocksMined = 0
	mc.sealedTxs = 0
	mc.nonceAttempts = 0
	mc.miningFailures = 0
	mc.miningTotalTime = 0

	mc.votingPhaseStarted = false
	mc.votingPhaseStartTime = time.Time{}
	mc.votingPhaseEndTime = time.Time{}
	mc.votingPhaseDuration = 0

	mc.countingStartTime = time.Time{}
	mc.countingEndTime = time.Time{}
	mc.countingProcessingTime = 0
}
