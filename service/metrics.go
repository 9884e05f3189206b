package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks counts and timings of ledger operations
type MetricsCollector struct {
	mu                    sync.RWMutex
	registrationStartTime time.Time
	registrationEndTime   time.Time
	registrationCount     int
	registrationTotalTime time.Duration

	votingStartTime time.Time
	votingEndTime   time.Time
	votingCount     int
	votingTotalTime time.Duration
	sealAttempts    uint64

	rejections      map[string]int
	persistFailures int
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse provides the metrics for all operations
type MetricsResponse struct {
	Registration    OperationMetrics `json:"registration"`
	Voting          OperationMetrics `json:"voting"`
	SealAttempts    uint64           `json:"seal_attempts"`
	Rejections      map[string]int   `json:"rejections"`
	PersistFailures int              `json:"persist_failures"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{rejections: make(map[string]int)}
}

// RecordRegistration records one successful registration
func (mc *MetricsCollector) RecordRegistration(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.registrationCount == 0 {
		mc.registrationStartTime = now.Add(-duration)
	}
	mc.registrationCount++
	mc.registrationEndTime = now
	mc.registrationTotalTime += duration
}

// RecordVote records one accepted vote and the hashes spent sealing it
func (mc *MetricsCollector) RecordVote(duration time.Duration, attempts uint64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.votingCount == 0 {
		mc.votingStartTime = now.Add(-duration)
	}
	mc.votingCount++
	mc.votingEndTime = now
	mc.votingTotalTime += duration
	mc.sealAttempts += attempts
}

// RecordRejection counts a refused vote by reason
func (mc *MetricsCollector) RecordRejection(reason string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.rejections[reason]++
}

func (mc *MetricsCollector) RecordPersistFailure() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.persistFailures++
}

// GetMetrics returns current metrics for all operations
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	rejections := make(map[string]int, len(mc.rejections))
	for k, v := range mc.rejections {
		rejections[k] = v
	}

	return MetricsResponse{
		Registration: OperationMetrics{
			StartTime:      mc.registrationStartTime,
			EndTime:        mc.registrationEndTime,
			Count:          mc.registrationCount,
			ProcessingTime: mc.registrationTotalTime.Milliseconds(),
		},
		Voting: OperationMetrics{
			StartTime:      mc.votingStartTime,
			EndTime:        mc.votingEndTime,
			Count:          mc.votingCount,
			ProcessingTime: mc.votingTotalTime.Milliseconds(),
		},
		SealAttempts:    mc.sealAttempts,
		Rejections:      rejections,
		PersistFailures: mc.persistFailures,
	}
}
