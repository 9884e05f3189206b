package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vote-ledger/models"
)

// MaxDifficulty bounds the sealing loop; each extra zero multiplies the
// expected work by 16.
const MaxDifficulty = 8

var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrMinerStopped      = errors.New("miner stopped")
)

// SealResult is what the worker hands back for a sealed block
type SealResult struct {
	Block    models.Block
	Attempts uint64
	Duration time.Duration
}

type sealJob struct {
	block    models.Block
	resultCh chan<- SealResult
}

// Miner runs proof-of-work on a dedicated goroutine so callers waiting on a
// seal never block readers of the ledger.
type Miner struct {
	difficulty int
	jobCh      chan *sealJob
	shutdownCh chan struct{}
	workerWg   sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

func ValidateDifficulty(difficulty int) error {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidDifficulty, difficulty, MaxDifficulty)
	}
	return nil
}

// NewMiner creates a miner; call Start before sealing.
func NewMiner(difficulty int, queueSize int) (*Miner, error) {
	if err := ValidateDifficulty(difficulty); err != nil {
		return nil, err
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Miner{
		difficulty: difficulty,
		jobCh:      make(chan *sealJob, queueSize),
		shutdownCh: make(chan struct{}),
	}, nil
}

func (m *Miner) Difficulty() int {
	return m.difficulty
}

// Start launches the sealing worker
func (m *Miner) Start() {
	m.startOnce.Do(func() {
		m.workerWg.Add(1)
		go m.worker()
	})
}

// Stop shuts the worker down after the block in progress, if any, is sealed.
func (m *Miner) Stop() {
	m.stopOnce.Do(func() {
		close(m.shutdownCh)
	})
	m.workerWg.Wait()
}

// Seal queues block for sealing and waits for the result. Cancelling ctx stops
// the wait; the worker still finishes the block and the result is dropped.
func (m *Miner) Seal(ctx context.Context, block models.Block) (SealResult, error) {
	resultCh := make(chan SealResult, 1)
	job := &sealJob{block: block, resultCh: resultCh}

	select {
	case m.jobCh <- job:
	case <-ctx.Done():
		return SealResult{}, ctx.Err()
	case <-m.shutdownCh:
		return SealResult{}, ErrMinerStopped
	}

	select {
	case result := <-resultCh:
		return result, nil
	case <-ctx.Done():
		return SealResult{}, ctx.Err()
	case <-m.shutdownCh:
		// Prefer a result that is already available.
		select {
		case result := <-resultCh:
			return result, nil
		default:
			return SealResult{}, ErrMinerStopped
		}
	}
}

func (m *Miner) worker() {
	defer m.workerWg.Done()

	for {
		select {
		case <-m.shutdownCh:
			return
		case job := <-m.jobCh:
			startTime := time.Now()
			block := job.block
			attempts := block.Seal(m.difficulty)

			job.resultCh <- SealResult{
				Block:    block,
				Attempts: attempts,
				Duration: time.Since(startTime),
			}
		}
	}
}
