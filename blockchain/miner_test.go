package blockchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"vote-ledger/models"
)

func TestMinerSeal(t *testing.T) {
	miner, err := NewMiner(2, 1)
	if err != nil {
		t.Fatalf("failed to create miner: %v", err)
	}
	miner.Start()
	defer miner.Stop()

	block := models.NewGenesisBlock(time.UnixMilli(1700000000000))
	result, err := miner.Seal(context.Background(), block)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if err := result.Block.Validate(2); err != nil {
		t.Fatalf("sealed block invalid: %v", err)
	}
	if result.Attempts != result.Block.Nonce+1 {
		t.Fatalf("expected %d attempts, got %d", result.Block.Nonce+1, result.Attempts)
	}
	if block.Nonce != 0 {
		t.Fatal("caller's block was mutated")
	}
}

func TestMinerRejectsDifficulty(t *testing.T) {
	for _, d := range []int{-1, MaxDifficulty + 1} {
		if _, err := NewMiner(d, 1); !errors.Is(err, ErrInvalidDifficulty) {
			t.Fatalf("difficulty %d: expected ErrInvalidDifficulty, got %v", d, err)
		}
	}
	if err := ValidateDifficulty(MaxDifficulty); err != nil {
		t.Fatalf("max difficulty rejected: %v", err)
	}
}

func TestMinerStopped(t *testing.T) {
	miner, err := NewMiner(0, 1)
	if err != nil {
		t.Fatalf("failed to create miner: %v", err)
	}
	miner.Start()
	miner.Stop()
	miner.Stop()

	block := models.NewGenesisBlock(time.Now())
	if _, err := miner.Seal(context.Background(), block); !errors.Is(err, ErrMinerStopped) {
		t.Fatalf("expected ErrMinerStopped, got %v", err)
	}
}

func TestMinerSealHonoursContext(t *testing.T) {
	miner, err := NewMiner(0, 1)
	if err != nil {
		t.Fatalf("failed to create miner: %v", err)
	}
	// Not started: the job can be queued but is never picked up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := miner.Seal(ctx, models.NewGenesisBlock(time.Now())); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}
