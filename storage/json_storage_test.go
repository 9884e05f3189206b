package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"vote-ledger/models"
)

func sampleState() *models.LedgerState {
	now := time.UnixMilli(1700000000000)
	genesis := models.NewGenesisBlock(now)
	genesis.Seal(1)
	vote := models.NewBlock(1, now.Add(time.Second), []models.Transaction{
		models.NewVoteTransaction("v1", "Alice", now.Add(time.Second)),
	}, genesis.Hash)
	vote.Seal(1)

	return &models.LedgerState{
		Chain: []models.Block{genesis, vote},
		Voters: map[string]models.VoterRecord{
			"v1": {RegisteredAt: now.UnixMilli(), HasVoted: true},
			"v2": {RegisteredAt: now.UnixMilli() + 5},
		},
	}
}

func TestJSONStoreLoadMissing(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no prior state, got %+v", state)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	want := sampleState()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A fresh store over the same directory sees the same state.
	reopened, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestJSONStoreSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	full := sampleState()
	if err := store.Save(ctx, full); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	smaller := &models.LedgerState{
		Chain:  full.Chain[:1],
		Voters: map[string]models.VoterRecord{},
	}
	if err := store.Save(ctx, smaller); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got.Chain) != 1 || len(got.Voters) != 0 {
		t.Fatalf("expected overwritten state, got %d blocks / %d voters", len(got.Chain), len(got.Voters))
	}
}

func TestJSONStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ledgerFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	state, err := store.Load(context.Background())
	if err == nil {
		t.Fatalf("expected parse error, got state %+v", state)
	}
}

func TestJSONStoreSaveCancelled(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Save(ctx, sampleState()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{Backend: BackendJSON, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("json backend failed: %v", err)
	}
	if _, ok := store.(*JSONStore); !ok {
		t.Fatalf("expected *JSONStore, got %T", store)
	}

	if _, err := New(ctx, Config{Backend: "sqlite"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}

	if _, err := New(ctx, Config{Backend: BackendMongo}); err == nil {
		t.Fatal("mongo backend without uri should fail")
	}
}
