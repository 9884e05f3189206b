package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"vote-ledger/blockchain"
	"vote-ledger/config"
	"vote-ledger/storage"
)

func seedLedger(t *testing.T, dir string, choices ...string) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewJSONStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ledger, err := blockchain.New(ctx, blockchain.Options{Difficulty: 1, Store: store})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer ledger.Close(ctx)

	for _, choice := range choices {
		voterID, err := ledger.RegisterVoter(ctx)
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if _, err := ledger.CastVote(ctx, voterID, choice); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	// One voter who never votes.
	if _, err := ledger.RegisterVoter(ctx); err != nil {
		t.Fatalf("register failed: %v", err)
	}
}

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load([]string{"-storage", dir, "-difficulty", "1"}, nil)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	return cfg
}

func TestInspectTables(t *testing.T) {
	dir := t.TempDir()
	seedLedger(t, dir, "Bob", "Alice", "Alice")

	state, err := loadState(context.Background(), loadConfig(t, dir))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	chain := chainTable(state.Chain)
	if len(chain) != 5 {
		t.Fatalf("expected header plus 4 blocks, got %d rows", len(chain))
	}
	if chain[1][0] != "0" || chain[1][2] != "0" || chain[2][2] != "1" {
		t.Fatalf("unexpected chain rows: %v", chain[1:3])
	}

	results := resultsTable(state.Chain)
	want := pterm.TableData{{"Choice", "Votes"}, {"Alice", "2"}, {"Bob", "1"}}
	if len(results) != len(want) {
		t.Fatalf("results = %v, want %v", results, want)
	}
	for i := range want {
		if results[i][0] != want[i][0] || results[i][1] != want[i][1] {
			t.Fatalf("results = %v, want %v", results, want)
		}
	}

	r := verify(state, 1)
	if r.Err != nil || r.Blocks != 4 || r.Voters != 4 || r.Voted != 3 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if rows := statusTable(r); rows[3][1] != state.Chain[3].Hash {
		t.Fatalf("status table has wrong latest hash: %v", rows)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	seedLedger(t, dir, "Alice")

	path := filepath.Join(dir, "ledger.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Replace(string(data), `"Alice"`, `"Mallory"`, 1)), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := loadConfig(t, dir)
	state, err := loadState(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if r := verify(state, 1); r.Err == nil {
		t.Fatal("tampered chain reported valid")
	}
	if err := run(context.Background(), "verify", cfg, slog.Default()); err == nil {
		t.Fatal("verify command should fail on a tampered chain")
	}
}

func TestRunErrors(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())
	if err := run(context.Background(), "chain", cfg, slog.Default()); !errors.Is(err, errNoLedger) {
		t.Fatalf("expected errNoLedger for an empty directory, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent")
	if err := run(context.Background(), "chain", loadConfig(t, missing), slog.Default()); !errors.Is(err, errNoLedger) {
		t.Fatalf("expected errNoLedger for a missing directory, got %v", err)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("inspecting a missing directory created it: %v", err)
	}

	dir := t.TempDir()
	seedLedger(t, dir)
	if err := run(context.Background(), "explode", loadConfig(t, dir), slog.Default()); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestShort(t *testing.T) {
	if got := short("0"); got != "0" {
		t.Fatalf("short(0) = %s", got)
	}
	if got := short(strings.Repeat("a", 64)); len(got) != 12 {
		t.Fatalf("expected 12 characters, got %d", len(got))
	}
}
