package models

import (
	"strings"
	"testing"
	"time"
)

func testBlock() Block {
	castAt := time.UnixMilli(1700000000500)
	txs := []Transaction{NewVoteTransaction("voter-1", "Alice", castAt)}
	return NewBlock(1, time.UnixMilli(1700000000000), txs, "abc123")
}

func TestCalculateHashDeterministic(t *testing.T) {
	a := testBlock()
	b := testBlock()
	if a.Hash != b.Hash {
		t.Fatalf("same fields produced different hashes: %s vs %s", a.Hash, b.Hash)
	}
	if len(a.Hash) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a.Hash))
	}
	if a.Nonce != 0 {
		t.Fatalf("new block should start with nonce 0, got %d", a.Nonce)
	}
}

func TestCalculateHashCoversEveryField(t *testing.T) {
	base := testBlock()

	mutations := map[string]func(b *Block){
		"index":     func(b *Block) { b.Index++ },
		"createdAt": func(b *Block) { b.CreatedAt++ },
		"prevHash":  func(b *Block) { b.PrevHash = "abc124" },
		"nonce":     func(b *Block) { b.Nonce++ },
		"choice": func(b *Block) {
			b.Transactions = []Transaction{{Kind: KindVote, VoterID: "voter-1", Choice: "Bob", CastAt: 1700000000500}}
		},
		"voter": func(b *Block) {
			b.Transactions = []Transaction{{Kind: KindVote, VoterID: "voter-2", Choice: "Alice", CastAt: 1700000000500}}
		},
		"castAt": func(b *Block) {
			b.Transactions = []Transaction{{Kind: KindVote, VoterID: "voter-1", Choice: "Alice", CastAt: 1700000000501}}
		},
		"txOrder": func(b *Block) {
			b.Transactions = append(b.Transactions, NewGenesisTransaction())
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := testBlock()
			b.Transactions = append([]Transaction(nil), b.Transactions...)
			mutate(&b)
			if got := b.CalculateHash(); got == base.Hash {
				t.Fatalf("changing %s did not change the hash", name)
			}
		})
	}
}

func TestCalculateHashLengthPrefixesStrings(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	a := Block{Transactions: []Transaction{{Kind: KindVote, VoterID: "ab", Choice: "c"}}}
	b := Block{Transactions: []Transaction{{Kind: KindVote, VoterID: "a", Choice: "bc"}}}
	if a.CalculateHash() == b.CalculateHash() {
		t.Fatal("ambiguous encoding: different fields produced the same hash")
	}
}

func TestSeal(t *testing.T) {
	for difficulty := 0; difficulty <= 3; difficulty++ {
		b := testBlock()
		attempts := b.Seal(difficulty)

		if attempts == 0 {
			t.Fatalf("difficulty %d: expected at least one attempt", difficulty)
		}
		if !strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)) {
			t.Fatalf("difficulty %d: hash %s lacks leading zeros", difficulty, b.Hash)
		}
		if recomputed := b.CalculateHash(); recomputed != b.Hash {
			t.Fatalf("difficulty %d: stored hash %s, recomputed %s", difficulty, b.Hash, recomputed)
		}
		if err := b.Validate(difficulty); err != nil {
			t.Fatalf("difficulty %d: sealed block invalid: %v", difficulty, err)
		}
	}
}

func TestSealDifficultyZeroIsImmediate(t *testing.T) {
	b := testBlock()
	initial := b.Hash
	if attempts := b.Seal(0); attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
	if b.Nonce != 0 || b.Hash != initial {
		t.Fatalf("difficulty 0 should leave the block untouched, nonce=%d", b.Nonce)
	}
}

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		hash       string
		difficulty int
		want       bool
	}{
		{"00ab", 2, true},
		{"00ab", 3, false},
		{"0a0b", 2, false},
		{"ffff", 0, true},
		{"ffff", -1, true},
	}
	for _, tt := range tests {
		if got := MeetsDifficulty(tt.hash, tt.difficulty); got != tt.want {
			t.Errorf("MeetsDifficulty(%q, %d) = %v, want %v", tt.hash, tt.difficulty, got, tt.want)
		}
	}
}

func buildChain(t *testing.T, n int, difficulty int) []Block {
	t.Helper()
	now := time.UnixMilli(1700000000000)
	genesis := NewGenesisBlock(now)
	genesis.Seal(difficulty)
	chain := []Block{genesis}
	for i := 1; i < n; i++ {
		tx := NewVoteTransaction("voter", "Alice", now)
		b := NewBlock(uint64(i), now, []Transaction{tx}, chain[i-1].Hash)
		b.Seal(difficulty)
		chain = append(chain, b)
	}
	return chain
}

func TestValidateChain(t *testing.T) {
	chain := buildChain(t, 4, 1)
	if err := ValidateChain(chain, 1); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].PrevHash != chain[i-1].Hash || chain[i].Index != uint64(i) {
			t.Fatalf("block %d not linked", i)
		}
	}
}

func TestValidateChainDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(chain []Block)
	}{
		{"changed choice", func(c []Block) { c[2].Transactions[0].Choice = "Mallory" }},
		{"broken link", func(c []Block) { c[2].PrevHash = strings.Repeat("f", 64) }},
		{"wrong index", func(c []Block) { c[3].Index = 7 }},
		{"genesis sentinel", func(c []Block) { c[0].PrevHash = "1" }},
		{"unsealed hash", func(c []Block) {
			c[1].Nonce = 0
			c[1].Hash = c[1].CalculateHash()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := buildChain(t, 4, 2)
			if chain[1].Nonce == 0 && tt.name == "unsealed hash" {
				t.Skip("block happened to seal at nonce 0")
			}
			tt.tamper(chain)
			if err := ValidateChain(chain, 2); err == nil {
				t.Fatal("tampered chain accepted")
			}
		})
	}
}

func TestValidateChainEmpty(t *testing.T) {
	if err := ValidateChain(nil, 0); err == nil {
		t.Fatal("empty chain accepted")
	}
}
