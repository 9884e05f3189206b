package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenesisPrevHash is the previous-hash sentinel carried by block 0.
const GenesisPrevHash = "0"

type Block struct {
	Index        uint64        `json:"index" bson:"index"`
	CreatedAt    int64         `json:"created_at" bson:"created_at"` // Unix milliseconds
	Transactions []Transaction `json:"transactions" bson:"transactions"`
	PrevHash     string        `json:"previous_hash" bson:"previous_hash"`
	Nonce        uint64        `json:"nonce" bson:"nonce"`
	Hash         string        `json:"hash" bson:"hash"`
}

// NewBlock builds an unsealed block with nonce 0 and its initial hash.
func NewBlock(index uint64, createdAt time.Time, transactions []Transaction, prevHash string) Block {
	block := Block{
		Index:        index,
		CreatedAt:    createdAt.UnixMilli(),
		Transactions: transactions,
		PrevHash:     prevHash,
	}
	block.Hash = block.CalculateHash()
	return block
}

// NewGenesisBlock builds the unsealed first block of a chain.
func NewGenesisBlock(createdAt time.Time) Block {
	return NewBlock(0, createdAt, []Transaction{NewGenesisTransaction()}, GenesisPrevHash)
}

// Seal searches nonces until the hash has difficulty leading hex zeros and
// returns the number of hashes computed. The loop has no upper bound.
func (b *Block) Seal(difficulty int) uint64 {
	var attempts uint64
	b.Nonce = 0
	for {
		b.Hash = b.CalculateHash()
		attempts++
		if MeetsDifficulty(b.Hash, difficulty) {
			return attempts
		}
		b.Nonce++
	}
}

// CalculateHash digests the canonical encoding of the block fields.
//
// Field order: index (u64), created_at (i64), transaction count (u32), then per
// transaction kind, voter_id, choice (each u32 length + UTF-8 bytes) and
// cast_at (i64), then previous_hash (u32 length + bytes) and nonce (u64).
// Integers are big-endian. The digest is SHA-256 as lowercase hex.
func (b *Block) CalculateHash() string {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.CreatedAt)
	binary.Write(buffer, binary.BigEndian, uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		writeString(buffer, tx.Kind)
		writeString(buffer, tx.VoterID)
		writeString(buffer, tx.Choice)
		binary.Write(buffer, binary.BigEndian, tx.CastAt)
	}
	writeString(buffer, b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)

	hash := sha256.Sum256(buffer.Bytes())
	return hex.EncodeToString(hash[:])
}

func writeString(buffer *bytes.Buffer, s string) {
	binary.Write(buffer, binary.BigEndian, uint32(len(s)))
	buffer.WriteString(s)
}

// MeetsDifficulty reports whether hash starts with difficulty '0' characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// Validate checks that the stored hash matches the fields and the difficulty.
func (b *Block) Validate(difficulty int) error {
	calculated := b.CalculateHash()
	if calculated != b.Hash {
		return fmt.Errorf("invalid hash: expected %s, got %s", calculated, b.Hash)
	}
	if !MeetsDifficulty(b.Hash, difficulty) {
		return fmt.Errorf("hash %s does not meet difficulty %d", b.Hash, difficulty)
	}
	return nil
}

// ValidateChain checks the genesis shape, index density, hash linkage and every
// block's own hash and difficulty.
func ValidateChain(blocks []Block, difficulty int) error {
	if len(blocks) == 0 {
		return fmt.Errorf("empty chain")
	}

	genesis := blocks[0]
	if genesis.Index != 0 || genesis.PrevHash != GenesisPrevHash {
		return fmt.Errorf("invalid genesis block")
	}
	if len(genesis.Transactions) != 1 || genesis.Transactions[0].Kind != KindGenesis {
		return fmt.Errorf("genesis block must hold a single genesis transaction")
	}
	if err := genesis.Validate(difficulty); err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	for i := 1; i < len(blocks); i++ {
		current := blocks[i]
		previous := blocks[i-1]

		if current.Index != uint64(i) {
			return fmt.Errorf("block %d: invalid index %d", i, current.Index)
		}
		if current.PrevHash != previous.Hash {
			return fmt.Errorf("block %d: invalid prev hash: expected %s, got %s", i, previous.Hash, current.PrevHash)
		}
		if err := current.Validate(difficulty); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	return nil
}
