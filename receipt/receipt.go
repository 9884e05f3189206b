package receipt

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
	"vote-ledger/models"
)

var ErrInvalidReceipt = errors.New("invalid receipt")

// Receipt proves that the node accepted a vote into a given block.
type Receipt struct {
	BlockIndex uint64 `json:"block_index"`
	BlockHash  string `json:"block_hash"`
	VoterID    string `json:"voter_id"`
	Signature  string `json:"signature"`
	Signer     string `json:"signer"` // node address
}

// KeyFile is the on-disk form of the node signing key.
type KeyFile struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Signer issues and checks receipts with the node's ECDSA key.
type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// LoadOrGenerate restores the signing key from path, or generates and saves a
// new one. An empty path yields an ephemeral key.
func LoadOrGenerate(path string) (*Signer, error) {
	if path == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return NewSigner(key), nil
	}

	// Try to load existing key
	if data, err := os.ReadFile(path); err == nil {
		var kf KeyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}

		// Remove "0x" prefix if present
		key, err := crypto.HexToECDSA(strings.TrimPrefix(kf.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to restore signing key: %w", err)
		}
		return NewSigner(key), nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	kf := KeyFile{
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key file: %w", err)
	}

	return NewSigner(key), nil
}

// Address is the hex address derived from the signing key.
func (s *Signer) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// PublicKey returns the uncompressed public key as 0x-prefixed hex.
func (s *Signer) PublicKey() string {
	return hexutil.Encode(crypto.FromECDSAPub(&s.key.PublicKey))
}

// Issue signs a receipt for voterID's vote sealed in block.
func (s *Signer) Issue(block models.Block, voterID string) (*Receipt, error) {
	r := &Receipt{
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
		VoterID:    voterID,
		Signer:     s.Address(),
	}

	sig, err := crypto.Sign(r.Digest(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}
	r.Signature = hexutil.Encode(sig)
	return r, nil
}

// Verify checks that r was signed by this node.
func (s *Signer) Verify(r *Receipt) error {
	sig, err := hexutil.Decode(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding: %v", ErrInvalidReceipt, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", ErrInvalidReceipt, crypto.SignatureLength)
	}

	pub, err := crypto.SigToPub(r.Digest(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if crypto.PubkeyToAddress(*pub).Hex() != s.Address() {
		return fmt.Errorf("%w: not signed by this node", ErrInvalidReceipt)
	}
	return nil
}

// Digest is the Keccak-256 of block index, block hash and voter id, each
// length-delimited.
func (r *Receipt) Digest() []byte {
	hash := sha3.NewLegacyKeccak256()
	var index [8]byte
	binary.BigEndian.PutUint64(index[:], r.BlockIndex)
	hash.Write(index[:])
	for _, field := range []string{r.BlockHash, r.VoterID} {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(field)))
		hash.Write(size[:])
		hash.Write([]byte(field))
	}
	return hash.Sum(nil)
}
