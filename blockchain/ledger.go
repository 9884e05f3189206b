package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"vote-ledger/models"
	"vote-ledger/registry"
	"vote-ledger/storage"
)

// DefaultMaxChoiceLength caps the length of a vote choice.
const DefaultMaxChoiceLength = 128

var (
	ErrInvalidChoice = errors.New("invalid choice")
	ErrPersist       = errors.New("failed to persist ledger state")
	ErrChainInvalid  = errors.New("chain verification failed")
	ErrBlockNotFound = errors.New("block not found")
)

// VerifyPolicy decides what happens when a loaded chain fails verification.
type VerifyPolicy string

const (
	VerifyOff    VerifyPolicy = "off"
	VerifyWarn   VerifyPolicy = "warn"
	VerifyStrict VerifyPolicy = "strict"
)

func ParseVerifyPolicy(s string) (VerifyPolicy, error) {
	switch p := VerifyPolicy(s); p {
	case VerifyOff, VerifyWarn, VerifyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown verify policy %q", s)
	}
}

type Options struct {
	Difficulty      int
	Store           storage.Store
	Registry        registry.VoterRegistry
	Candidates      []string // empty accepts any non-empty choice
	MaxChoiceLength int
	VerifyOnLoad    VerifyPolicy
	Now             func() time.Time
	// OnAppend is called in append order after a block is durable, while
	// mutations are still serialized. It must not block.
	OnAppend func(block models.Block)
}

// Ledger is the append-only chain of vote blocks together with the voter
// registry it guards. Mutations are serialized by writeMu; mu only protects
// the committed state so reads never wait on sealing or saving.
type Ledger struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	blocks  []models.Block

	difficulty      int
	registry        registry.VoterRegistry
	store           storage.Store
	miner           *Miner
	candidates      map[string]bool
	maxChoiceLength int
	now             func() time.Time
	onAppend        func(block models.Block)
}

// Status summarizes the ledger for status endpoints.
type Status struct {
	Length           int    `json:"length"`
	Difficulty       int    `json:"difficulty"`
	LatestHash       string `json:"latest_hash"`
	RegisteredVoters int    `json:"registered_voters"`
	VotedVoters      int    `json:"voted_voters"`
}

// New restores the ledger from opts.Store, or starts a fresh genesis-only
// chain with an empty registry when no usable state exists.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger requires a store")
	}

	miner, err := NewMiner(opts.Difficulty, 1)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		difficulty:      opts.Difficulty,
		registry:        opts.Registry,
		store:           opts.Store,
		miner:           miner,
		candidates:      make(map[string]bool),
		maxChoiceLength: opts.MaxChoiceLength,
		now:             opts.Now,
		onAppend:        opts.OnAppend,
	}
	if l.registry == nil {
		l.registry = registry.New()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.maxChoiceLength <= 0 {
		l.maxChoiceLength = DefaultMaxChoiceLength
	}
	for _, c := range opts.Candidates {
		if c = strings.TrimSpace(c); c != "" {
			l.candidates[c] = true
		}
	}

	policy := opts.VerifyOnLoad
	if policy == "" {
		policy = VerifyWarn
	}

	miner.Start()
	if err := l.restore(ctx, policy); err != nil {
		miner.Stop()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) restore(ctx context.Context, policy VerifyPolicy) error {
	state, err := l.store.Load(ctx)
	if err != nil {
		log.Printf("Warning: failed to load ledger state, starting fresh: %v", err)
		state = nil
	}

	if state != nil && len(state.Chain) > 0 {
		if policy != VerifyOff {
			if err := models.ValidateChain(state.Chain, l.difficulty); err != nil {
				if policy == VerifyStrict {
					return fmt.Errorf("%w: %w", ErrChainInvalid, err)
				}
				log.Printf("Warning: loaded chain failed verification: %v", err)
			}
		}

		l.blocks = state.Chain
		l.registry.Restore(state.Voters)
		log.Printf("Loaded ledger with %d blocks and %d voters", len(state.Chain), len(state.Voters))
		return nil
	}

	result, err := l.miner.Seal(ctx, models.NewGenesisBlock(l.now()))
	if err != nil {
		return fmt.Errorf("failed to seal genesis block: %w", err)
	}
	l.blocks = []models.Block{result.Block}
	log.Printf("Created genesis block %s", result.Block.Hash)
	return nil
}

// RegisterVoter issues a new voter identity and persists it before returning.
func (l *Ledger) RegisterVoter(ctx context.Context) (string, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	voterID, record := l.registry.NewIdentity()
	voters := l.registry.Snapshot()
	voters[voterID] = record
	if err := l.persist(ctx, l.GetChain(), voters); err != nil {
		return "", err
	}

	l.mu.Lock()
	err := l.registry.Add(voterID, record)
	l.mu.Unlock()
	if err != nil {
		return "", err
	}

	return voterID, nil
}

// CastVote records choice for voterID in a new sealed block. The eligibility
// check, the seal, the save and the hasVoted flip happen as one unit under
// writeMu, so a voter can never be recorded twice. On any rejection nothing is
// appended and nothing is saved.
func (l *Ledger) CastVote(ctx context.Context, voterID, choice string) (models.Block, error) {
	choice = strings.TrimSpace(choice)
	if err := l.validateChoice(choice); err != nil {
		return models.Block{}, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.registry.CheckEligible(voterID); err != nil {
		return models.Block{}, err
	}

	now := l.now()
	tx := models.NewVoteTransaction(voterID, choice, now)
	block, err := l.sealNext(ctx, now, []models.Transaction{tx})
	if err != nil {
		return models.Block{}, err
	}

	voters := l.registry.Snapshot()
	record := voters[voterID]
	record.HasVoted = true
	voters[voterID] = record

	if err := l.persist(ctx, append(l.GetChain(), block), voters); err != nil {
		return models.Block{}, err
	}

	l.mu.Lock()
	err = l.registry.MarkVoted(voterID)
	if err == nil {
		l.blocks = append(l.blocks, block)
	}
	l.mu.Unlock()
	if err != nil {
		return models.Block{}, err
	}

	log.Printf("Sealed block %d with nonce %d", block.Index, block.Nonce)
	l.notify(block)
	return block, nil
}

// Append seals transactions into the next block, saves and appends it.
func (l *Ledger) Append(ctx context.Context, transactions []models.Transaction) (models.Block, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	block, err := l.sealNext(ctx, l.now(), transactions)
	if err != nil {
		return models.Block{}, err
	}

	if err := l.persist(ctx, append(l.GetChain(), block), l.registry.Snapshot()); err != nil {
		return models.Block{}, err
	}

	l.mu.Lock()
	l.blocks = append(l.blocks, block)
	l.mu.Unlock()

	l.notify(block)
	return block, nil
}

// sealNext builds the block following the current head and seals it on the
// miner. Callers hold writeMu.
func (l *Ledger) sealNext(ctx context.Context, now time.Time, transactions []models.Transaction) (models.Block, error) {
	// The next index is the chain length, even if a loaded chain is not dense.
	chain := l.GetChain()
	block := models.NewBlock(uint64(len(chain)), now, transactions, chain[len(chain)-1].Hash)

	result, err := l.miner.Seal(ctx, block)
	if err != nil {
		return models.Block{}, fmt.Errorf("failed to seal block %d: %w", block.Index, err)
	}
	return result.Block, nil
}

func (l *Ledger) persist(ctx context.Context, blocks []models.Block, voters map[string]models.VoterRecord) error {
	state := &models.LedgerState{Chain: blocks, Voters: voters}
	if err := l.store.Save(ctx, state); err != nil {
		log.Printf("Failed to save ledger state: %v", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (l *Ledger) notify(block models.Block) {
	if l.onAppend != nil {
		l.onAppend(block)
	}
}

func (l *Ledger) validateChoice(choice string) error {
	if choice == "" {
		return fmt.Errorf("%w: choice is required", ErrInvalidChoice)
	}
	if !utf8.ValidString(choice) {
		return fmt.Errorf("%w: choice is not valid UTF-8", ErrInvalidChoice)
	}
	if len(choice) > l.maxChoiceLength {
		return fmt.Errorf("%w: choice longer than %d bytes", ErrInvalidChoice, l.maxChoiceLength)
	}
	if len(l.candidates) > 0 && !l.candidates[choice] {
		return fmt.Errorf("%w: unknown candidate %q", ErrInvalidChoice, choice)
	}
	return nil
}

// GetLatest returns the head of the chain.
func (l *Ledger) GetLatest() models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.blocks[len(l.blocks)-1]
}

// GetChain returns a snapshot of every block, genesis first.
func (l *Ledger) GetChain() []models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	blocks := make([]models.Block, len(l.blocks))
	copy(blocks, l.blocks)
	return blocks
}

func (l *Ledger) GetBlock(index uint64) (models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.blocks)) {
		return models.Block{}, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}
	return l.blocks[index], nil
}

// GetResults tallies every vote transaction on the chain by choice.
func (l *Ledger) GetResults() models.Results {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return models.Tally(l.blocks)
}

// Verify re-checks linkage, hashes and difficulty of the whole chain.
func (l *Ledger) Verify() error {
	if err := models.ValidateChain(l.GetChain(), l.difficulty); err != nil {
		return fmt.Errorf("%w: %w", ErrChainInvalid, err)
	}
	return nil
}

func (l *Ledger) IsRegistered(voterID string) bool {
	return l.registry.IsRegistered(voterID)
}

func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// Candidates returns the configured candidate list, sorted.
func (l *Ledger) Candidates() []string {
	candidates := make([]string, 0, len(l.candidates))
	for c := range l.candidates {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)
	return candidates
}

func (l *Ledger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	registered, voted := l.registry.Stats()
	return Status{
		Length:           len(l.blocks),
		Difficulty:       l.difficulty,
		LatestHash:       l.blocks[len(l.blocks)-1].Hash,
		RegisteredVoters: registered,
		VotedVoters:      voted,
	}
}

// Close stops the sealing worker and releases the store.
func (l *Ledger) Close(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.miner.Stop()
	return l.store.Close(ctx)
}
