package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/receipt"
	"vote-ledger/registry"
	"vote-ledger/storage"
)

// BlockPublisher receives every block once it is durable.
type BlockPublisher interface {
	PublishBlock(block models.Block)
}

type Config struct {
	Store           storage.Store
	Registry        registry.VoterRegistry
	Signer          *receipt.Signer
	Publisher       BlockPublisher
	Difficulty      int
	Candidates      []string
	MaxChoiceLength int
	VerifyOnLoad    blockchain.VerifyPolicy
	Now             func() time.Time
}

// VotingService fronts the ledger for the HTTP layer and the CLI. It adds
// receipts and metrics on top of the ledger operations.
type VotingService struct {
	ledger    *blockchain.Ledger
	signer    *receipt.Signer
	metrics   *MetricsCollector
	publisher BlockPublisher
}

// VoteConfirmation is returned for every accepted vote
type VoteConfirmation struct {
	Block   models.Block     `json:"block"`
	Receipt *receipt.Receipt `json:"receipt"`
}

// ChainResponse is the full chain plus its verification outcome
type ChainResponse struct {
	Length int            `json:"length"`
	Chain  []models.Block `json:"chain"`
	Valid  bool           `json:"valid"`
}

// ServiceStatus extends the ledger status with the node identity
type ServiceStatus struct {
	blockchain.Status
	Signer     string   `json:"signer"`
	Candidates []string `json:"candidates"`
}

func NewVotingService(ctx context.Context, cfg Config) (*VotingService, error) {
	if cfg.Signer == nil {
		signer, err := receipt.LoadOrGenerate("")
		if err != nil {
			return nil, err
		}
		cfg.Signer = signer
	}

	s := &VotingService{
		signer:    cfg.Signer,
		metrics:   NewMetricsCollector(),
		publisher: cfg.Publisher,
	}

	ledger, err := blockchain.New(ctx, blockchain.Options{
		Difficulty:      cfg.Difficulty,
		Store:           cfg.Store,
		Registry:        cfg.Registry,
		Candidates:      cfg.Candidates,
		MaxChoiceLength: cfg.MaxChoiceLength,
		VerifyOnLoad:    cfg.VerifyOnLoad,
		Now:             cfg.Now,
		OnAppend:        s.publish,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	s.ledger = ledger

	log.Printf("Voting service ready: %d blocks, difficulty %d, signer %s",
		len(ledger.GetChain()), ledger.Difficulty(), s.signer.Address())
	return s, nil
}

func (s *VotingService) publish(block models.Block) {
	if s.publisher != nil {
		s.publisher.PublishBlock(block)
	}
}

// RegisterVoter issues a new voter identity
func (s *VotingService) RegisterVoter(ctx context.Context) (string, error) {
	startTime := time.Now()

	voterID, err := s.ledger.RegisterVoter(ctx)
	if err != nil {
		s.recordFailure(err)
		return "", err
	}

	s.metrics.RecordRegistration(time.Since(startTime))
	return voterID, nil
}

// CastVote records the vote and signs a receipt for the sealed block.
func (s *VotingService) CastVote(ctx context.Context, voterID, choice string) (*VoteConfirmation, error) {
	startTime := time.Now()

	block, err := s.ledger.CastVote(ctx, voterID, choice)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	s.metrics.RecordVote(time.Since(startTime), block.Nonce+1)

	r, err := s.signer.Issue(block, voterID)
	if err != nil {
		// The vote is already durable; the receipt is best effort.
		log.Printf("Failed to issue receipt for block %d: %v", block.Index, err)
	}

	return &VoteConfirmation{Block: block, Receipt: r}, nil
}

func (s *VotingService) recordFailure(err error) {
	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		s.metrics.RecordRejection("not_registered")
	case errors.Is(err, registry.ErrAlreadyVoted):
		s.metrics.RecordRejection("already_voted")
	case errors.Is(err, blockchain.ErrInvalidChoice):
		s.metrics.RecordRejection("invalid_choice")
	case errors.Is(err, blockchain.ErrPersist):
		s.metrics.RecordPersistFailure()
	}
}

func (s *VotingService) GetChain() ChainResponse {
	chain := s.ledger.GetChain()
	return ChainResponse{
		Length: len(chain),
		Chain:  chain,
		Valid:  models.ValidateChain(chain, s.ledger.Difficulty()) == nil,
	}
}

func (s *VotingService) GetBlock(index uint64) (models.Block, error) {
	return s.ledger.GetBlock(index)
}

func (s *VotingService) GetResults() models.Results {
	return s.ledger.GetResults()
}

// ValidateChain re-verifies every block currently held in memory
func (s *VotingService) ValidateChain() error {
	return s.ledger.Verify()
}

func (s *VotingService) IsRegistered(voterID string) bool {
	return s.ledger.IsRegistered(voterID)
}

func (s *VotingService) Candidates() []string {
	return s.ledger.Candidates()
}

func (s *VotingService) GetStatus() ServiceStatus {
	return ServiceStatus{
		Status:     s.ledger.Status(),
		Signer:     s.signer.Address(),
		Candidates: s.ledger.Candidates(),
	}
}

func (s *VotingService) GetMetrics() MetricsResponse {
	return s.metrics.GetMetrics()
}

// VerifyReceipt checks the signature and that the receipt still matches the
// block stored at its index.
func (s *VotingService) VerifyReceipt(r *receipt.Receipt) error {
	if err := s.signer.Verify(r); err != nil {
		return err
	}

	block, err := s.ledger.GetBlock(r.BlockIndex)
	if err != nil {
		return fmt.Errorf("%w: %v", receipt.ErrInvalidReceipt, err)
	}
	if block.Hash != r.BlockHash {
		return fmt.Errorf("%w: block %d hash mismatch", receipt.ErrInvalidReceipt, r.BlockIndex)
	}
	for _, tx := range block.Transactions {
		if tx.IsVote() && tx.VoterID == r.VoterID {
			return nil
		}
	}
	return fmt.Errorf("%w: voter not found in block %d", receipt.ErrInvalidReceipt, r.BlockIndex)
}

func (s *VotingService) Close(ctx context.Context) error {
	return s.ledger.Close(ctx)
}
