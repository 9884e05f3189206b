package api

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/receipt"
	"vote-ledger/registry"
	"vote-ledger/service"
)

// VotingBackend is the part of the voting service the HTTP layer needs.
type VotingBackend interface {
	RegisterVoter(ctx context.Context) (string, error)
	CastVote(ctx context.Context, voterID, choice string) (*service.VoteConfirmation, error)
	GetChain() service.ChainResponse
	GetBlock(index uint64) (models.Block, error)
	GetResults() models.Results
	ValidateChain() error
	GetStatus() service.ServiceStatus
	GetMetrics() service.MetricsResponse
	Candidates() []string
	VerifyReceipt(r *receipt.Receipt) error
}

type Options struct {
	PublicDir      string
	RequestTimeout time.Duration
}

type Server struct {
	app     *fiber.App
	backend VotingBackend
	timeout time.Duration
}

type RegisterVoterResponse struct {
	VoterID string `json:"voter_id"`
}

type CastVoteRequest struct {
	VoterID string `json:"voter_id"`
	Choice  string `json:"choice"`
}

// legacyVoteRequest is the body accepted on /votar
type legacyVoteRequest struct {
	VoterID string `json:"eleitor_id"`
	Choice  string `json:"voto"`
}

type CastVoteResponse struct {
	Success bool             `json:"success"`
	Block   models.Block     `json:"block"`
	Receipt *receipt.Receipt `json:"receipt,omitempty"`
}

type VotingResults struct {
	Results models.Results `json:"results"`
	Total   int            `json:"total_votes"`
}

type ValidationResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(backend VotingBackend, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		backend: backend,
		timeout: opts.RequestTimeout,
	}

	s.app.Use(cors.New())

	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")
	api.Post("/register", s.handleRegisterVoter)
	api.Post("/vote", s.handleCastVote)
	api.Get("/chain", s.handleGetChain)
	api.Get("/chain/:index", s.handleGetBlock)
	api.Get("/results", s.handleGetResults)
	api.Get("/validate", s.handleValidateChain)
	api.Get("/status", s.handleGetStatus)
	api.Get("/metrics", s.handleGetMetrics)
	api.Get("/candidates", s.handleGetCandidates)
	api.Post("/receipts/verify", s.handleVerifyReceipt)

	// Routes of the first web client
	s.app.Post("/cadastrar_eleitor", s.handleLegacyRegister)
	s.app.Post("/votar", s.handleLegacyVote)
	s.app.Get("/chain", s.handleLegacyChain)
	s.app.Get("/resultados", s.handleLegacyResults)

	if opts.PublicDir != "" {
		s.app.Static("/", opts.PublicDir)
	}

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Printf("Starting server on %s...", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleRegisterVoter(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	voterID, err := s.backend.RegisterVoter(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RegisterVoterResponse{VoterID: voterID})
}

func (s *Server) handleCastVote(c *fiber.Ctx) error {
	var req CastVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	return s.castVote(c, req.VoterID, req.Choice)
}

func (s *Server) castVote(c *fiber.Ctx, voterID, choice string) error {
	if strings.TrimSpace(voterID) == "" || strings.TrimSpace(choice) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing fields"})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	conf, err := s.backend.CastVote(ctx, voterID, choice)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(CastVoteResponse{Success: true, Block: conf.Block, Receipt: conf.Receipt})
}

func (s *Server) handleGetChain(c *fiber.Ctx) error {
	return c.JSON(s.backend.GetChain())
}

func (s *Server) handleGetBlock(c *fiber.Ctx) error {
	index, err := strconv.ParseUint(c.Params("index"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "block index must be a non-negative integer"})
	}

	block, err := s.backend.GetBlock(index)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(block)
}

func (s *Server) handleGetResults(c *fiber.Ctx) error {
	results := s.backend.GetResults()
	total := 0
	for _, n := range results {
		total += n
	}
	return c.JSON(VotingResults{Results: results, Total: total})
}

func (s *Server) handleValidateChain(c *fiber.Ctx) error {
	if err := s.backend.ValidateChain(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(ValidationResponse{Valid: false, Error: err.Error()})
	}
	return c.JSON(ValidationResponse{Valid: true})
}

func (s *Server) handleGetStatus(c *fiber.Ctx) error {
	return c.JSON(s.backend.GetStatus())
}

func (s *Server) handleGetMetrics(c *fiber.Ctx) error {
	return c.JSON(s.backend.GetMetrics())
}

func (s *Server) handleGetCandidates(c *fiber.Ctx) error {
	candidates := s.backend.Candidates()
	if candidates == nil {
		candidates = []string{}
	}
	return c.JSON(fiber.Map{"candidates": candidates})
}

func (s *Server) handleVerifyReceipt(c *fiber.Ctx) error {
	var r receipt.Receipt
	if err := c.BodyParser(&r); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if err := s.backend.VerifyReceipt(&r); err != nil {
		return c.Status(fiber.StatusOK).JSON(ValidationResponse{Valid: false, Error: err.Error()})
	}
	return c.JSON(ValidationResponse{Valid: true})
}

func (s *Server) handleLegacyRegister(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	voterID, err := s.backend.RegisterVoter(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"voterId": voterID})
}

func (s *Server) handleLegacyVote(c *fiber.Ctx) error {
	var req legacyVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	return s.castVote(c, req.VoterID, req.Choice)
}

func (s *Server) handleLegacyChain(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"chain": s.backend.GetChain().Chain})
}

func (s *Server) handleLegacyResults(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"results": s.backend.GetResults()})
}

// writeError maps ledger errors onto HTTP statuses: rejections are the
// caller's fault, persistence failures are ours.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotRegistered),
		errors.Is(err, registry.ErrAlreadyVoted),
		errors.Is(err, blockchain.ErrInvalidChoice):
		status = fiber.StatusBadRequest
	case errors.Is(err, blockchain.ErrBlockNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusServiceUnavailable
	default:
		log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
