package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vote-ledger/api"
	"vote-ledger/config"
	"vote-ledger/receipt"
	"vote-ledger/service"
	"vote-ledger/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	votingService, feed, err := initializeVotingService(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize voting service: %v", err)
	}

	server := api.NewServer(votingService, api.Options{
		PublicDir:      cfg.PublicDir,
		RequestTimeout: cfg.RequestTimeout,
	})

	if feed != nil {
		feed.Start(cfg.WSPort)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		serverChan <- server.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-serverChan:
		log.Printf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
	if feed != nil {
		if err := feed.Close(ctx); err != nil {
			log.Printf("Error closing block feed: %v", err)
		}
	}
	if err := votingService.Close(ctx); err != nil {
		log.Printf("Error closing ledger: %v", err)
	}
	log.Println("Server shutdown completed")
}

func initializeVotingService(cfg *config.Config) (*service.VotingService, *api.BlockFeed, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, nil, err
	}

	signer, err := receipt.LoadOrGenerate(cfg.KeyFile)
	if err != nil {
		store.Close(ctx)
		return nil, nil, err
	}

	var feed *api.BlockFeed
	var publisher service.BlockPublisher
	if cfg.WSPort != 0 {
		feed = api.NewBlockFeed()
		publisher = feed
	}

	votingService, err := service.NewVotingService(ctx, service.Config{
		Store:           store,
		Signer:          signer,
		Publisher:       publisher,
		Difficulty:      cfg.Difficulty,
		Candidates:      cfg.Candidates,
		MaxChoiceLength: cfg.MaxChoiceLength,
		VerifyOnLoad:    cfg.VerifyOnLoad,
	})
	if err != nil {
		store.Close(ctx)
		return nil, nil, err
	}

	return votingService, feed, nil
}
