package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vote-ledger/models"
)

const ledgerFileName = "ledger.json"

// JSONStore keeps the ledger state in a single JSON file.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	// Create storage directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %v", err)
	}

	return &JSONStore{basePath: basePath}, nil
}

// Path returns the location of the ledger file.
func (s *JSONStore) Path() string {
	return filepath.Join(s.basePath, ledgerFileName)
}

func (s *JSONStore) Load(ctx context.Context) (*models.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var state models.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}

	return &state, nil
}

func (s *JSONStore) Save(ctx context.Context, state *models.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	path := s.Path()

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath) // Clean up temp file if rename fails
		return fmt.Errorf("failed to save ledger file: %w", err)
	}

	return nil
}

func (s *JSONStore) Close(ctx context.Context) error {
	return nil
}
