package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"vote-ledger/config"
	"vote-ledger/models"
	"vote-ledger/storage"
)

var errNoLedger = errors.New("no ledger state found")

type report struct {
	Blocks     int
	Voters     int
	Voted      int
	LatestHash string
	Err        error
}

// loadState reads the ledger without creating anything on disk.
func loadState(ctx context.Context, cfg *config.Config) (*models.LedgerState, error) {
	if cfg.StoreBackend == storage.BackendJSON {
		if _, err := os.Stat(cfg.StorageDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", errNoLedger, cfg.StorageDir)
		} else if err != nil {
			return nil, err
		}
	}

	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	state, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || len(state.Chain) == 0 {
		return nil, errNoLedger
	}
	return state, nil
}

func verify(state *models.LedgerState, difficulty int) report {
	r := report{
		Blocks:     len(state.Chain),
		Voters:     len(state.Voters),
		LatestHash: state.Chain[len(state.Chain)-1].Hash,
		Err:        models.ValidateChain(state.Chain, difficulty),
	}
	for _, v := range state.Voters {
		if v.HasVoted {
			r.Voted++
		}
	}
	return r
}

func chainTable(blocks []models.Block) pterm.TableData {
	data := pterm.TableData{{"Index", "Created", "Votes", "Nonce", "Hash", "Previous"}}
	for _, b := range blocks {
		votes := 0
		for _, tx := range b.Transactions {
			if tx.IsVote() {
				votes++
			}
		}
		data = append(data, []string{
			strconv.FormatUint(b.Index, 10),
			time.UnixMilli(b.CreatedAt).UTC().Format(time.RFC3339),
			strconv.Itoa(votes),
			strconv.FormatUint(b.Nonce, 10),
			short(b.Hash),
			short(b.PrevHash),
		})
	}
	return data
}

// resultsTable orders choices by votes, then by name.
func resultsTable(blocks []models.Block) pterm.TableData {
	results := models.Tally(blocks)
	choices := make([]string, 0, len(results))
	for c := range results {
		choices = append(choices, c)
	}
	sort.Slice(choices, func(i, j int) bool {
		if results[choices[i]] != results[choices[j]] {
			return results[choices[i]] > results[choices[j]]
		}
		return choices[i] < choices[j]
	})

	data := pterm.TableData{{"Choice", "Votes"}}
	for _, c := range choices {
		data = append(data, []string{c, strconv.Itoa(results[c])})
	}
	return data
}

func statusTable(r report) pterm.TableData {
	valid := pterm.LightGreen("valid")
	if r.Err != nil {
		valid = pterm.LightRed(fmt.Sprintf("invalid: %v", r.Err))
	}
	return pterm.TableData{
		{"Blocks", strconv.Itoa(r.Blocks)},
		{"Registered voters", strconv.Itoa(r.Voters)},
		{"Voted", strconv.Itoa(r.Voted)},
		{"Latest hash", r.LatestHash},
		{"Chain", valid},
	}
}

func short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
