// File: models/types.go
package models

// LedgerState is the single durable artifact: the full chain plus the voter map.
type LedgerState struct {
	Chain  []Block                `json:"chain" bson:"chain"`
	Voters map[string]VoterRecord `json:"voters" bson:"voters"`
}

// Results maps a candidate label to its vote count. Candidates without votes are absent.
type Results map[string]int

// Tally counts vote transactions across blocks by choice.
func Tally(blocks []Block) Results {
	results := make(Results)
	for _, block := range blocks {
		for _, tx := range block.Transactions {
			if tx.IsVote() {
				results[tx.Choice]++
			}
		}
	}
	return results
}
