package models

import "time"

// Transaction kinds recorded on the ledger.
const (
	KindGenesis = "genesis"
	KindVote    = "vote"
)

// Transaction is either the genesis marker or a single cast vote.
// Vote fields are empty for the genesis kind.
type Transaction struct {
	Kind    string `json:"kind" bson:"kind"`
	VoterID string `json:"voter_id,omitempty" bson:"voter_id,omitempty"`
	Choice  string `json:"choice,omitempty" bson:"choice,omitempty"`
	CastAt  int64  `json:"cast_at,omitempty" bson:"cast_at,omitempty"` // Unix milliseconds
}

func NewGenesisTransaction() Transaction {
	return Transaction{Kind: KindGenesis}
}

func NewVoteTransaction(voterID, choice string, castAt time.Time) Transaction {
	return Transaction{
		Kind:    KindVote,
		VoterID: voterID,
		Choice:  choice,
		CastAt:  castAt.UnixMilli(),
	}
}

// IsVote reports whether the transaction counts towards the tally.
func (t Transaction) IsVote() bool {
	return t.Kind == KindVote
}
