package models

import "time"

// VoterRecord is the registry entry kept for every issued identity.
type VoterRecord struct {
	RegisteredAt int64 `json:"registered_at" bson:"registered_at"` // Unix milliseconds
	HasVoted     bool  `json:"has_voted" bson:"has_voted"`
}

func NewVoterRecord(registeredAt time.Time) VoterRecord {
	return VoterRecord{RegisteredAt: registeredAt.UnixMilli()}
}
