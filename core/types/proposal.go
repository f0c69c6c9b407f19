package types

import (
	"fmt"

	"opschain/crypto"
)

// ProposalStatus tracks a root-cause proposal's lifecycle (§3).
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
)

// VoteOption enumerates the three ballot choices.
type VoteOption string

const (
	VoteFor     VoteOption = "for"
	VoteAgainst VoteOption = "against"
	VoteAbstain VoteOption = "abstain"
)

// Valid reports whether o is one of the enumerated vote options.
func (o VoteOption) Valid() bool {
	switch o {
	case VoteFor, VoteAgainst, VoteAbstain:
		return true
	default:
		return false
	}
}

// Tally is the weighted sum of ballots cast on a proposal, per option.
type Tally struct {
	For     float64 `json:"for"`
	Against float64 `json:"against"`
	Abstain float64 `json:"abstain"`
}

// Proposal is a root-cause hypothesis awaiting weighted vote (§3).
type Proposal struct {
	ProposalID string         `json:"proposal_id"`
	Proposer   crypto.Address `json:"proposer"`
	Content    string         `json:"content"`
	Timestamp  int64          `json:"timestamp"`
	Votes      Tally          `json:"votes"`
	Status     ProposalStatus `json:"status"`
}

// Clone returns a shallow copy (Tally is a value type, safe to copy).
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// ComputeProposalID computes the canonical proposal id: SHA-256(proposer|timestamp|content).
func ComputeProposalID(proposer crypto.Address, timestamp int64, content string) string {
	material := fmt.Sprintf("%s|%d|%s", proposer.String(), timestamp, content)
	return crypto.HashBytes([]byte(material)).String()
}
