package types

// Vote is one voter's current ballot on a proposal. At most one Vote
// exists per (voter, proposal_id); a re-vote overwrites it in place (§3).
type Vote struct {
	ProposalID string     `json:"proposal_id"`
	Option     VoteOption `json:"option"`
	Weight     float64    `json:"weight"`
	Timestamp  int64      `json:"timestamp"`
}
