// Package governance implements the governance contract (§4.4): weighted
// voting, tally recomputation, consensus-threshold checks against the
// OpsSOP state machine, and direct root-cause proposal submission.
package governance

import (
	"errors"
	"fmt"

	"opschain/core/state"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/native/opssop"
)

// ErrPrecondition mirrors token.ErrPrecondition for governance-level
// failures (bad vote option, proposing outside Data_Collected).
var ErrPrecondition = errors.New("governance: precondition failed")

// ComputeWeight is the canonical vote-weight formula (§4.4): it guarantees
// weight >= 1 and rewards reputation and stake linearly but cheaply. This
// supersedes an earlier `max(1, stake*reputation/100)` formula found in
// an older source revision; that formula is not implemented (DESIGN.md).
func ComputeWeight(acc *types.Account) float64 {
	reputationBonus := float64(acc.Reputation-50) / 10
	if reputationBonus < 0 {
		reputationBonus = 0
	}
	return 1.0 + reputationBonus + float64(acc.Stake)/1000
}

// voteRecord is one voter's current ballot on a proposal, keyed by
// address so a re-vote overwrites in place.
type voteRecord struct {
	option types.VoteOption
	weight float64
}

// Index is the in-memory proposal index governance owns: proposals keyed
// by id, plus the per-proposal voter records the tally is always
// recomputed from (§4.4 point 5 — "never from the incoming delta"). This
// replaces the teacher's full-account-scan lookup with a direct index.
type Index struct {
	proposals map[string]*types.Proposal
	votes     map[string]map[crypto.Address]voteRecord
}

// NewIndex returns an empty proposal index.
func NewIndex() *Index {
	return &Index{
		proposals: make(map[string]*types.Proposal),
		votes:     make(map[string]map[crypto.Address]voteRecord),
	}
}

// Get returns the proposal by id, or nil if unknown.
func (idx *Index) Get(proposalID string) *types.Proposal {
	return idx.proposals[proposalID]
}

// Voters returns each participating voter's ballot option for proposalID,
// used by the reward engine to compute post-consensus disbursements.
func (idx *Index) Voters(proposalID string) map[crypto.Address]types.VoteOption {
	records := idx.votes[proposalID]
	out := make(map[crypto.Address]types.VoteOption, len(records))
	for addr, rec := range records {
		out[addr] = rec.option
	}
	return out
}

func (idx *Index) put(p *types.Proposal) {
	idx.proposals[p.ProposalID] = p
	if idx.votes[p.ProposalID] == nil {
		idx.votes[p.ProposalID] = make(map[crypto.Address]voteRecord)
	}
}

func (idx *Index) recomputeTally(proposalID string) types.Tally {
	var tally types.Tally
	for _, rec := range idx.votes[proposalID] {
		switch rec.option {
		case types.VoteFor:
			tally.For += rec.weight
		case types.VoteAgainst:
			tally.Against += rec.weight
		case types.VoteAbstain:
			tally.Abstain += rec.weight
		}
	}
	return tally
}

func totalParticipatingWeight(records map[crypto.Address]voteRecord) float64 {
	var total float64
	for _, rec := range records {
		total += rec.weight
	}
	return total
}

// Vote implements the vote{proposal_id, option} transaction handler
// (§4.4). It auto-materialises a synthetic proposal when the referenced
// one is unknown (liveness: votes may race ahead of proposal
// persistence — this behavior is inherited unreviewed from the original
// source, see DESIGN.md), records the voter's ballot, recomputes the
// proposal's tally from all current voter records, and checks consensus.
func Vote(tx *types.Transaction, batch *state.Batch, idx *Index, sop *opssop.Machine) error {
	proposalID := tx.DataString("proposal_id")
	option := types.VoteOption(tx.DataString("option"))
	if proposalID == "" || !option.Valid() {
		return ErrPrecondition
	}

	proposal := idx.Get(proposalID)
	if proposal == nil {
		proposal = &types.Proposal{
			ProposalID: proposalID,
			Proposer:   tx.Sender,
			Content:    fmt.Sprintf("Auto-created proposal for vote %s", proposalID),
			Timestamp:  tx.Timestamp,
			Status:     types.ProposalPending,
		}
		idx.put(proposal)
		if err := attachProposal(batch, tx.Sender, proposal); err != nil {
			return err
		}
	}

	voter, err := batch.GetOrCreate(tx.Sender)
	if err != nil {
		return err
	}

	weight := ComputeWeight(voter)
	idx.votes[proposalID][tx.Sender] = voteRecord{option: option, weight: weight}

	voteCopy := &types.Vote{ProposalID: proposalID, Option: option, Weight: weight, Timestamp: tx.Timestamp}
	voter.Votes[proposalID] = voteCopy
	batch.Put(voter)

	proposal.Votes = idx.recomputeTally(proposalID)
	if err := syncProposalCopy(batch, proposal); err != nil {
		return err
	}

	return checkConsensus(proposal, idx, sop, tx.Timestamp)
}

// checkConsensus implements §4.4 point 6: only participating accounts
// count toward the denominator. Failing to advance the SOP because this
// proposal is not the one currently gating it (ErrWrongState /
// ErrProposalMismatch) is not a vote failure — it just means this
// proposal's consensus is informational only, not SOP-governing.
func checkConsensus(proposal *types.Proposal, idx *Index, sop *opssop.Machine, timestamp int64) error {
	records := idx.votes[proposal.ProposalID]
	total := totalParticipatingWeight(records)
	if total <= 0 {
		return nil
	}

	var passed, rejected bool
	if proposal.Votes.For > 0.5*total && len(records) > 0 {
		passed = true
	} else if proposal.Votes.Against > 0.5*total {
		rejected = true
	} else {
		return nil
	}

	err := sop.Advance(proposal.ProposalID, passed, timestamp)
	switch {
	case err == nil:
		if passed {
			proposal.Status = types.ProposalPassed
		} else if rejected {
			proposal.Status = types.ProposalRejected
		}
		return nil
	case errors.Is(err, opssop.ErrWrongState), errors.Is(err, opssop.ErrProposalMismatch):
		return nil
	default:
		return err
	}
}

// ProposeRootCause implements the direct propose_root_cause submission
// (§4.4): legal only in Data_Collected, computes the canonical proposal
// id, attaches the proposal to the proposer's account, and transitions
// the SOP machine (which emits RootCauseProposed).
func ProposeRootCause(tx *types.Transaction, batch *state.Batch, idx *Index, sop *opssop.Machine) error {
	content := tx.DataString("content")
	if content == "" {
		return ErrPrecondition
	}
	if sop.State() != types.SOPDataCollected {
		return ErrPrecondition
	}

	proposalID := types.ComputeProposalID(tx.Sender, tx.Timestamp, content)
	proposal := &types.Proposal{
		ProposalID: proposalID,
		Proposer:   tx.Sender,
		Content:    content,
		Timestamp:  tx.Timestamp,
		Status:     types.ProposalPending,
	}
	idx.put(proposal)
	if err := attachProposal(batch, tx.Sender, proposal); err != nil {
		return err
	}

	if err := sop.ProposeRootCause(proposalID, tx.Sender.String(), content, tx.Timestamp); err != nil {
		return err
	}
	return nil
}

func attachProposal(batch *state.Batch, proposer crypto.Address, proposal *types.Proposal) error {
	acc, err := batch.GetOrCreate(proposer)
	if err != nil {
		return err
	}
	acc.RootCauseProposals[proposal.ProposalID] = proposal.Clone()
	batch.Put(acc)
	return nil
}

func syncProposalCopy(batch *state.Batch, proposal *types.Proposal) error {
	acc, err := batch.GetOrCreate(proposal.Proposer)
	if err != nil {
		return err
	}
	acc.RootCauseProposals[proposal.ProposalID] = proposal.Clone()
	batch.Put(acc)
	return nil
}
