// Package reward implements the reward engine (§4.9): once a mined block
// emits ConsensusReached, it computes the Treasury-funded reward/penalty
// disbursements that follow a proposal's outcome. It produces plain data
// (Disbursement values); core/chain turns them into transactions signed
// with the Treasury key it holds and mines them in a follow-up block.
package reward

import (
	"opschain/core/types"
	"opschain/crypto"
)

// Fixed parameters for the gas rebate computation (§4.9): the rebate is
// defined against the vote transaction type's own minimum gas, not
// whatever gas a particular voter happened to submit with.
const (
	VoteGasLimit = 200
	VoteGasPrice = 1
	RebateRatio  = 0.7
)

// Disbursement is one Treasury-funded reward or penalty transaction the
// caller should construct, sign with the Treasury key and mine.
type Disbursement struct {
	Type       types.TxType
	Target     crypto.Address
	Amount     uint64
	Reputation int
	Memo       string
}

// GasRebate is floor(0.7 * vote_gas_limit * vote_gas_price) (§4.9).
func GasRebate() uint64 {
	return uint64(RebateRatio * float64(VoteGasLimit) * float64(VoteGasPrice))
}

// Passed computes the disbursements for ConsensusReached(true): proposer
// reward + bounty, for-voter rewards + gas rebates, against-voter
// penalties (§4.9).
func Passed(proposalID string, proposer crypto.Address, voters map[crypto.Address]types.VoteOption) []Disbursement {
	var out []Disbursement

	out = append(out, Disbursement{
		Type: types.TxReward, Target: proposer, Amount: 800, Reputation: 5,
		Memo: "Proposal Passed: " + proposalID,
	})
	out = append(out, Disbursement{
		Type: types.TxReward, Target: proposer, Amount: 1000, Reputation: 0,
		Memo: "Bounty: " + proposalID,
	})

	rebate := GasRebate()
	for addr, option := range voters {
		switch option {
		case types.VoteFor:
			out = append(out, Disbursement{
				Type: types.TxReward, Target: addr, Amount: 300, Reputation: 1,
				Memo: "Voting Support: " + proposalID,
			})
			out = append(out, Disbursement{
				Type: types.TxReward, Target: addr, Amount: rebate, Reputation: 0,
				Memo: "Gas Rebate (70%): " + proposalID,
			})
		case types.VoteAgainst:
			out = append(out, Disbursement{
				Type: types.TxPenalty, Target: addr, Amount: 50, Reputation: -1,
				Memo: "Against Passed: " + proposalID,
			})
		}
	}
	return out
}

// Rejected computes the disbursements for ConsensusReached(false):
// proposer penalty, for-voter penalties (§4.9).
func Rejected(proposalID string, proposer crypto.Address, voters map[crypto.Address]types.VoteOption) []Disbursement {
	out := []Disbursement{{
		Type: types.TxPenalty, Target: proposer, Amount: 300, Reputation: -5,
		Memo: "Proposal Failed: " + proposalID,
	}}

	for addr, option := range voters {
		if option == types.VoteFor {
			out = append(out, Disbursement{
				Type: types.TxPenalty, Target: addr, Amount: 100, Reputation: -1,
				Memo: "Support Failed: " + proposalID,
			})
		}
	}
	return out
}
