package types

// SOPState is the ordered incident lifecycle OpsSOP drives (§3, §4.8).
type SOPState string

const (
	SOPInit              SOPState = "Init"
	SOPDataCollected     SOPState = "Data_Collected"
	SOPRootCauseProposed SOPState = "Root_Cause_Proposed"
	SOPConsensus         SOPState = "Consensus"
	SOPSolution          SOPState = "Solution"
)

// Event names emitted by the OpsSOP contract, in the order they appear in
// spec §4.8.
const (
	EventDataCollected        = "DataCollected"
	EventRootCauseProposed    = "RootCauseProposed"
	EventConsensusReached     = "ConsensusReached"
	EventSolutionPhaseEntered = "SolutionPhaseEntered"
	EventProposalRejected     = "ProposalRejected"
)
