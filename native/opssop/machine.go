// Package opssop implements the OpsSOP contract (§4.8): a five-state
// incident lifecycle machine plus its append-only event log, the root
// cause for a root-cause-analysis chain having both.
package opssop

import (
	"errors"
	"sync"

	"opschain/core/types"
)

// ErrWrongState is returned when a transition is attempted from a state
// that does not permit it (§7 ContractPreconditionFailed).
var ErrWrongState = errors.New("opssop: illegal transition from current state")

// ErrProposalMismatch is returned by Advance when proposalID does not
// match the proposal currently in Root_Cause_Proposed.
var ErrProposalMismatch = errors.New("opssop: proposal id does not match current proposal")

// Machine is the sole owner of the incident's lifecycle state. It is not
// a package-level singleton (unlike the Python original's module-level
// instance): a Node aggregate constructs and owns exactly one.
type Machine struct {
	mu sync.Mutex

	state              types.SOPState
	incidentData       map[string]interface{}
	currentProposalID  string
	currentProposal    string // content of the proposal in flight, needed for SolutionPhaseEntered's root_cause payload
	currentProposerHex string

	events EventStore
}

// NewMachine returns a machine in Init state, logging to store.
func NewMachine(store EventStore) *Machine {
	return &Machine{
		state:        types.SOPInit,
		incidentData: map[string]interface{}{},
		events:       store,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() types.SOPState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IncidentData returns a copy of the recorded incident data.
func (m *Machine) IncidentData() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.incidentData))
	for k, v := range m.incidentData {
		out[k] = v
	}
	return out
}

// CurrentProposalID returns the proposal id awaiting consensus, or "" if
// none is in flight.
func (m *Machine) CurrentProposalID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentProposalID
}

func (m *Machine) emit(name string, timestamp int64, payload map[string]interface{}) error {
	event, err := types.NewEvent(name, timestamp, payload)
	if err != nil {
		return err
	}
	return m.events.Append(event)
}

// SubmitDataCollection legal only in Init; records submitter/summary/raw
// and transitions to Data_Collected, emitting DataCollected (§4.8).
func (m *Machine) SubmitDataCollection(submitterHex, summary string, raw map[string]interface{}, timestamp int64) error {
	m.mu.Lock()
	if m.state != types.SOPInit {
		m.mu.Unlock()
		return ErrWrongState
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	m.incidentData = map[string]interface{}{
		"submitter": submitterHex,
		"summary":   summary,
		"raw_data":  raw,
		"timestamp": timestamp,
	}
	m.state = types.SOPDataCollected
	m.mu.Unlock()

	return m.emit(types.EventDataCollected, timestamp, map[string]interface{}{
		"agent_id": submitterHex,
		"summary":  summary,
	})
}

// SubmitAnalysis is the [SUPPLEMENT] tx_type submit_analysis handler: it
// merges raw findings into incident_data without changing SOP state, and
// is legal in Init or Data_Collected only.
func (m *Machine) SubmitAnalysis(submitterHex string, findings map[string]interface{}, timestamp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.SOPInit && m.state != types.SOPDataCollected {
		return ErrWrongState
	}
	existing, _ := m.incidentData["raw_findings"].(map[string]interface{})
	if existing == nil {
		existing = map[string]interface{}{}
	}
	for k, v := range findings {
		existing[k] = v
	}
	existing["submitted_by"] = submitterHex
	m.incidentData["raw_findings"] = existing
	return nil
}

// ProposeRootCause legal only in Data_Collected; transitions to
// Root_Cause_Proposed and emits RootCauseProposed (§4.4, §4.8).
func (m *Machine) ProposeRootCause(proposalID, proposerHex, content string, timestamp int64) error {
	m.mu.Lock()
	if m.state != types.SOPDataCollected {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.state = types.SOPRootCauseProposed
	m.currentProposalID = proposalID
	m.currentProposal = content
	m.currentProposerHex = proposerHex
	m.mu.Unlock()

	return m.emit(types.EventRootCauseProposed, timestamp, map[string]interface{}{
		"proposal_id": proposalID,
		"proposer":    proposerHex,
		"content":     content,
	})
}

// Advance is called by the governance contract once a vote tips a
// proposal past threshold. Legal only from Root_Cause_Proposed, and only
// for the proposal currently in flight (§4.8).
func (m *Machine) Advance(proposalID string, passed bool, timestamp int64) error {
	m.mu.Lock()
	if m.state != types.SOPRootCauseProposed {
		m.mu.Unlock()
		return ErrWrongState
	}
	if proposalID != m.currentProposalID {
		m.mu.Unlock()
		return ErrProposalMismatch
	}

	if passed {
		m.state = types.SOPConsensus
		rootCause := m.currentProposal
		m.mu.Unlock()

		if err := m.emit(types.EventConsensusReached, timestamp, map[string]interface{}{
			"proposal_id": proposalID,
			"passed":      true,
		}); err != nil {
			return err
		}

		m.mu.Lock()
		m.state = types.SOPSolution
		m.mu.Unlock()

		return m.emit(types.EventSolutionPhaseEntered, timestamp, map[string]interface{}{
			"proposal_id": proposalID,
			"root_cause":  rootCause,
		})
	}

	proposer := m.currentProposerHex
	m.state = types.SOPDataCollected
	m.currentProposalID = ""
	m.currentProposal = ""
	m.currentProposerHex = ""
	m.mu.Unlock()

	if err := m.emit(types.EventConsensusReached, timestamp, map[string]interface{}{
		"proposal_id": proposalID,
		"passed":      false,
	}); err != nil {
		return err
	}
	return m.emit(types.EventProposalRejected, timestamp, map[string]interface{}{
		"proposal_id": proposalID,
		"proposer":    proposer,
	})
}

// Events returns up to limit events, optionally filtered by name.
func (m *Machine) Events(name string, limit int) ([]types.Event, error) {
	return m.events.List(name, limit)
}

// ResetForTesting restores Init state and clears incident data, the
// in-flight proposal and the event log, for deterministic test fixtures.
func (m *Machine) ResetForTesting() error {
	m.mu.Lock()
	m.state = types.SOPInit
	m.incidentData = map[string]interface{}{}
	m.currentProposalID = ""
	m.currentProposal = ""
	m.currentProposerHex = ""
	m.mu.Unlock()
	return m.events.Reset()
}
