package types

import (
	"encoding/json"
	"fmt"

	"opschain/crypto"
)

// Event is one entry in the SOP's append-only log: a unique id, a name,
// a wall-clock timestamp, and an event-specific payload (§4.8, §6).
type Event struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"-"`
}

// NewEvent derives the event id as SHA-256(name|timestamp|payload) and
// returns the populated event, per §4.8.
func NewEvent(name string, timestamp int64, payload map[string]interface{}) (Event, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadBytes, err := CanonicalizeMap(payload)
	if err != nil {
		return Event{}, fmt.Errorf("canonicalize event payload: %w", err)
	}
	material := fmt.Sprintf("%s|%d|%s", name, timestamp, payloadBytes)
	id := crypto.HashBytes([]byte(material)).String()
	return Event{ID: id, Name: name, Timestamp: timestamp, Payload: payload}, nil
}

// MarshalJSON flattens id/name/timestamp and the payload into a single
// object, matching the `{id, name, timestamp, …payload}` wire shape (§6).
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Payload)+3)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["id"] = e.ID
	flat["name"] = e.Name
	flat["timestamp"] = e.Timestamp
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs an Event from its flattened wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if v, ok := flat["id"].(string); ok {
		e.ID = v
		delete(flat, "id")
	}
	if v, ok := flat["name"].(string); ok {
		e.Name = v
		delete(flat, "name")
	}
	if v, ok := flat["timestamp"].(float64); ok {
		e.Timestamp = int64(v)
		delete(flat, "timestamp")
	}
	e.Payload = flat
	return nil
}
