// Package protocol defines the websocket wire format: a JSON envelope
// carrying either an inbound participant action or an outbound hub event.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/classpoll/internal/domain"
)

// Envelope is the frame sent in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return frame, nil
}

func decodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed frame: %v", domain.ErrBadRequest, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: frame has no type", domain.ErrBadRequest)
	}
	return env, nil
}

func decodeData(env Envelope, target any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", domain.ErrBadRequest, env.Type, err)
	}
	return nil
}
