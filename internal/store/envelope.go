package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// envelope wraps a persisted record set with a checksum over the payload
// bytes. Tampered or torn files fail the checksum and are treated as empty
// rather than trusted.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	Checksum string          `json:"checksum"`
}

// seal marshals the payload and wraps it with its checksum.
func seal(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	sum := sha256.Sum256(raw)
	data, err := json.MarshalIndent(envelope{
		Payload:  raw,
		Checksum: hex.EncodeToString(sum[:]),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// open verifies the envelope checksum and unmarshals the payload into out.
func open(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return fmt.Errorf("envelope checksum mismatch")
	}

	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
