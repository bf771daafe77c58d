package ciphergate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape distinguishes plain JSON bodies from encrypted envelopes.
type Shape int

const (
	ShapePlain Shape = iota
	ShapeEncrypted
)

func (s Shape) String() string {
	if s == ShapeEncrypted {
		return "encrypted"
	}
	return "plain"
}

// Envelope is the wire form of an encrypted body.
type Envelope struct {
	Encrypted bool   `json:"encrypted"`
	Data      string `json:"data"`
}

// Body is an inbound body classified by shape.
type Body struct {
	Shape Shape
	// Data is the base64 ciphertext for ShapeEncrypted.
	Data string
	// Raw is the untouched request body.
	Raw []byte
}

// ParseBody classifies raw. A body is encrypted only when it is a JSON
// object whose "encrypted" member is literally true.
func ParseBody(raw []byte) Body {
	body := Body{Shape: ShapePlain, Raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return body
	}
	var encrypted bool
	if err := json.Unmarshal(fields["encrypted"], &encrypted); err != nil || !encrypted {
		return body
	}
	body.Shape = ShapeEncrypted
	// A non-string data member leaves Data empty and fails decryption.
	_ = json.Unmarshal(fields["data"], &body.Data)
	return body
}

// Open returns the plaintext bytes of b, decrypting when it is an envelope.
func (b Body) Open(keyMaterial string) ([]byte, error) {
	if b.Shape == ShapePlain {
		return b.Raw, nil
	}
	return Decrypt(b.Data, keyMaterial)
}

// SealJSON marshals v and wraps it in an encrypted envelope.
func SealJSON(v any, keyMaterial string) (Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	data, err := Encrypt(payload, keyMaterial)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Encrypted: true, Data: data}, nil
}
