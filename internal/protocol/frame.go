// Package protocol implements the Deezer Connect control-channel wire
// format (spec.md §4.7): JSON envelopes multiplexing several logical
// channels over one WebSocket, with either JSON or protobuf bodies.
package protocol

import (
	"encoding/base64"
	"encoding/json"

	"pleezer/internal/perrors"
)

// Frame is one multiplexed message on the control WebSocket.
type Frame struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Channel string          `json:"channel"`
	Body    json.RawMessage `json:"body"`
}

// DecodeFrame parses the outer JSON envelope. The Body's interpretation
// (JSON command or base64-wrapped protobuf) depends on Channel, decided by
// the caller via DecodeProtobufBody/json.Unmarshal on Body.
func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, perrors.NewProtocol("decoding frame envelope", err)
	}
	return &f, nil
}

// EncodeFrame serializes a Frame for transmission.
func EncodeFrame(f *Frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, perrors.NewProtocol("encoding frame envelope", err)
	}
	return raw, nil
}

// JSONBody marshals v and wraps it as a Frame's Body.
func JSONBody(v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, perrors.NewProtocol("encoding json body", err)
	}
	return raw, nil
}

// ProtobufBody wraps protobuf-encoded bytes as a Frame's Body: Deezer
// Connect's JSON envelope carries protobuf payloads base64-encoded inside
// a JSON string, not as raw bytes (the transport is a text WebSocket
// frame, so it can't carry arbitrary binary inline).
func ProtobufBody(wire []byte) (json.RawMessage, error) {
	encoded := base64.StdEncoding.EncodeToString(wire)
	raw, err := json.Marshal(encoded)
	if err != nil {
		return nil, perrors.NewProtocol("encoding protobuf body", err)
	}
	return raw, nil
}

// DecodeProtobufBody reverses ProtobufBody.
func DecodeProtobufBody(body json.RawMessage) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, perrors.NewProtocol("decoding protobuf body envelope", err)
	}
	wire, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, perrors.NewProtocol("base64-decoding protobuf body", err)
	}
	return wire, nil
}
