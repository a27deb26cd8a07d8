package router

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a raw frame into a typed Event.
//
// The frame must be a JSON object with a non-empty string "type" and an
// object "payload". Known types must carry their identifier field
// (operation_id or rule_id). Unrecognised types decode to Unknown.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: payload for %q is not an object", ErrMalformedFrame, env.Type)
	}

	switch env.Type {
	case TypeSyncProgress:
		var p SyncProgress
		if err := decodeOperation(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
		}
		return p, nil

	case TypeSyncComplete:
		var p SyncComplete
		if err := decodeOperation(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
		}
		return p, nil

	case TypeCleanupProgress:
		var p CleanupProgress
		if err := decodeRule(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
		}
		return p, nil

	case TypeCleanupComplete:
		var p CleanupComplete
		if err := decodeRule(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
		}
		return p, nil

	default:
		return Unknown{MsgType: env.Type, Payload: append(json.RawMessage(nil), payload...)}, nil
	}
}

func decodeOperation(payload []byte, v any) error {
	var id operationWire
	if err := json.Unmarshal(payload, &id); err != nil {
		return err
	}
	if id.OperationID == nil {
		return fmt.Errorf("missing operation_id")
	}
	return json.Unmarshal(payload, v)
}

func decodeRule(payload []byte, v any) error {
	var id ruleWire
	if err := json.Unmarshal(payload, &id); err != nil {
		return err
	}
	if id.RuleID == nil {
		return fmt.Errorf("missing rule_id")
	}
	return json.Unmarshal(payload, v)
}
