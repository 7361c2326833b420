package backend

import (
	"bytes"
	"encoding/json"

	"github.com/pilixiaohui/testnovel/internal/apperr"
)

// PayloadKind tags the shape a payload arrived in.
type PayloadKind int

const (
	// PayloadInvalid is anything DecodeObject rejects.
	PayloadInvalid PayloadKind = iota
	// PayloadObject is a bare JSON object.
	PayloadObject
	// PayloadEnvelope is {"data": {...}}.
	PayloadEnvelope
	// PayloadString is a JSON string holding an object.
	PayloadString
)

// ClassifyPayload reports which shape raw has without decoding it further.
func ClassifyPayload(raw []byte) PayloadKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return PayloadInvalid
	}
	switch raw[0] {
	case '{':
		var head struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return PayloadInvalid
		}
		d := bytes.TrimSpace(head.Data)
		switch {
		case len(d) == 0 || bytes.Equal(d, []byte("null")):
			return PayloadObject
		case d[0] == '{':
			return PayloadEnvelope
		default:
			// a data key that holds a scalar or array
			return PayloadInvalid
		}
	case '"':
		return PayloadString
	default:
		return PayloadInvalid
	}
}

// DecodeObject unwraps raw into a JSON object. Accepted shapes are a bare
// object, a {"data": object} envelope, and a JSON string containing either.
// Everything else fails with apperr.ErrInvalidPayload, including an object
// whose data key is neither an object nor null.
func DecodeObject(raw []byte) (map[string]any, error) {
	return decodeObject(raw, true)
}

func decodeObject(raw []byte, allowString bool) (map[string]any, error) {
	switch ClassifyPayload(raw) {
	case PayloadObject:
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, apperr.Invalid("object expected: %v", err)
		}
		return out, nil
	case PayloadEnvelope:
		var env struct {
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, apperr.Invalid("object expected: %v", err)
		}
		return env.Data, nil
	case PayloadString:
		if !allowString {
			break
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperr.Invalid("string expected: %v", err)
		}
		return decodeObject([]byte(s), false)
	}
	return nil, apperr.Invalid("object expected")
}

// DecodeInto decodes an object payload of any accepted shape into v.
func DecodeInto(raw []byte, v any) error {
	obj, err := DecodeObject(raw)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return apperr.Invalid("re-encode object: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Invalid("%v", err)
	}
	return nil
}
