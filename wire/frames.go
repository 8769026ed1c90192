package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	decode "roamlink/tools/decode"
)

// Envelope is the on-wire frame: one named event plus its payload.
// Both transports speak this shape; the socket adapter writes it
// directly, the channel adapter nests it inside broadcast messages.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseFrameJSON decodes a raw frame. Unknown trailing fields are
// ignored so relay-side additions don't break older clients.
func ParseFrameJSON(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("frame missing event name")
	}
	return env, nil
}

// BuildFrame encodes an event and payload into wire bytes.
func BuildFrame(event Event, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodePayload 将信封负载解码到业务结构体 T。
// 先过一遍 map 再交给 decode.Struct，容忍数值类型漂移。
func DecodePayload[T any](env *Envelope) (*T, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("envelope %q has no data", env.Event)
	}
	var m map[string]any
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, fmt.Errorf("payload of %q is not an object: %w", env.Event, err)
	}
	return decode.Struct[T](m)
}

// DecodeSnapshot handles users-update, whose payload may be either a
// bare array of users or an object with a users field. Both shapes
// exist in the wild, so accept both.
func DecodeSnapshot(env *Envelope) (*UserSnapshot, error) {
	if env == nil {
		return nil, fmt.Errorf("empty snapshot")
	}
	data := bytes.TrimLeft(env.Data, " \t\r\n")
	if len(data) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	if data[0] == '[' {
		var users []UserState
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot array: %w", err)
		}
		return &UserSnapshot{Users: users}, nil
	}
	return DecodePayload[UserSnapshot](env)
}
