package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lysyi3m/cal-comb/app/event"
)

type MessageType string

const (
	TypeSkipWaiting            MessageType = "SKIP_WAITING"
	TypeRegisterBackgroundSync MessageType = "REGISTER_BACKGROUND_SYNC"
	TypeRegisterPeriodicSync   MessageType = "REGISTER_PERIODIC_SYNC"
	TypeBackgroundSyncComplete MessageType = "BACKGROUND_SYNC_COMPLETE"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Message is one variant of the cross-context protocol
type Message interface {
	Type() MessageType
}

type SkipWaiting struct{}

type RegisterBackgroundSync struct {
	Tag string `json:"tag,omitempty"`
}

type RegisterPeriodicSync struct {
	Tag string `json:"tag,omitempty"`
	// Minimum seconds between periodic passes; PeriodicInterval when zero or lower
	MinInterval int `json:"minInterval,omitempty"`
}

type BackgroundSyncComplete struct {
	Result event.SyncResult
}

func (SkipWaiting) Type() MessageType            { return TypeSkipWaiting }
func (RegisterBackgroundSync) Type() MessageType { return TypeRegisterBackgroundSync }
func (RegisterPeriodicSync) Type() MessageType   { return TypeRegisterPeriodicSync }
func (BackgroundSyncComplete) Type() MessageType { return TypeBackgroundSyncComplete }

// Envelope is the wire form of a message
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack answers every foreground to background message
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ackErr(err error) Ack {
	return Ack{Success: false, Error: err.Error()}
}

func EncodeMessage(m Message) ([]byte, error) {
	var payload any
	switch msg := m.(type) {
	case SkipWaiting:
	case RegisterBackgroundSync, RegisterPeriodicSync:
		payload = msg
	case BackgroundSyncComplete:
		payload = msg.Result
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}

	env := Envelope{Type: m.Type()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", m.Type(), err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func DecodeMessage(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message envelope: %w", err)
	}

	switch env.Type {
	case TypeSkipWaiting:
		return SkipWaiting{}, nil
	case TypeRegisterBackgroundSync:
		var msg RegisterBackgroundSync
		err := decodePayload(env, &msg)
		return msg, err
	case TypeRegisterPeriodicSync:
		var msg RegisterPeriodicSync
		err := decodePayload(env, &msg)
		return msg, err
	case TypeBackgroundSyncComplete:
		var msg BackgroundSyncComplete
		err := decodePayload(env, &msg.Result)
		return msg, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}
