package wire

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// ErrMalformed marks payloads that do not decode to a valid envelope.
// The driver drops such datagrams and keeps running.
var ErrMalformed = errors.New("malformed message")

var msgpackHandle = &codec.MsgpackHandle{}

// Encode serializes an envelope to datagram bytes.
func Encode(env *Envelope) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, msgpackHandle).Encode(env); err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Kind, err)
	}
	return buf, nil
}

// Decode parses datagram bytes into an envelope. Truncated, trailing or
// otherwise unrecognizable payloads return ErrMalformed.
func Decode(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := codec.NewDecoderBytes(payload, msgpackHandle).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind < Ping || env.Kind > Gossip {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, env.Kind)
	}
	if env.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	if env.Kind == PingReq && env.Target == "" {
		return nil, fmt.Errorf("%w: ping-req without target", ErrMalformed)
	}
	return &env, nil
}

// EncodeSnapshotBudget serializes a Sync envelope with as many snapshot
// entries as fit within maxSize bytes. Entries beyond the budget are left
// for the next anti-entropy round rather than fragmenting the datagram.
func EncodeSnapshotBudget(env *Envelope, snapshot []Event, maxSize int) ([]byte, int, error) {
	env.Snapshot = nil
	buf, err := Encode(env)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) > maxSize {
		return nil, 0, fmt.Errorf("%s message of %d bytes exceeds datagram size %d", env.Kind, len(buf), maxSize)
	}

	attached := 0
	for _, ev := range snapshot {
		env.Snapshot = append(env.Snapshot, ev)
		next, err := Encode(env)
		if err != nil {
			return nil, 0, err
		}
		if len(next) > maxSize {
			env.Snapshot = env.Snapshot[:attached]
			break
		}
		buf = next
		attached++
	}
	return buf, attached, nil
}

// EncodeBudget serializes env with as many of the candidate piggyback
// events as fit within maxSize bytes, most important first. It returns
// the payload and how many events were attached. A message that exceeds
// the budget with zero events attached is an error: the sender must not
// fragment.
func EncodeBudget(env *Envelope, events []Event, maxSize int) ([]byte, int, error) {
	env.Events = nil
	buf, err := Encode(env)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) > maxSize {
		return nil, 0, fmt.Errorf("%s message of %d bytes exceeds datagram size %d", env.Kind, len(buf), maxSize)
	}

	attached := 0
	for _, ev := range events {
		env.Events = append(env.Events, ev)
		next, err := Encode(env)
		if err != nil {
			return nil, 0, err
		}
		if len(next) > maxSize {
			env.Events = env.Events[:attached]
			break
		}
		buf = next
		attached++
	}
	return buf, attached, nil
}
