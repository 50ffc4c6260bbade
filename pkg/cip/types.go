// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// SignalType identifies the class of a join: digital, analog, or
// serial. Each has a single-character tag, returned by Tag;
// SubscriptionKey holds the SignalType value itself, not the tag.
type SignalType int

const (
	SignalDigital SignalType = iota
	SignalAnalog
	SignalSerial
)

// Tag returns the single-character subscription-key tag for the signal
// type ("D", "A", or "S").
func (s SignalType) Tag() string {
	switch s {
	case SignalDigital:
		return "D"
	case SignalAnalog:
		return "A"
	case SignalSerial:
		return "S"
	default:
		return "?"
	}
}

func (s SignalType) String() string {
	switch s {
	case SignalDigital:
		return "digital"
	case SignalAnalog:
		return "analog"
	case SignalSerial:
		return "serial"
	default:
		return fmt.Sprintf("SignalType(%d)", int(s))
	}
}

// JoinID is a 16-bit join number. Valid range for the public API is
// 1..4000 inclusive; on the wire the value is transmitted as JoinID-1.
type JoinID uint16

// Valid reports whether j is within the public API's allowed range.
func (j JoinID) Valid() bool {
	return j >= MinJoinID && j <= MaxJoinID
}

// ConnectionState is the engine's TCP/session lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateRetrying
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// DebugLevel controls how much diagnostic output the engine's Logger
// emits.
type DebugLevel int

const (
	DebugOff DebugLevel = iota
	DebugLow
	DebugModerate
	DebugHigh
)

// SubscriptionKey uniquely identifies a (signal type, join) pair that
// observers can subscribe to.
type SubscriptionKey struct {
	Type SignalType
	Join JoinID
}

// SignalValue is a tagged union delivered to subscribers alongside the
// signal type that discriminates which field is meaningful.
type SignalValue struct {
	Bool   bool
	U16    uint16
	String string
}

// SignalCallback receives join updates dispatched by the subscription
// registry.
type SignalCallback func(SignalType, JoinID, SignalValue)

// ConnectionStateCallback is invoked on every connection-state
// transition.
type ConnectionStateCallback func(ConnectionState)

// RegistrationStateCallback is invoked on every registration-state
// change.
type RegistrationStateCallback func(bool)

// Configuration is immutable after construction and fully determines
// an engine's identity, target, and optional observability hooks.
type Configuration struct {
	Host string
	Port uint16
	IPID uint8

	DebugLevel DebugLevel

	OnConnectionState  ConnectionStateCallback
	OnRegistrationState RegistrationStateCallback

	// Logger receives lifecycle and error output gated by DebugLevel.
	// Nil uses a default logger over log.Default().
	Logger *Logger

	// Metrics receives Prometheus instrumentation calls. Nil disables
	// metrics entirely (every call becomes a no-op).
	Metrics *Metrics

	// Tracer receives an OTel span around each connect attempt; the
	// registration handshake is not traced. Nil uses
	// otel.Tracer("cip"), itself a no-op unless an SDK is configured.
	Tracer trace.Tracer

	// Recorder, if set, receives a copy of every inbound/outbound frame
	// for offline diagnosis. Nil disables recording.
	Recorder FrameRecorder

	// DialTimeoutMS/WriteTimeoutMS are in milliseconds and default
	// (when zero or negative) to the protocol's fixed 2s values;
	// exposed only so tests can shrink them.
	DialTimeoutMS  int
	WriteTimeoutMS int
}

func (c *Configuration) port() uint16 {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

func (c *Configuration) dialTimeoutMS() int {
	if c.DialTimeoutMS <= 0 {
		return defaultConnectTimeoutMS
	}
	return c.DialTimeoutMS
}

func (c *Configuration) writeTimeoutMS() int {
	if c.WriteTimeoutMS <= 0 {
		return defaultWriteTimeoutMS
	}
	return c.WriteTimeoutMS
}

// FrameRecorder receives a copy of every inbound frame cut out of the
// stream by the frame reader and every encoded outbound frame written
// to the socket, for diagnostics. Implementations must
// not block the engine's lanes; pkg/ciptrace.Recorder satisfies this
// by buffering internally.
type FrameRecorder interface {
	RecordInbound(raw []byte)
	RecordOutbound(raw []byte)
}
