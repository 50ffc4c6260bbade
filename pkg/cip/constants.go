// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cip implements a client for the Crestron-over-IP (CIP)
// protocol: the TCP-framed binary protocol Crestron control processors
// use to exchange panel state with virtual touch-panel ("XPanel")
// clients.
//
// The package covers the protocol engine only — frame codec, framing,
// subscription dispatch, and the connection lifecycle with automatic
// reconnection. It does not discover processors, authenticate
// cryptographically, or speak the processor side of the protocol.
package cip

// Default TCP port CIP processors listen on.
const DefaultPort uint16 = 41794

// Join id bounds for the public API. On the wire a join id is
// transmitted as JoinId-1 (0-indexed).
const (
	MinJoinID = 1
	MaxJoinID = 4000
)

// Serial join payload length bounds.
const (
	MinSerialLen = 1
	MaxSerialLen = 255
)

// Inbound/outbound frame type bytes.
const (
	frameTypeHeartbeatA  = 0x0D
	frameTypeHeartbeatB  = 0x0E
	frameTypeData        = 0x05
	frameTypeSerial      = 0x12
	frameTypeRegRequest  = 0x0F
	frameTypeRegResponse = 0x02
	frameTypeDisconnect  = 0x03
	frameTypeRegReply    = 0x01
)

// Exported aliases of the two frame-type bytes an external diagnostic
// consumer (pkg/ciptrace) needs to classify a raw frame without
// duplicating the wire constants.
const (
	FrameTypeData   = frameTypeData
	FrameTypeSerial = frameTypeSerial
)

// Exported alias of the data-frame (FrameTypeData) digital/analog
// sub-type bytes, for the same reason.
const (
	DataSubDigital = dataSubDigital
	DataSubAnalog  = dataSubAnalog
)

// Data-frame (0x05) sub-type byte at payload[3].
const (
	dataSubDigital  = 0x00
	dataSubAnalog   = 0x14
	dataSubUpdate   = 0x03
	dataSubDateTime = 0x08
)

// Update-subframe command byte at payload[4] when payload[3] == dataSubUpdate.
const (
	updateStandard    = 0x00
	updatePenultima   = 0x16
	updateEndQuery    = 0x1C
	updateEndQueryAck = 0x1D
)

// Digital join "kind" byte.
const (
	digitalKindButton   = 0x27
	digitalKindStandard = 0x00
)

// Timing constants fixed by the protocol (§5 of the spec this engine
// implements); not configuration knobs. Only the connect and write
// timeouts can be overridden (Configuration.DialTimeoutMS and
// WriteTimeoutMS), so tests can shrink them.
const (
	defaultConnectTimeoutMS = 2000
	defaultWriteTimeoutMS   = 2000
	defaultReconnectDelayMS = 1000
	defaultRetryTimerMS     = 2000
	heartbeatIntervalMS     = 15000
	outboundPacingMS        = 1
)
