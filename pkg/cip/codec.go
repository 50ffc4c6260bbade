// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"encoding/binary"
)

// Pure encode/decode functions for CIP frames and join payloads. No
// I/O, no shared state. All multi-byte integers on the wire are
// big-endian except the byte-swapped digital join index (see
// EncodeDigital and DecodeDigital).

// frame builds a complete [type][len_be_u16][payload] frame.
func frame(frameType byte, payload []byte) []byte {
	out := make([]byte, 0, 3+len(payload))
	out = append(out, frameType)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out
}

// EncodeDigital encodes a digital join update.
//
// The wire join index is byte-swapped and the "low" state is folded
// into the high bit of the high byte; this is part of the wire
// contract, not an implementation choice — do not "fix" it.
func EncodeDigital(join JoinID, high bool, buttonStyle bool) ([]byte, error) {
	if !join.Valid() {
		return nil, ErrInvalidJoinNumber(join)
	}

	kind := byte(digitalKindStandard)
	if buttonStyle {
		kind = digitalKindButton
	}

	c := uint16(join) - 1
	packed := (c / 256) + ((c % 256) * 256)
	if !high {
		packed |= 0x80
	}

	var hiLo [2]byte
	binary.BigEndian.PutUint16(hiLo[:], packed)

	payload := []byte{0x00, 0x00, 0x03, kind, hiLo[0], hiLo[1]}
	return frame(frameTypeData, payload), nil
}

// EncodeAnalog encodes an analog join update.
func EncodeAnalog(join JoinID, value uint16) ([]byte, error) {
	if !join.Valid() {
		return nil, ErrInvalidJoinNumber(join)
	}

	var jBuf, vBuf [2]byte
	binary.BigEndian.PutUint16(jBuf[:], uint16(join)-1)
	binary.BigEndian.PutUint16(vBuf[:], value)

	payload := []byte{0x00, 0x00, 0x05, 0x14, jBuf[0], jBuf[1], vBuf[0], vBuf[1]}
	return frame(frameTypeData, payload), nil
}

// EncodeSerial encodes a serial join update. str must be 1..255 ASCII
// bytes.
func EncodeSerial(join JoinID, str string) ([]byte, error) {
	if !join.Valid() {
		return nil, ErrInvalidJoinNumber(join)
	}
	n := len(str)
	if n < MinSerialLen || n > MaxSerialLen {
		return nil, ErrInvalidStringLength(n)
	}

	innerLen := n + 4 // P
	var jBuf [2]byte
	binary.BigEndian.PutUint16(jBuf[:], uint16(join)-1)

	payload := make([]byte, 0, 7+n)
	payload = append(payload, 0x00, 0x00)
	payload = append(payload, byte(innerLen>>8), byte(innerLen))
	payload = append(payload, 0x34, jBuf[0], jBuf[1], 0x03)
	payload = append(payload, []byte(str)...)

	return frame(frameTypeSerial, payload), nil
}

// EncodeUpdateRequest builds the fixed manual-refresh frame.
func EncodeUpdateRequest() []byte {
	return []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x02, 0x03, 0x00}
}

// EncodeHeartbeat builds the fixed outbound heartbeat frame.
func EncodeHeartbeat() []byte {
	return []byte{0x0D, 0x00, 0x02, 0x00, 0x00}
}

// EncodeRegistrationReply builds the fixed registration-response frame
// sent after the processor's registration request, carrying the
// configured IPID.
func EncodeRegistrationReply(ipid uint8) []byte {
	return []byte{0x01, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x00, ipid, 0x40, 0xFF, 0xFF, 0xF1, 0x01}
}

// EncodeEndOfQueryReply builds the two frames emitted, in order, after
// receiving the end-of-query subframe (0x1C).
func EncodeEndOfQueryReply() [][]byte {
	return [][]byte{
		{0x05, 0x00, 0x05, 0x00, 0x00, 0x02, 0x03, 0x1D},
		EncodeHeartbeat(),
	}
}

// EncodeRegistrationSuccessReply builds the frame emitted after a
// successful registration response is parsed.
func EncodeRegistrationSuccessReply() []byte {
	return []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x02, 0x03, 0x00}
}

// DecodedJoin is the result of decoding an inbound digital/analog/
// serial join frame.
type DecodedJoin struct {
	Type  SignalType
	Join  JoinID
	Value SignalValue
}

// UpdateAction enumerates the engine-visible reactions to an inbound
// update subframe (type 0x05, payload[3] == 0x03).
type UpdateAction int

const (
	UpdateActionNone UpdateAction = iota
	UpdateActionEndOfQuery
	UpdateActionDateTime
)

// DecodeDigital decodes a digital join update payload (type 0x05,
// payload[3] == 0x00). payload is the frame's payload (without the
// 3-byte header).
func DecodeDigital(payload []byte) (DecodedJoin, error) {
	if len(payload) < 6 {
		return DecodedJoin{}, &FramingError{Reason: "digital payload too short"}
	}
	lo := payload[4]
	packedHi := payload[5]
	join := JoinID((uint16(packedHi&0x7F)<<8 | uint16(lo)) + 1)
	state := ((packedHi & 0x80) >> 7) ^ 1
	return DecodedJoin{
		Type:  SignalDigital,
		Join:  join,
		Value: SignalValue{Bool: state == 1},
	}, nil
}

// DecodeAnalog decodes an analog join update payload (type 0x05,
// payload[3] == 0x14).
func DecodeAnalog(payload []byte) (DecodedJoin, error) {
	if len(payload) < 8 {
		return DecodedJoin{}, &FramingError{Reason: "analog payload too short"}
	}
	join := JoinID((uint16(payload[4])<<8 | uint16(payload[5])) + 1)
	value := uint16(payload[6])<<8 | uint16(payload[7])
	return DecodedJoin{
		Type:  SignalAnalog,
		Join:  join,
		Value: SignalValue{U16: value},
	}, nil
}

// DecodeSerial decodes a serial join update payload (type 0x12).
func DecodeSerial(payload []byte) (DecodedJoin, error) {
	if len(payload) < 8 {
		return DecodedJoin{}, &FramingError{Reason: "serial payload too short"}
	}
	join := JoinID((uint16(payload[5])<<8 | uint16(payload[6])) + 1)
	text := string(payload[8:])
	return DecodedJoin{
		Type:  SignalSerial,
		Join:  join,
		Value: SignalValue{String: text},
	}, nil
}

// DecodeUpdateSubframe examines an update subframe (type 0x05,
// payload[3] == 0x03) and reports the engine-visible action.
func DecodeUpdateSubframe(payload []byte) (UpdateAction, error) {
	if len(payload) < 5 {
		return UpdateActionNone, &FramingError{Reason: "update subframe too short"}
	}
	switch payload[4] {
	case updateStandard, updatePenultima, updateEndQueryAck:
		return UpdateActionNone, nil
	case updateEndQuery:
		return UpdateActionEndOfQuery, nil
	default:
		return UpdateActionNone, nil
	}
}

// RegistrationResult is the decoded outcome of a registration response
// frame (type 0x02).
type RegistrationResult struct {
	Success bool
	Err     *RegistrationError
}

// DecodeRegistrationResponse decodes a type-0x02 frame payload.
func DecodeRegistrationResponse(payload []byte) RegistrationResult {
	switch {
	case len(payload) == 3 && payload[0] == 0xFF && payload[1] == 0xFF && payload[2] == 0x02:
		return RegistrationResult{Success: false, Err: &RegistrationError{Reason: RegistrationIPIDRejected}}
	case len(payload) == 4 && payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x00 && payload[3] == 0x1F:
		return RegistrationResult{Success: true}
	default:
		return RegistrationResult{Success: false, Err: &RegistrationError{Reason: RegistrationUnknownResponse}}
	}
}

// dataSubframeKind reports which dataSub* constant a type-0x05
// payload's payload[3] byte identifies, for engine dispatch.
func dataSubframeKind(payload []byte) (byte, error) {
	if len(payload) < 4 {
		return 0, &FramingError{Reason: "data frame payload too short"}
	}
	return payload[3], nil
}

// DataSubframeKind is the exported form of dataSubframeKind, for
// external consumers (pkg/ciptrace) that need to classify a data frame
// without re-deriving the engine's dispatch logic.
func DataSubframeKind(payload []byte) (byte, error) {
	return dataSubframeKind(payload)
}
