// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ciptrace records a CIP engine's inbound/outbound frames to an
// out-of-band CBOR log for offline diagnosis, separate from the
// engine's own Logger. It satisfies cip.FrameRecorder.
package ciptrace

import (
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/cip/pkg/cip"
)

// record is the CBOR map written once per frame. Grounded on the
// teacher's own pkg/fusain/cbor.go map-keyed payload convention
// (ParseCBORMessage decodes a map[int]interface{}), here keyed by
// field name instead of a compact int since a trace file is read by
// humans and tooling, not re-parsed on a hot path.
type record struct {
	Direction string `cbor:"direction"`
	UnixNanos int64  `cbor:"unix_nanos"`
	Signal    string `cbor:"signal,omitempty"`
	Join      uint16 `cbor:"join,omitempty"`
	Raw       []byte `cbor:"raw"`
}

// Recorder implements cip.FrameRecorder, CBOR-encoding one record per
// frame to an io.Writer (typically a file opened by the caller).
// RecordInbound/RecordOutbound never block the engine's lanes: they
// hand the frame to a buffered channel drained by a single background
// goroutine, and silently drop a frame rather than apply backpressure
// if that goroutine falls behind.
type Recorder struct {
	enc    *cbor.Encoder
	mu     sync.Mutex
	frames chan taggedFrame
	done   chan struct{}
	wg     sync.WaitGroup

	dropped int
}

type taggedFrame struct {
	direction string
	raw       []byte
	at        time.Time
}

// NewRecorder starts a Recorder writing to w. Close must be called to
// flush and release the background goroutine.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{
		enc:    cbor.NewEncoder(w),
		frames: make(chan taggedFrame, 1024),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for tf := range r.frames {
		r.write(tf)
	}
	close(r.done)
}

func (r *Recorder) write(tf taggedFrame) {
	signal, join := sniff(tf.raw)
	rec := record{
		Direction: tf.direction,
		UnixNanos: tf.at.UnixNano(),
		Signal:    signal,
		Join:      join,
		Raw:       tf.raw,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(rec) // a single bad record must not stop the trace
}

// RecordInbound records a frame read off the wire.
func (r *Recorder) RecordInbound(raw []byte) { r.record("in", raw) }

// RecordOutbound records a frame written to the wire.
func (r *Recorder) RecordOutbound(raw []byte) { r.record("out", raw) }

func (r *Recorder) record(direction string, raw []byte) {
	cp := append([]byte(nil), raw...)
	select {
	case r.frames <- taggedFrame{direction: direction, raw: cp, at: recordTime()}:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Dropped reports how many frames were discarded because the
// background writer fell behind.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting new frames and waits for the background writer
// to drain.
func (r *Recorder) Close() error {
	close(r.frames)
	<-r.done
	return nil
}

// recordTime is split out so tests can't trip over wall-clock skew in
// ordering assertions; production always uses time.Now.
var recordTime = time.Now

// sniff best-effort decodes a raw frame's signal type and join id for
// the trace record, without treating a decode failure as an error: a
// trace must capture every frame, including ones this build of the
// recorder doesn't know how to interpret.
func sniff(raw []byte) (signal string, join uint16) {
	if len(raw) < 3 {
		return "", 0
	}
	payload := raw[3:]
	switch raw[0] {
	case cip.FrameTypeData:
		sub, err := cip.DataSubframeKind(payload)
		if err != nil {
			return "", 0
		}
		switch sub {
		// inbound digital updates carry 0x00 at payload[3]; outbound ones
		// carry their kind byte there (0x00 standard, 0x27 button-style).
		case cip.DataSubDigital, 0x27:
			if dj, err := cip.DecodeDigital(payload); err == nil {
				return "digital", uint16(dj.Join)
			}
		case cip.DataSubAnalog:
			if dj, err := cip.DecodeAnalog(payload); err == nil {
				return "analog", uint16(dj.Join)
			}
		}
	case cip.FrameTypeSerial:
		if dj, err := cip.DecodeSerial(payload); err == nil {
			return "serial", uint16(dj.Join)
		}
	}
	return "", 0
}
