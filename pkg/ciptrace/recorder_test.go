// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ciptrace

import (
	"bytes"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/cip/pkg/cip"
)

func TestRecorder_WritesOneRecordPerFrame(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	digital, err := cip.EncodeDigital(1, true, true)
	if err != nil {
		t.Fatalf("EncodeDigital: %v", err)
	}
	r.RecordOutbound(digital)
	r.RecordInbound(cip.EncodeHeartbeat())

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dec := cbor.NewDecoder(&buf)
	var records []record
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			break
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Direction != "out" || records[0].Signal != "digital" || records[0].Join != 1 {
		t.Errorf("first record = %+v, want direction=out signal=digital join=1", records[0])
	}
	if records[1].Direction != "in" || records[1].Signal != "" {
		t.Errorf("second record = %+v, want direction=in signal=\"\" (heartbeat unclassified)", records[1])
	}
}

func TestRecorder_DropsWhenChannelFull(t *testing.T) {
	blocked := make(chan struct{})
	var buf bytes.Buffer
	r := &Recorder{
		enc:    cbor.NewEncoder(&buf),
		frames: make(chan taggedFrame), // unbuffered: a send only succeeds while run() is receiving
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go func() {
		<-blocked // hold the writer off so the channel send below has to contend
		r.run()
	}()

	// with no buffer and the writer parked, neither record call has
	// anywhere to go, so each is dropped rather than blocking.
	go r.RecordOutbound(cip.EncodeHeartbeat())
	time.Sleep(10 * time.Millisecond)
	r.record("out", cip.EncodeHeartbeat())

	if r.Dropped() == 0 {
		t.Error("expected at least one dropped frame under backpressure")
	}

	close(blocked)
	r.Close()
}

func TestSniff_ClassifiesJoinTypes(t *testing.T) {
	analog, err := cip.EncodeAnalog(9, 42)
	if err != nil {
		t.Fatalf("EncodeAnalog: %v", err)
	}
	if signal, join := sniff(analog); signal != "analog" || join != 9 {
		t.Errorf("sniff(analog) = (%q, %d), want (analog, 9)", signal, join)
	}

	serial, err := cip.EncodeSerial(3, "hi")
	if err != nil {
		t.Fatalf("EncodeSerial: %v", err)
	}
	if signal, join := sniff(serial); signal != "serial" || join != 3 {
		t.Errorf("sniff(serial) = (%q, %d), want (serial, 3)", signal, join)
	}

	if signal, _ := sniff(cip.EncodeHeartbeat()); signal != "" {
		t.Errorf("sniff(heartbeat) = %q, want empty", signal)
	}
}
