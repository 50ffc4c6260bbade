// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"testing"
	"time"
)

// readyClient connects and registers a Client against a fakeSocket and
// returns once it is ready to send, so facade-operation tests don't
// each have to repeat the handshake.
func readyClient(t *testing.T) (*Client, *fakeSocket) {
	t.Helper()
	sock := newFakeSocket()
	regStates := make(chan bool, 8)
	cfg := Configuration{
		Host:                "fake-host",
		IPID:                1,
		OnRegistrationState: func(r bool) { regStates <- r },
	}
	client := NewClient(cfg, WithSocketFactory(func() Socket { return sock }))
	client.Connect(true)

	sock.events <- SocketEvent{Bytes: frame(frameTypeRegRequest, nil)}
	sock.events <- SocketEvent{Bytes: frame(frameTypeRegResponse, []byte{0x00, 0x00, 0x00, 0x1F})}
	waitForRegState(t, regStates, true)
	// the post-registration reply is enqueued before the registration-state
	// callback fires; wait for the writer lane to actually drain it so
	// callers can rely on a stable write-count baseline.
	waitForWriteCount(t, sock, 2)

	return client, sock
}

func TestClient_Disconnect_BeforeConnect_IsNoop(t *testing.T) {
	client := NewClient(Configuration{Host: "fake-host"})
	client.Disconnect()
}

func TestClient_Connect_IsIdempotentWhileConnected(t *testing.T) {
	client, _ := readyClient(t)
	defer client.Close()

	before := client.ConnectionState()
	client.Connect(true)
	client.Connect(true)
	if client.ConnectionState() != before {
		t.Fatalf("second Connect changed state from %v to %v", before, client.ConnectionState())
	}
}

func TestClient_Pulse_SendsPressThenRelease(t *testing.T) {
	client, sock := readyClient(t)
	defer client.Close()

	// two registration-flow writes already happened: the registration
	// reply and the post-registration reply.
	base := sock.writeCount()

	if err := client.Pulse(7); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	waitForWriteCount(t, sock, base+2)

	press, _ := EncodeDigital(7, true, true)
	release, _ := EncodeDigital(7, false, true)
	if !bytesEqual(sock.writeAt(base), press) {
		t.Errorf("first Pulse write = % X, want press % X", sock.writeAt(base), press)
	}
	if !bytesEqual(sock.writeAt(base+1), release) {
		t.Errorf("second Pulse write = % X, want release % X", sock.writeAt(base+1), release)
	}
}

func TestClient_SendSerial(t *testing.T) {
	client, sock := readyClient(t)
	defer client.Close()

	base := sock.writeCount()
	if err := client.SendSerial(5, "hello"); err != nil {
		t.Fatalf("SendSerial: %v", err)
	}
	waitForWriteCount(t, sock, base+1)

	want, _ := EncodeSerial(5, "hello")
	if !bytesEqual(sock.writeAt(base), want) {
		t.Errorf("SendSerial wrote % X, want % X", sock.writeAt(base), want)
	}
}

func TestClient_SendSerial_RejectsEmptyString(t *testing.T) {
	client, _ := readyClient(t)
	defer client.Close()

	if err := client.SendSerial(1, ""); err == nil {
		t.Fatal("expected an error sending an empty serial string")
	}
}

func TestClient_SendUpdateRequest(t *testing.T) {
	client, sock := readyClient(t)
	defer client.Close()

	base := sock.writeCount()
	if err := client.SendUpdateRequest(); err != nil {
		t.Fatalf("SendUpdateRequest: %v", err)
	}
	waitForWriteCount(t, sock, base+1)

	if !bytesEqual(sock.writeAt(base), EncodeUpdateRequest()) {
		t.Errorf("SendUpdateRequest wrote % X, want % X", sock.writeAt(base), EncodeUpdateRequest())
	}
}

func TestClient_Close_StopsAcceptingWrites(t *testing.T) {
	client, _ := readyClient(t)
	client.Close()

	// give the engine's goroutines a moment to fully unwind after Close.
	time.Sleep(20 * time.Millisecond)

	if client.ConnectionState() != StateDisconnected {
		t.Fatalf("state after Close = %v, want disconnected", client.ConnectionState())
	}
	if err := client.Press(1); err == nil {
		t.Fatal("expected a StateError sending after Close")
	}
}
