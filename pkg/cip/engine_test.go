// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSocket is a Socket test double. It never dials anything; tests
// drive it directly by pushing SocketEvents and inspecting recorded
// writes. Grounded on the teacher's own preference for hand-rolled
// fakes over a mocking library (cmd/connection.go's SerialConnection/
// WebSocketConnection are themselves thin, test-friendly wrappers).
type fakeSocket struct {
	mu         sync.Mutex
	events     chan SocketEvent
	writes     [][]byte
	connectErr error
	writeErr   error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{events: make(chan SocketEvent, 64)}
}

func (s *fakeSocket) Connect(ctx context.Context, host string, port uint16) error {
	return s.connectErr
}

func (s *fakeSocket) Write(ctx context.Context, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), b...))
	return nil
}

func (s *fakeSocket) Disconnect() error { return nil }

func (s *fakeSocket) Notifications() <-chan SocketEvent { return s.events }

func (s *fakeSocket) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *fakeSocket) writeAt(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[i]
}

const testTimeout = 2 * time.Second

func waitForConnState(t *testing.T, ch <-chan ConnectionState, want ConnectionState) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for connection state %v", want)
		}
	}
}

func waitForRegState(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case r := <-ch:
			if r == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for registration state %v", want)
		}
	}
}

func waitForWriteCount(t *testing.T, sock *fakeSocket, want int) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for {
		if sock.writeCount() >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d writes, got %d", want, sock.writeCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_RegistrationHandshakeAndDispatch(t *testing.T) {
	sock := newFakeSocket()
	connStates := make(chan ConnectionState, 8)
	regStates := make(chan bool, 8)

	cfg := Configuration{
		Host:                "fake-host",
		IPID:                3,
		OnConnectionState:   func(s ConnectionState) { connStates <- s },
		OnRegistrationState: func(r bool) { regStates <- r },
	}

	client := NewClient(cfg, WithSocketFactory(func() Socket { return sock }))
	defer client.Close()

	digital := make(chan SignalValue, 1)
	client.Subscribe(SignalDigital, 1, func(_ SignalType, _ JoinID, v SignalValue) { digital <- v })

	client.Connect(true)

	waitForConnState(t, connStates, StateConnecting)
	waitForConnState(t, connStates, StateConnected)

	sock.events <- SocketEvent{Bytes: frame(frameTypeRegRequest, nil)}
	waitForWriteCount(t, sock, 1)
	if want := EncodeRegistrationReply(cfg.IPID); !bytesEqual(sock.writeAt(0), want) {
		t.Fatalf("registration reply = % X, want % X", sock.writeAt(0), want)
	}

	sock.events <- SocketEvent{Bytes: frame(frameTypeRegResponse, []byte{0x00, 0x00, 0x00, 0x1F})}
	waitForRegState(t, regStates, true)
	waitForWriteCount(t, sock, 2)
	if want := EncodeRegistrationSuccessReply(); !bytesEqual(sock.writeAt(1), want) {
		t.Fatalf("post-registration reply = % X, want % X", sock.writeAt(1), want)
	}

	if !client.Registered() || client.ConnectionState() != StateConnected {
		t.Fatalf("client state = (%v, registered=%t), want (connected, true)", client.ConnectionState(), client.Registered())
	}

	// inbound digital updates carry the standard kind byte (0x00) at
	// payload[3], which is what the engine dispatches on.
	digitalFrame, err := EncodeDigital(1, true, false)
	if err != nil {
		t.Fatalf("EncodeDigital: %v", err)
	}
	sock.events <- SocketEvent{Bytes: digitalFrame}

	select {
	case v := <-digital:
		if !v.Bool {
			t.Error("dispatched digital value = false, want true")
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for subscriber dispatch")
	}

	if err := client.Press(2); err != nil {
		t.Fatalf("Press: %v", err)
	}
	waitForWriteCount(t, sock, 3)
	want, _ := EncodeDigital(2, true, true)
	if !bytesEqual(sock.writeAt(2), want) {
		t.Fatalf("Press wrote % X, want % X", sock.writeAt(2), want)
	}
}

func TestClient_SendBeforeReady_ReturnsStateError(t *testing.T) {
	client := NewClient(Configuration{Host: "fake-host"})
	err := client.Press(1)
	if err == nil {
		t.Fatal("expected a StateError, got nil")
	}
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("got error %v (%T), want *StateError", err, err)
	}
}

func TestClient_EncodeError_RejectsOutOfRangeJoin(t *testing.T) {
	client := NewClient(Configuration{Host: "fake-host"})
	err := client.SetAnalog(0, 1)
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("got error %v (%T), want *EncodeError", err, err)
	}
}

func TestClient_IPIDRejected_DisablesAutoReconnect(t *testing.T) {
	sock := newFakeSocket()
	connStates := make(chan ConnectionState, 8)

	cfg := Configuration{
		Host:              "fake-host",
		IPID:              9,
		OnConnectionState: func(s ConnectionState) { connStates <- s },
	}
	client := NewClient(cfg, WithSocketFactory(func() Socket { return sock }))
	defer client.Close()

	client.Connect(true)
	waitForConnState(t, connStates, StateConnected)

	sock.events <- SocketEvent{Bytes: frame(frameTypeRegResponse, []byte{0xFF, 0xFF, 0x02})}

	waitForConnState(t, connStates, StateDisconnected)

	err := client.LastError()
	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("LastError = %v (%T), want *RegistrationError", err, err)
	}
	if regErr.Reason != RegistrationIPIDRejected {
		t.Fatalf("RegistrationError.Reason = %v, want IPIDRejected", regErr.Reason)
	}

	select {
	case s := <-connStates:
		t.Fatalf("unexpected further connection-state transition %v: auto-reconnect should be disabled after IPID rejection", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
