// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"context"
	"sync"
	"time"
)

// engine is the connection state machine: it owns the socket, the
// outbound queue, the timers, the registry, and the connection/
// registration state. Grounded on the teacher's cmd/control.go
// connectionManager — a mutex-guarded connection handle, a reader
// goroutine, and a reconnect loop — generalized from a TUI's
// connection manager into a standalone, embeddable engine.
type engine struct {
	cfg       *Configuration
	newSocket func() Socket
	logger    *Logger
	metrics   *Metrics

	reg *registry
	fr  *FrameReader

	stateMu    sync.Mutex
	state      ConnectionState
	registered bool
	lastErr    error
	sock       Socket

	outbound chan outboundBatch

	quit chan struct{}
	done chan struct{}

	wg sync.WaitGroup
}

type outboundBatch struct {
	frames     [][]byte
	frameTypes []string
}

type disconnectReason int

const (
	reasonUserDisconnect disconnectReason = iota
	reasonSocketClosed
	reasonFramingError
	reasonIPIDRejected
	reasonControlSystemDisconnect
)

func newEngine(cfg *Configuration, newSocket func() Socket) *engine {
	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger(cfg.DebugLevel, nil)
	}
	e := &engine{
		cfg:       cfg,
		newSocket: newSocket,
		logger:    logger,
		metrics:   cfg.Metrics,
		reg:       newRegistry(),
		fr:        NewFrameReader(),
		state:     StateDisconnected,
		outbound:  make(chan outboundBatch, 256),
	}
	e.wg.Add(1)
	go e.writerLoop()
	return e
}

// snapshot returns the current (state, registered) pair under lock.
func (e *engine) snapshot() (ConnectionState, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state, e.registered
}

func (e *engine) setState(s ConnectionState) {
	e.stateMu.Lock()
	changed := e.state != s
	e.state = s
	e.stateMu.Unlock()
	if changed {
		e.metrics.setConnectionState(s)
		if e.cfg.OnConnectionState != nil {
			e.cfg.OnConnectionState(s)
		}
	}
}

func (e *engine) setRegistered(r bool) {
	e.stateMu.Lock()
	changed := e.registered != r
	e.registered = r
	e.stateMu.Unlock()
	if changed {
		e.metrics.setRegistered(r)
		if e.cfg.OnRegistrationState != nil {
			e.cfg.OnRegistrationState(r)
		}
	}
}

func (e *engine) setLastErr(err error) {
	e.stateMu.Lock()
	e.lastErr = err
	e.stateMu.Unlock()
}

func (e *engine) getLastErr() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastErr
}

func (e *engine) currentSocket() Socket {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.sock
}

func (e *engine) setCurrentSocket(s Socket) {
	e.stateMu.Lock()
	e.sock = s
	e.stateMu.Unlock()
}

// ready reports whether a send operation is currently permitted.
func (e *engine) ready() bool {
	state, registered := e.snapshot()
	return state == StateConnected && registered
}

// enqueue pushes a pre-encoded batch onto the single outbound lane.
// Every outbound frame — user-initiated or engine-initiated — goes
// through here, so writes are always serialized and paced.
func (e *engine) enqueue(frameType string, frames ...[]byte) {
	types := make([]string, len(frames))
	for i := range frames {
		types[i] = frameType
	}
	select {
	case e.outbound <- outboundBatch{frames: frames, frameTypes: types}:
	default:
		e.logger.errorf("outbound queue full, dropping %s frame(s)", frameType)
	}
}

// writerLoop is the outbound lane: the only writer to the socket. It
// drains the queue, writing one frame per iteration with a 1ms pacing
// sleep between frames, because the processor is known to drop
// messages issued too closely back-to-back.
func (e *engine) writerLoop() {
	defer e.wg.Done()
	for batch := range e.outbound {
		for i, frame := range batch.frames {
			sock := e.currentSocket()
			if sock == nil {
				e.logger.errorf("write suppressed: not connected")
				break
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.writeTimeoutMS())*time.Millisecond)
			err := sock.Write(ctx, frame)
			cancel()
			if err != nil {
				e.logger.errorf("write failed: %v", err)
				e.setLastErr(&TransportError{Op: "write", Err: err})
				sock.Disconnect()
				break
			}
			e.metrics.frameSent(batch.frameTypes[i])
			e.logger.frameDump("OUT", frame)
			if e.cfg.Recorder != nil {
				e.cfg.Recorder.RecordOutbound(frame)
			}
			time.Sleep(outboundPacingMS * time.Millisecond)
		}
	}
}

// close stops the writer lane permanently. Called once, when the
// Client is being torn down for good (not a normal disconnect, which
// may reconnect later).
func (e *engine) close() {
	close(e.outbound)
	e.wg.Wait()
}

// run drives the connect/retry loop until quit is closed or
// auto-reconnect is exhausted (disabled, or permanently barred by an
// IPIDRejected registration failure). It is started as its own
// goroutine by Client.Connect and returns once the engine is fully
// disconnected with no further reconnection pending.
func (e *engine) run(autoReconnect bool, quit, done chan struct{}) {
	defer close(done)
	defer e.setState(StateDisconnected)

	for {
		sock, err := e.attemptConnect(quit)
		if err != nil {
			if !autoReconnect {
				return
			}
			e.metrics.reconnect()
			e.setState(StateRetrying)
			select {
			case <-time.After(defaultRetryTimerMS * time.Millisecond):
				continue
			case <-quit:
				return
			}
		}

		reason := e.runSession(sock, quit)
		e.setRegistered(false)
		e.setCurrentSocket(nil)

		switch reason {
		case reasonUserDisconnect:
			return
		case reasonIPIDRejected:
			e.logger.errorf("registration rejected: IPID does not exist; auto-reconnect disabled for this client")
			return
		}

		if !autoReconnect {
			return
		}

		e.metrics.reconnect()
		e.setState(StateRetrying)
		select {
		case <-time.After(defaultReconnectDelayMS * time.Millisecond):
			continue
		case <-quit:
			return
		}
	}
}

// attemptConnect performs one TCP connect attempt with the protocol's
// fixed 2s timeout.
func (e *engine) attemptConnect(quit chan struct{}) (Socket, error) {
	e.setState(StateConnecting)

	ctx, span := startSpan(context.Background(), e.cfg.Tracer, "cip.connect")
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.dialTimeoutMS())*time.Millisecond)
	defer cancel()

	sock := e.newSocket()
	err := sock.Connect(dialCtx, e.cfg.Host, e.cfg.port())
	span(err)
	if err != nil {
		e.logger.lifecyclef("connect failed: %v", err)
		e.setLastErr(&TransportError{Op: "connect", Err: err})
		return nil, err
	}

	e.logger.lifecyclef("connected to %s:%d", e.cfg.Host, e.cfg.port())
	e.setLastErr(nil)
	e.setCurrentSocket(sock)
	e.setState(StateConnected)
	return sock, nil
}

// runSession handles one live connection: reading, dispatching,
// replying, and heartbeating, until the socket drops or the caller
// disconnects.
func (e *engine) runSession(sock Socket, quit chan struct{}) disconnectReason {
	e.fr.Reset()

	var heartbeatTimer *time.Timer
	var heartbeatC <-chan time.Time

	defer func() {
		if heartbeatTimer != nil {
			heartbeatTimer.Stop()
		}
	}()

	notifications := sock.Notifications()

	for {
		select {
		case <-quit:
			sock.Disconnect()
			return reasonUserDisconnect

		case evt, ok := <-notifications:
			if !ok {
				return reasonSocketClosed
			}
			if evt.Disconnected {
				if e.fr.HasPending() {
					ferr := &FramingError{Reason: "connection dropped mid-frame"}
					e.logger.errorf("%v", ferr)
					e.setLastErr(ferr)
				} else if evt.Err != nil {
					e.setLastErr(&TransportError{Op: "read", Err: evt.Err})
				}
				if evt.Err != nil {
					e.logger.lifecyclef("disconnected: %v", evt.Err)
				} else {
					e.logger.lifecyclef("disconnected")
				}
				return reasonSocketClosed
			}

			e.logger.frameDump("IN", evt.Bytes)

			frames, ferr := e.fr.Feed(evt.Bytes)
			for _, f := range frames {
				if e.cfg.Recorder != nil {
					e.cfg.Recorder.RecordInbound(frame(f.Type, f.Payload))
				}
				exit, reason := e.handleFrame(f, &heartbeatTimer, &heartbeatC)
				if exit {
					sock.Disconnect()
					return reason
				}
			}
			if ferr != nil {
				e.logger.errorf("framing error: %v", ferr)
				e.setLastErr(ferr)
				sock.Disconnect()
				return reasonFramingError
			}

		case <-heartbeatC:
			e.enqueue("heartbeat", EncodeHeartbeat())
			e.metrics.heartbeat()
			heartbeatTimer.Reset(heartbeatIntervalMS * time.Millisecond)
		}
	}
}

// handleFrame decodes one frame and applies its engine-visible effect:
// a registry dispatch, a reply enqueue, a state change, or a request
// that the session end (registration rejected, processor-initiated
// disconnect).
func (e *engine) handleFrame(f Frame, heartbeatTimer **time.Timer, heartbeatC *<-chan time.Time) (exit bool, reason disconnectReason) {
	e.metrics.frameReceived(frameTypeLabel(f.Type))

	switch f.Type {
	case frameTypeHeartbeatA, frameTypeHeartbeatB:
		e.logger.eventf("heartbeat received")

	case frameTypeRegRequest:
		e.logger.lifecyclef("registration request received, replying with IPID %d", e.cfg.IPID)
		e.enqueue("registration_reply", EncodeRegistrationReply(e.cfg.IPID))

	case frameTypeRegResponse:
		result := DecodeRegistrationResponse(f.Payload)
		if result.Success {
			e.logger.lifecyclef("registered")
			e.enqueue("registration_success", EncodeRegistrationSuccessReply())
			e.setRegistered(true)
			*heartbeatTimer = time.NewTimer(heartbeatIntervalMS * time.Millisecond)
			*heartbeatC = (*heartbeatTimer).C
			return false, 0
		}
		e.logger.errorf("registration failed: %s", result.Err.Reason)
		e.setLastErr(result.Err)
		if result.Err.Reason == RegistrationIPIDRejected {
			return true, reasonIPIDRejected
		}
		return true, reasonSocketClosed

	case frameTypeDisconnect:
		e.logger.lifecyclef("control-system-initiated disconnect")
		return true, reasonControlSystemDisconnect

	case frameTypeData:
		e.handleDataFrame(f.Payload)

	case frameTypeSerial:
		dj, err := DecodeSerial(f.Payload)
		if err != nil {
			e.logger.errorf("serial decode: %v", err)
			return false, 0
		}
		e.logger.eventf("serial join %d = %q", dj.Join, dj.Value.String)
		e.reg.dispatch(e.logger, dj.Type, dj.Join, dj.Value)

	default:
		e.logger.eventf("unrecognized frame type 0x%02X, ignored", f.Type)
	}

	return false, 0
}

func (e *engine) handleDataFrame(payload []byte) {
	sub, err := dataSubframeKind(payload)
	if err != nil {
		e.logger.errorf("data frame: %v", err)
		return
	}

	switch sub {
	case dataSubDigital:
		dj, err := DecodeDigital(payload)
		if err != nil {
			e.logger.errorf("digital decode: %v", err)
			return
		}
		e.logger.eventf("digital join %d = %t", dj.Join, dj.Value.Bool)
		e.reg.dispatch(e.logger, dj.Type, dj.Join, dj.Value)

	case dataSubAnalog:
		dj, err := DecodeAnalog(payload)
		if err != nil {
			e.logger.errorf("analog decode: %v", err)
			return
		}
		e.logger.eventf("analog join %d = %d", dj.Join, dj.Value.U16)
		e.reg.dispatch(e.logger, dj.Type, dj.Join, dj.Value)

	case dataSubUpdate:
		action, err := DecodeUpdateSubframe(payload)
		if err != nil {
			e.logger.errorf("update subframe: %v", err)
			return
		}
		if action == UpdateActionEndOfQuery {
			e.logger.lifecyclef("end-of-query, replying")
			reply := EncodeEndOfQueryReply()
			e.enqueue("end_of_query_reply", reply...)
		}

	case dataSubDateTime:
		e.logger.eventf("date/time subframe received")

	default:
		e.logger.eventf("unrecognized data subframe 0x%02X, ignored", sub)
	}
}

func frameTypeLabel(t byte) string {
	switch t {
	case frameTypeHeartbeatA, frameTypeHeartbeatB:
		return "heartbeat"
	case frameTypeData:
		return "data"
	case frameTypeSerial:
		return "serial"
	case frameTypeRegRequest:
		return "registration_request"
	case frameTypeRegResponse:
		return "registration_response"
	case frameTypeDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}
