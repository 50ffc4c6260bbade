// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import "sync"

// Client is the public facade: the only type an embedder constructs
// directly. It wires a Configuration to an engine and exposes the
// operations documented for the protocol engine.
type Client struct {
	cfg    Configuration
	eng    *engine
	connMu sync.Mutex
	quit   chan struct{}
	done   chan struct{}
}

// ClientOption configures optional, non-protocol behavior of a Client
// (primarily useful for tests).
type ClientOption func(*clientOptions)

type clientOptions struct {
	newSocket func() Socket
}

// WithSocketFactory overrides how the Client constructs its transport.
// Production code never needs this; it exists so tests can inject a
// fake Socket.
func WithSocketFactory(f func() Socket) ClientOption {
	return func(o *clientOptions) { o.newSocket = f }
}

// NewClient constructs a Client in the disconnected state with an
// empty subscription registry, per the documented lifecycle.
func NewClient(cfg Configuration, opts ...ClientOption) *Client {
	o := clientOptions{newSocket: func() Socket { return NewTCPSocket() }}
	for _, opt := range opts {
		opt(&o)
	}
	cfgCopy := cfg
	return &Client{
		cfg: cfgCopy,
		eng: newEngine(&cfgCopy, o.newSocket),
	}
}

// Connect transitions the client through connecting -> connected ->
// (registration handshake) -> registered. autoReconnect, when true
// (the default callers should pass), re-establishes the session on any
// socket failure or remote disconnect other than an IPID rejection.
//
// Connect returns immediately; the handshake runs in the background
// and is observed via Subscribe callbacks and the connection/
// registration state callbacks configured in Configuration.
func (c *Client) Connect(autoReconnect bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if state, _ := c.eng.snapshot(); state != StateDisconnected {
		return
	}

	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.eng.run(autoReconnect, c.quit, c.done)
}

// Disconnect cancels all timers and any pending writes, closes the
// socket, and disables auto-reconnect. It blocks until the engine's
// background loop has fully stopped.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	quit, done := c.quit, c.done
	c.connMu.Unlock()

	if quit == nil {
		return
	}
	select {
	case <-quit:
	default:
		close(quit)
	}
	<-done
}

// Close permanently shuts down the client, including its outbound
// writer lane. After Close, the Client must not be reused.
func (c *Client) Close() {
	c.Disconnect()
	c.eng.close()
}

// Subscribe registers cb to observe every update of the given signal
// type and join. Subscribing before Connect guarantees the subscriber
// observes the initial burst of joins the processor emits on
// registration. There is no unsubscribe: the registry is append-only
// for the Client's lifetime.
func (c *Client) Subscribe(t SignalType, join JoinID, cb SignalCallback) {
	c.eng.reg.subscribe(t, join, cb)
}

// ConnectionState returns the current connection lifecycle state.
func (c *Client) ConnectionState() ConnectionState {
	state, _ := c.eng.snapshot()
	return state
}

// Registered returns whether the client is currently registered with
// the processor.
func (c *Client) Registered() bool {
	_, registered := c.eng.snapshot()
	return registered
}

// Metrics returns the configured Prometheus instruments, or nil if
// none were configured.
func (c *Client) Metrics() *Metrics {
	return c.eng.metrics
}

// LastError returns the most recent TransportError, FramingError, or
// RegistrationError observed, cleared on the next successful
// reconnect. Nil if none has occurred.
func (c *Client) LastError() error {
	return c.eng.getLastErr()
}

// send is the shared gate for every operation below: the frame is
// encoded first, so an EncodeError is reported whatever the connection
// state, and then §7's write-while-not-ready StateError check runs.
// Both are synchronous, with no bytes sent on failure.
func (c *Client) send(frameType string, build func() ([]byte, error)) error {
	frame, err := build()
	if err != nil {
		c.eng.logger.errorf("%v", err)
		return err
	}
	if !c.eng.ready() {
		state, registered := c.eng.snapshot()
		err := &StateError{State: state, Registered: registered}
		c.eng.logger.errorf("%v", err)
		return err
	}
	c.eng.enqueue(frameType, frame)
	return nil
}

// SetDigitalJoin sets a digital join high or low, optionally using the
// button-style encoding.
func (c *Client) SetDigitalJoin(join JoinID, high bool, buttonStyle bool) error {
	return c.send("digital", func() ([]byte, error) {
		return EncodeDigital(join, high, buttonStyle)
	})
}

// Press sets a digital join high, button-style.
func (c *Client) Press(join JoinID) error {
	return c.SetDigitalJoin(join, true, true)
}

// Release sets a digital join low, button-style.
func (c *Client) Release(join JoinID) error {
	return c.SetDigitalJoin(join, false, true)
}

// Pulse presses then releases a digital join as two separate, paced
// frames.
func (c *Client) Pulse(join JoinID) error {
	if err := c.Press(join); err != nil {
		return err
	}
	return c.Release(join)
}

// SetAnalog sets an analog join's value.
func (c *Client) SetAnalog(join JoinID, value uint16) error {
	return c.send("analog", func() ([]byte, error) {
		return EncodeAnalog(join, value)
	})
}

// SendSerial sends an ASCII string (1-255 bytes) to a serial join.
func (c *Client) SendSerial(join JoinID, str string) error {
	return c.send("serial", func() ([]byte, error) {
		return EncodeSerial(join, str)
	})
}

// SendUpdateRequest asks the processor to re-broadcast every join's
// current value.
func (c *Client) SendUpdateRequest() error {
	return c.send("update_request", func() ([]byte, error) {
		return EncodeUpdateRequest(), nil
	})
}
