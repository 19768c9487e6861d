// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Compile-time interface check.
var _ Transport = (*WebSocket)(nil)

// Subprotocols the Janus gateway expects on its WebSocket transports.
const (
	apiSubprotocol   = "janus-protocol"
	adminSubprotocol = "janus-admin-protocol"
)

// DefaultPingInterval is the ping cadence before the server announces
// its session timeout. Janus defaults to a 60-second session timeout;
// pinging well under half of that keeps proxies and NAT bindings from
// expiring the link.
const DefaultPingInterval = 25 * time.Second

// defaultPongGrace is how long after a ping the pong may arrive before
// the link is declared dead.
const defaultPongGrace = 20 * time.Second

// WebSocket is the production Transport: one gorilla/websocket
// connection to a Janus gateway. A single read pump feeds the Inbound
// channel; writes are serialized by a mutex so frames leave in Send
// call order; a ping loop keeps the link verifiably alive.
type WebSocket struct {
	config Config
	pool   *addressPool

	mu       sync.Mutex // guards state, conn, addr, terminal
	state    linkState
	conn     *websocket.Conn
	addr     Address
	terminal error

	writeMu sync.Mutex

	inbound chan []byte
	done    chan struct{} // closed when the read pump exits

	pongGrace time.Duration // fixed after construction

	pingMu       sync.Mutex
	pingInterval time.Duration
	pingTicker   interface{ Reset(time.Duration) }
}

type linkState int

const (
	linkIdle linkState = iota
	linkOpening
	linkOpen
	linkClosed
)

// NewWebSocket creates a WebSocket transport over the config's address
// pool. The transport is idle until Open is called.
func NewWebSocket(config Config) (*WebSocket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	for _, addr := range config.Addresses {
		parsed, err := url.Parse(addr.URL)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid WebSocket URL %q: %w", addr.URL, err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return nil, fmt.Errorf("transport: WebSocket URL %q must use the ws or wss scheme", addr.URL)
		}
	}
	return &WebSocket{
		config:       config,
		pool:         newAddressPool(config.Addresses),
		inbound:      make(chan []byte, 16),
		done:         make(chan struct{}),
		pongGrace:    defaultPongGrace,
		pingInterval: DefaultPingInterval,
	}, nil
}

// Open dials the address pool until one endpoint accepts, per the
// config's retry policy. On success the read pump and ping loop start
// and frames begin arriving on Inbound.
func (t *WebSocket) Open(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case linkOpening, linkOpen:
		t.mu.Unlock()
		return ErrAlreadyOpen
	case linkClosed:
		t.mu.Unlock()
		return ErrClosed
	}
	t.state = linkOpening
	t.mu.Unlock()

	subprotocol := apiSubprotocol
	if t.config.Admin {
		subprotocol = adminSubprotocol
	}
	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: 30 * time.Second,
	}

	var conn *websocket.Conn
	addr, err := openWithFailover(ctx, t.config, t.pool, func(ctx context.Context, addr Address) error {
		dialed, _, dialErr := dialer.DialContext(ctx, addr.URL, nil)
		if dialErr != nil {
			return dialErr
		}
		conn = dialed
		return nil
	})
	if err != nil {
		t.mu.Lock()
		// Close may have raced the retry loop; a closed transport
		// stays closed.
		if t.state == linkOpening {
			t.state = linkIdle
		}
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	if t.state != linkOpening {
		// Closed while dialing. Discard the fresh connection.
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.addr = addr
	t.state = linkOpen
	t.mu.Unlock()

	t.config.Logger.Debug("websocket transport open", "url", addr.URL, "subprotocol", subprotocol)

	go t.readPump(conn)
	go t.pingLoop(conn)
	return nil
}

// Send writes one text frame. Serialized so concurrent senders cannot
// interleave fragments and frames leave in call order.
func (t *WebSocket) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	if t.state != linkOpen {
		t.mu.Unlock()
		return ErrNotOpen
	}
	conn := t.conn
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	return nil
}

// Inbound returns the frame channel fed by the read pump.
func (t *WebSocket) Inbound() <-chan []byte { return t.inbound }

// Err returns the terminal transport error, nil after a requested
// Close. Meaningful once Inbound has closed.
func (t *WebSocket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

// Close tears down the link. Idempotent.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.state == linkClosed {
		t.mu.Unlock()
		return nil
	}
	wasOpen := t.state == linkOpen
	t.state = linkClosed
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		// Never opened (or still dialing; the Open goroutine will
		// observe linkClosed and discard its connection).
		close(t.inbound)
		return nil
	}

	// Best-effort close handshake; the read pump exits on the ensuing
	// read error and closes Inbound.
	t.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	conn.Close()

	if wasOpen {
		<-t.done
	}
	return nil
}

// RemoteHostname reports the host of the connected address.
func (t *WebSocket) RemoteHostname() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parsed, err := url.Parse(t.addr.URL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// ConnectedAddress returns the pool entry currently connected.
func (t *WebSocket) ConnectedAddress() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

// SetPingInterval adjusts the ping cadence, typically to just under
// half the server-announced session timeout from server_info. Safe to
// call while the ping loop runs.
func (t *WebSocket) SetPingInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.pingMu.Lock()
	t.pingInterval = d
	if t.pingTicker != nil {
		t.pingTicker.Reset(d)
	}
	t.pingMu.Unlock()
}

// readPump delivers every inbound frame in arrival order, then closes
// Inbound. A read failure while the transport is still open is a
// terminal transport error; the owning connection reacts by cascading
// teardown.
func (t *WebSocket) readPump(conn *websocket.Conn) {
	defer close(t.done)
	defer close(t.inbound)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.state == linkOpen {
				t.state = linkClosed
				t.conn = nil
				t.terminal = fmt.Errorf("transport: websocket read: %w", err)
			}
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.inbound <- frame
	}
}

// pingLoop sends a ping every pingInterval and arms a read deadline;
// the pong handler disarms it. A missed pong trips the deadline, the
// read pump fails, and the transport reports a terminal error.
func (t *WebSocket) pingLoop(conn *websocket.Conn) {
	t.pingMu.Lock()
	ticker := t.config.Clock.NewTicker(t.pingInterval)
	t.pingTicker = ticker
	t.pingMu.Unlock()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.pongGrace))
			t.writeMu.Unlock()
			if err != nil {
				t.config.Logger.Warn("websocket ping failed", "error", err)
				conn.Close()
				return
			}
			conn.SetReadDeadline(time.Now().Add(t.pongGrace))
		case <-t.done:
			return
		}
	}
}
