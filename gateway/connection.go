// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/januskit/januskit/lib/clock"
	"github.com/januskit/januskit/transport"
)

// DefaultKeepAliveInterval is how often sessions ping the gateway when
// the configuration does not say otherwise. Janus expires idle
// sessions after 60 seconds by default, so half of half that keeps a
// comfortable margin.
const DefaultKeepAliveInterval = 30 * time.Second

// keepAliveTimeout bounds how long a session waits for the gateway to
// acknowledge a keepalive before declaring the session dead.
const keepAliveTimeout = 10 * time.Second

// Connection lifecycle states.
const (
	StateIdle    = "idle"
	StateOpening = "opening"
	StateOpened  = "opened"
	StateClosing = "closing"
	StateClosed  = "closed"
	StateError   = "error"
)

// Options tunes a Connection beyond what the transport provides.
// The zero value is usable.
type Options struct {
	// Logger receives connection diagnostics. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Clock drives keepalive scheduling. Defaults to the system
	// clock; tests inject a fake.
	Clock clock.Clock

	// KeepAliveInterval is the session keepalive period. Zero means
	// DefaultKeepAliveInterval; negative disables keepalives.
	KeepAliveInterval time.Duration

	// Admin marks the connection as targeting the admin API. Admin
	// requests authenticate with the admin secret and unlock the
	// methods in admin.go.
	Admin bool
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.KeepAliveInterval == 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
}

// Connection is one open signaling link to a Janus gateway. It owns
// the transport, correlates responses to in-flight requests and
// routes session-scoped frames to the sessions created through it.
type Connection struct {
	opts      Options
	logger    *slog.Logger
	clock     clock.Clock
	transport transport.Transport

	lifecycle *fsm.FSM
	txns      *transactionTable
	ids       *TransactionIDs
	events    *emitter

	mu       sync.Mutex
	sessions map[uint64]*Session

	// done closes when the connection reaches a terminal state,
	// whether by Close or by transport failure.
	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// Connect dials the gateway described by config and returns an opened
// Connection. The transport is chosen by URL scheme: ws and wss use
// WebSocket, anything else is treated as a Unix datagram socket path.
func Connect(ctx context.Context, config transport.Config, opts Options) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var (
		tr  transport.Transport
		err error
	)
	if isWebSocketURL(config.Addresses[0].URL) {
		tr, err = transport.NewWebSocket(config)
	} else {
		tr, err = transport.NewUnix(config)
	}
	if err != nil {
		return nil, err
	}
	opts.Admin = config.Admin
	return Open(ctx, tr, opts)
}

func isWebSocketURL(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}

// Open establishes conn over an already constructed transport and
// starts routing inbound frames. The transport must not be open yet.
func Open(ctx context.Context, tr transport.Transport, opts Options) (*Connection, error) {
	opts.normalize()
	c := &Connection{
		opts:      opts,
		logger:    opts.Logger,
		clock:     opts.Clock,
		transport: tr,
		txns:      newTransactionTable(),
		ids:       NewTransactionIDs(),
		events:    newEmitter(opts.Logger),
		sessions:  make(map[uint64]*Session),
		done:      make(chan struct{}),
	}
	c.lifecycle = fsm.NewFSM(StateIdle,
		fsm.Events{
			{Name: "open", Src: []string{StateIdle}, Dst: StateOpening},
			{Name: "opened", Src: []string{StateOpening}, Dst: StateOpened},
			{Name: "close", Src: []string{StateOpened}, Dst: StateClosing},
			{Name: "closed", Src: []string{StateClosing}, Dst: StateClosed},
			{Name: "fail", Src: []string{StateOpening, StateOpened}, Dst: StateError},
		},
		fsm.Callbacks{},
	)
	if err := c.lifecycle.Event(ctx, "open"); err != nil {
		return nil, fmt.Errorf("gateway: open: %w", err)
	}
	if err := tr.Open(ctx); err != nil {
		_ = c.lifecycle.Event(ctx, "fail")
		return nil, err
	}
	if err := c.lifecycle.Event(ctx, "opened"); err != nil {
		return nil, fmt.Errorf("gateway: open: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() string {
	return c.lifecycle.Current()
}

// Done closes when the connection reaches a terminal state.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err reports the terminal error after Done closes. A graceful Close
// leaves it nil.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// On subscribes listener to the named connection event and returns a
// disposer.
func (c *Connection) On(event string, listener Listener) func() {
	return c.events.on(event, listener)
}

// Create opens a new session on the gateway and starts its keepalive
// schedule.
func (c *Connection) Create(ctx context.Context) (*Session, error) {
	frame, err := c.roundTrip(ctx, c, NewRequest(KindCreate))
	if err != nil {
		return nil, err
	}
	id, err := assignedID(frame)
	if err != nil {
		return nil, err
	}
	return c.adoptSession(id), nil
}

// Claim takes over an existing session, typically one created by a
// connection that has since failed. The gateway transfers event
// delivery to this connection.
func (c *Connection) Claim(ctx context.Context, sessionID uint64) (*Session, error) {
	req := NewRequest(KindClaim)
	req["session_id"] = sessionID
	if _, err := c.roundTrip(ctx, c, req); err != nil {
		return nil, err
	}
	return c.adoptSession(sessionID), nil
}

func (c *Connection) adoptSession(id uint64) *Session {
	s := newSession(c, id)
	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
	if c.opts.KeepAliveInterval > 0 {
		go s.keepAliveLoop(c.opts.KeepAliveInterval)
	}
	return s
}

// Info queries the gateway for its version, plugin inventory and
// session timeout. On WebSocket transports the ping interval is
// tightened when the advertised session timeout demands it.
func (c *Connection) Info(ctx context.Context) (*ServerInfo, error) {
	frame, err := c.roundTrip(ctx, c, NewRequest(KindInfo))
	if err != nil {
		return nil, err
	}
	var info ServerInfo
	if err := json.Unmarshal(frame.Raw, &info); err != nil {
		return nil, fmt.Errorf("gateway: parse server info: %w", err)
	}
	if ws, ok := c.transport.(*transport.WebSocket); ok && info.SessionTimeout > 0 {
		interval := time.Duration(info.SessionTimeout) * time.Second / 2
		if interval < transport.DefaultPingInterval {
			ws.SetPingInterval(interval)
		}
	}
	return &info, nil
}

// SendRequest sends a raw request and waits for its definitive
// response. The transaction id and any configured credentials are
// stamped automatically. Most callers want the typed methods; this is
// the escape hatch for gateway requests the package has no wrapper
// for.
func (c *Connection) SendRequest(ctx context.Context, req Request) (*Frame, error) {
	return c.roundTrip(ctx, c, req)
}

// Close gracefully tears the connection down: every session is
// destroyed on the gateway, remaining in-flight requests are rejected
// with ErrClosed and the transport is closed. Safe to call more than
// once; later calls wait for the first to finish.
func (c *Connection) Close(ctx context.Context) error {
	if err := c.lifecycle.Event(ctx, "close"); err != nil {
		<-c.done
		return nil
	}
	for _, s := range c.snapshotSessions() {
		if err := s.Destroy(ctx); err != nil {
			c.logger.Warn("session destroy during close failed",
				"session_id", s.ID(),
				"error", err)
		}
	}
	c.txns.closeAll(nil, ErrClosed)
	err := c.transport.Close()
	_ = c.lifecycle.Event(ctx, "closed")
	c.doneOnce.Do(func() { close(c.done) })
	c.events.emit(EventConnectionClosed, nil)
	return err
}

// fail cascades a transport failure: sessions and handles are force
// destroyed, every pending transaction is rejected with cause and the
// connection enters the error state. A connection already closing
// ignores the failure.
func (c *Connection) fail(cause error) {
	if err := c.lifecycle.Event(context.Background(), "fail"); err != nil {
		return
	}
	c.errMu.Lock()
	c.err = cause
	c.errMu.Unlock()
	for _, s := range c.snapshotSessions() {
		s.forceDestroy(cause)
	}
	c.txns.closeAll(nil, cause)
	_ = c.transport.Close()
	c.doneOnce.Do(func() { close(c.done) })
	c.events.emit(EventConnectionError, cause)
}

func (c *Connection) snapshotSessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (c *Connection) removeSession(id uint64) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

func (c *Connection) lookupSession(id uint64) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// readLoop routes inbound frames until the transport's inbound
// channel closes. A close with a recorded transport error cascades
// through fail.
func (c *Connection) readLoop() {
	for payload := range c.transport.Inbound() {
		frame, err := parseFrame(payload)
		if err != nil {
			c.logger.Warn("dropping unparseable frame", "error", err)
			continue
		}
		c.route(frame)
	}
	if err := c.transport.Err(); err != nil {
		c.fail(err)
	}
}

// route dispatches a frame to the session it names, or resolves it
// against the connection's own transactions. Frames naming unknown
// sessions or transactions are dropped: they are late arrivals for
// entities that no longer exist.
func (c *Connection) route(frame *Frame) {
	if frame.SessionID != 0 {
		if s := c.lookupSession(frame.SessionID); s != nil {
			s.handleFrame(frame)
			return
		}
		// Some responses name a session the connection does not hold:
		// admin queries echo the inspected session's id, and a claim
		// ack arrives before the session is adopted. Both transactions
		// belong to the connection, and the owner check keeps this
		// path from touching anything session-owned.
		if pending := c.txns.peek(frame.Transaction); pending != nil && pending.owner == c {
			if frame.IsDefinitive() || (frame.IsAck() && ackCompletes(pending.kind)) {
				c.txns.closeSuccess(frame.Transaction, c, frame)
				return
			}
		}
		c.logger.Debug("dropping frame for unknown session",
			"janus", frame.Janus,
			"session_id", frame.SessionID)
		return
	}
	if frame.Transaction != "" && frame.IsDefinitive() {
		if !c.txns.closeSuccess(frame.Transaction, c, frame) {
			c.logger.Debug("dropping frame for unknown transaction",
				"janus", frame.Janus,
				"transaction", frame.Transaction)
		}
		return
	}
	c.logger.Debug("dropping unroutable frame", "janus", frame.Janus)
}

// sendAsync registers the request's transaction and writes it to the
// transport, returning the pending record the response will resolve.
// Callers normally use roundTrip; the keepalive loop uses sendAsync
// directly so it can time the wait with the injected clock.
func (c *Connection) sendAsync(ctx context.Context, owner any, req Request) (*pendingTransaction, error) {
	switch state := c.lifecycle.Current(); state {
	case StateOpened, StateClosing:
	default:
		return nil, fmt.Errorf("gateway: send in state %q: %w", state, ErrClosed)
	}
	id := c.ids.Next()
	req["transaction"] = id
	c.stampCredentials(req)
	pending := c.txns.create(id, owner, req.Kind())
	if pending == nil {
		return nil, ErrTransactionConflict
	}
	payload, err := json.Marshal(req)
	if err != nil {
		c.txns.take(id, owner)
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}
	if err := c.transport.Send(ctx, payload); err != nil {
		c.txns.take(id, owner)
		return nil, err
	}
	return pending, nil
}

func (c *Connection) stampCredentials(req Request) {
	addr := c.transport.ConnectedAddress()
	if addr.APISecret != "" {
		key := "apisecret"
		if c.opts.Admin {
			key = "admin_secret"
		}
		req.setDefault(key, addr.APISecret)
	}
	if addr.Token != "" {
		req.setDefault("token", addr.Token)
	}
}

// await blocks until the pending transaction resolves or ctx ends. A
// context cancellation withdraws the transaction so a late response
// is dropped rather than delivered to nobody.
func (c *Connection) await(ctx context.Context, owner any, pending *pendingTransaction) (*Frame, error) {
	select {
	case result := <-pending.result:
		if result.err != nil {
			return nil, result.err
		}
		return result.frame, nil
	case <-ctx.Done():
		c.txns.take(pending.id, owner)
		return nil, ctx.Err()
	}
}

// roundTrip sends req and waits for its definitive response,
// translating gateway error frames into *ServerError values.
func (c *Connection) roundTrip(ctx context.Context, owner any, req Request) (*Frame, error) {
	pending, err := c.sendAsync(ctx, owner, req)
	if err != nil {
		return nil, err
	}
	frame, err := c.await(ctx, owner, pending)
	if err != nil {
		return nil, err
	}
	if frame.Error != nil {
		return nil, frame.Error
	}
	return frame, nil
}
