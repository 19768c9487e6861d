// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/januskit/januskit/lib/clock"
	"github.com/januskit/januskit/lib/testutil"
	"github.com/januskit/januskit/transport"
)

const waitFor = 2 * time.Second

// testGateway plays the Janus server side of a connection: it reads
// the client's requests from the memory transport and injects replies.
type testGateway struct {
	t    *testing.T
	conn *Connection
	mem  *transport.Memory
	clk  *clock.FakeClock
}

func newTestGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()
	mem := transport.NewMemory()
	clk := clock.Fake(time.Unix(1700000000, 0))
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Clock = clk
	conn, err := Open(context.Background(), mem, opts)
	if err != nil {
		t.Fatalf("open connection: %v", err)
	}
	t.Cleanup(func() {
		mem.Fail(errors.New("test finished"))
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	})
	return &testGateway{t: t, conn: conn, mem: mem, clk: clk}
}

// expectRequest reads the next outgoing request and checks its kind.
func (g *testGateway) expectRequest(kind string) map[string]any {
	g.t.Helper()
	payload := testutil.RequireReceive(g.t, g.mem.Outbound(), waitFor, "no %q request sent", kind)
	var req map[string]any
	if err := json.Unmarshal(payload, &req); err != nil {
		g.t.Fatalf("unmarshal outgoing request: %v", err)
	}
	if req["janus"] != kind {
		g.t.Fatalf("outgoing request kind = %v, want %q", req["janus"], kind)
	}
	return req
}

// reply injects one gateway frame.
func (g *testGateway) reply(frame map[string]any) {
	g.t.Helper()
	payload, err := json.Marshal(frame)
	if err != nil {
		g.t.Fatalf("marshal reply: %v", err)
	}
	g.mem.Deliver(payload)
}

type sessionResult struct {
	session *Session
	err     error
}

// createSession drives a Connection.Create round trip, assigning id.
func (g *testGateway) createSession(id uint64) *Session {
	g.t.Helper()
	done := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(context.Background())
		done <- sessionResult{s, err}
	}()
	req := g.expectRequest(KindCreate)
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": req["transaction"],
		"data":        map[string]any{"id": id},
	})
	result := testutil.RequireReceive(g.t, done, waitFor, "create did not resolve")
	if result.err != nil {
		g.t.Fatalf("create session: %v", result.err)
	}
	return result.session
}

type handleResult struct {
	handle *Handle
	err    error
}

// attachHandle drives a Session.Attach round trip, assigning id.
func (g *testGateway) attachHandle(s *Session, plugin *PluginDescriptor, id uint64) *Handle {
	g.t.Helper()
	done := make(chan handleResult, 1)
	go func() {
		h, err := s.Attach(context.Background(), plugin)
		done <- handleResult{h, err}
	}()
	req := g.expectRequest(KindAttach)
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": req["transaction"],
		"session_id":  s.ID(),
		"data":        map[string]any{"id": id},
	})
	result := testutil.RequireReceive(g.t, done, waitFor, "attach did not resolve")
	if result.err != nil {
		g.t.Fatalf("attach handle: %v", result.err)
	}
	return result.handle
}

func TestCreateSession(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	s := g.createSession(4321)
	if s.ID() != 4321 {
		t.Fatalf("session id = %d, want 4321", s.ID())
	}
	if g.conn.State() != StateOpened {
		t.Fatalf("connection state = %q, want opened", g.conn.State())
	}
}

func TestCreateRejectedByGateway(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	done := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(context.Background())
		done <- sessionResult{s, err}
	}()
	req := g.expectRequest(KindCreate)
	g.reply(map[string]any{
		"janus":       "error",
		"transaction": req["transaction"],
		"error":       map[string]any{"code": 403, "reason": "unauthorized request"},
	})
	result := testutil.RequireReceive(t, done, waitFor, "create did not resolve")
	if !IsServerError(result.err, ErrorCodeUnauthorized) {
		t.Fatalf("create error = %v, want server error %d", result.err, ErrorCodeUnauthorized)
	}
	var serverErr *ServerError
	if !errors.As(result.err, &serverErr) || serverErr.Reason != "unauthorized request" {
		t.Fatalf("create error = %v, want reason preserved", result.err)
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})

	first := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(context.Background())
		first <- sessionResult{s, err}
	}()
	reqA := g.expectRequest(KindCreate)

	second := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(context.Background())
		second <- sessionResult{s, err}
	}()
	reqB := g.expectRequest(KindCreate)

	// Resolve the second request before the first.
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": reqB["transaction"],
		"data":        map[string]any{"id": 2},
	})
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": reqA["transaction"],
		"data":        map[string]any{"id": 1},
	})

	resultB := testutil.RequireReceive(t, second, waitFor, "second create did not resolve")
	resultA := testutil.RequireReceive(t, first, waitFor, "first create did not resolve")
	if resultA.err != nil || resultB.err != nil {
		t.Fatalf("create errors: %v, %v", resultA.err, resultB.err)
	}
	if resultA.session.ID() != 1 || resultB.session.ID() != 2 {
		t.Fatalf("session ids = %d, %d; responses crossed wires",
			resultA.session.ID(), resultB.session.ID())
	}
}

func TestDuplicateResponseDropped(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	done := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(context.Background())
		done <- sessionResult{s, err}
	}()
	req := g.expectRequest(KindCreate)
	response := map[string]any{
		"janus":       "success",
		"transaction": req["transaction"],
		"data":        map[string]any{"id": 7},
	}
	g.reply(response)
	g.reply(response)

	result := testutil.RequireReceive(t, done, waitFor, "create did not resolve")
	if result.err != nil {
		t.Fatalf("create session: %v", result.err)
	}
	// The duplicate found no pending transaction; the connection must
	// still be fully usable.
	s := g.createSession(8)
	if s.ID() != 8 {
		t.Fatalf("session id = %d, want 8", s.ID())
	}
}

func TestCanceledRequestWithdrawsTransaction(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Create(ctx)
		done <- sessionResult{s, err}
	}()
	req := g.expectRequest(KindCreate)
	cancel()
	result := testutil.RequireReceive(t, done, waitFor, "create did not resolve")
	if !errors.Is(result.err, context.Canceled) {
		t.Fatalf("create error = %v, want context.Canceled", result.err)
	}
	// The late response finds nothing to resolve and the connection
	// stays usable.
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": req["transaction"],
		"data":        map[string]any{"id": 9},
	})
	s := g.createSession(10)
	if s.ID() != 10 {
		t.Fatalf("session id = %d, want 10", s.ID())
	}
}

func TestCredentialStamping(t *testing.T) {
	t.Run("api secret and token", func(t *testing.T) {
		g := newTestGateway(t, Options{KeepAliveInterval: -1})
		g.mem.SetConnectedAddress(transport.Address{
			URL:       "memory://gateway",
			APISecret: "hunter2",
			Token:     "stored-token",
		})
		go func() { _, _ = g.conn.Create(context.Background()) }()
		req := g.expectRequest(KindCreate)
		if req["apisecret"] != "hunter2" {
			t.Fatalf("apisecret = %v, want hunter2", req["apisecret"])
		}
		if req["token"] != "stored-token" {
			t.Fatalf("token = %v, want stored-token", req["token"])
		}
	})

	t.Run("admin secret", func(t *testing.T) {
		g := newTestGateway(t, Options{KeepAliveInterval: -1, Admin: true})
		g.mem.SetConnectedAddress(transport.Address{
			URL:       "memory://gateway",
			APISecret: "janusoverlord",
		})
		go func() { _, _ = g.conn.ListSessions(context.Background()) }()
		req := g.expectRequest(kindListSessions)
		if req["admin_secret"] != "janusoverlord" {
			t.Fatalf("admin_secret = %v, want janusoverlord", req["admin_secret"])
		}
		if _, ok := req["apisecret"]; ok {
			t.Fatal("admin request must not carry apisecret")
		}
	})
}

func TestTransportFailureCascades(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	s := g.createSession(1)
	h := g.attachHandle(s, Plugin("janus.plugin.echotest"), 11)

	events := make(chan string, 8)
	h.On(EventHandleDetached, func(any) { events <- "handle-detached" })
	s.On(EventSessionDestroyed, func(any) { events <- "session-destroyed" })
	g.conn.On(EventConnectionError, func(any) { events <- "connection-error" })

	// Leave a request in flight so the cascade has something to
	// reject.
	inflight := make(chan error, 1)
	go func() {
		_, err := h.Message(context.Background(), map[string]any{"request": "ping"}, nil)
		inflight <- err
	}()
	g.expectRequest(KindMessage)

	cause := errors.New("link reset")
	g.mem.Fail(cause)

	// Children tear down before the parent reports the failure.
	for _, want := range []string{"handle-detached", "session-destroyed", "connection-error"} {
		got := testutil.RequireReceive(t, events, waitFor, "missing %q event", want)
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	}
	if err := testutil.RequireReceive(t, inflight, waitFor, "in-flight request not rejected"); !errors.Is(err, cause) {
		t.Fatalf("in-flight error = %v, want %v", err, cause)
	}
	testutil.RequireClosed(t, g.conn.Done(), waitFor, "connection not done")
	if err := g.conn.Err(); !errors.Is(err, cause) {
		t.Fatalf("connection error = %v, want %v", err, cause)
	}
	if g.conn.State() != StateError {
		t.Fatalf("connection state = %q, want error", g.conn.State())
	}
	if _, err := g.conn.Create(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("create after failure = %v, want ErrClosed", err)
	}
}

func TestGracefulClose(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	s := g.createSession(1)

	events := make(chan string, 8)
	s.On(EventSessionDestroyed, func(any) { events <- "session-destroyed" })
	g.conn.On(EventConnectionClosed, func(any) { events <- "connection-closed" })

	closed := make(chan error, 1)
	go func() { closed <- g.conn.Close(context.Background()) }()

	req := g.expectRequest(KindDestroy)
	if req["session_id"] != float64(1) {
		t.Fatalf("destroy session_id = %v, want 1", req["session_id"])
	}
	g.reply(map[string]any{
		"janus":       "success",
		"transaction": req["transaction"],
		"session_id":  1,
	})

	if err := testutil.RequireReceive(t, closed, waitFor, "close did not return"); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, want := range []string{"session-destroyed", "connection-closed"} {
		got := testutil.RequireReceive(t, events, waitFor, "missing %q event", want)
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	}
	if g.conn.State() != StateClosed {
		t.Fatalf("connection state = %q, want closed", g.conn.State())
	}
	if err := g.conn.Err(); err != nil {
		t.Fatalf("graceful close left error %v", err)
	}
	// A second close returns immediately.
	if err := g.conn.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := g.conn.Create(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("create after close = %v, want ErrClosed", err)
	}
}

func TestUnknownSessionFrameDropped(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	g.reply(map[string]any{"janus": "event", "session_id": 999, "sender": 1})
	// The drop must not disturb the connection.
	s := g.createSession(5)
	if s.ID() != 5 {
		t.Fatalf("session id = %d, want 5", s.ID())
	}
}

func TestInfo(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	type infoResult struct {
		info *ServerInfo
		err  error
	}
	done := make(chan infoResult, 1)
	go func() {
		info, err := g.conn.Info(context.Background())
		done <- infoResult{info, err}
	}()
	req := g.expectRequest(KindInfo)
	g.reply(map[string]any{
		"janus":           "server_info",
		"transaction":     req["transaction"],
		"name":            "Janus WebRTC Server",
		"version_string":  "1.2.0",
		"session-timeout": 60,
		"plugins": map[string]any{
			"janus.plugin.echotest": map[string]any{
				"name":    "JANUS EchoTest plugin",
				"version": 7,
			},
		},
	})
	result := testutil.RequireReceive(t, done, waitFor, "info did not resolve")
	if result.err != nil {
		t.Fatalf("info: %v", result.err)
	}
	if result.info.VersionString != "1.2.0" {
		t.Fatalf("version = %q, want 1.2.0", result.info.VersionString)
	}
	if result.info.SessionTimeout != 60 {
		t.Fatalf("session timeout = %d, want 60", result.info.SessionTimeout)
	}
	if _, ok := result.info.Plugins["janus.plugin.echotest"]; !ok {
		t.Fatal("plugin inventory missing echotest")
	}
}

func TestClaimSession(t *testing.T) {
	g := newTestGateway(t, Options{KeepAliveInterval: -1})
	done := make(chan sessionResult, 1)
	go func() {
		s, err := g.conn.Claim(context.Background(), 77)
		done <- sessionResult{s, err}
	}()
	req := g.expectRequest(KindClaim)
	if req["session_id"] != float64(77) {
		t.Fatalf("claim session_id = %v, want 77", req["session_id"])
	}
	// A claim is complete on the ack.
	g.reply(map[string]any{
		"janus":       "ack",
		"transaction": req["transaction"],
		"session_id":  77,
	})
	result := testutil.RequireReceive(t, done, waitFor, "claim did not resolve")
	if result.err != nil {
		t.Fatalf("claim: %v", result.err)
	}
	if result.session.ID() != 77 {
		t.Fatalf("claimed session id = %d, want 77", result.session.ID())
	}
}
