// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ Transport = (*Unix)(nil)

// maxDatagram is the largest inbound datagram the read loop accepts.
// Matches the Janus Unix transport's default buffer.
const maxDatagram = 1 << 16

// Unix is the Transport for the gateway's Unix datagram socket, used
// for same-host deployments. Address URLs are filesystem paths to the
// gateway's socket, optionally prefixed with unix://.
//
// Datagram sockets are connectionless, so the client binds its own
// reply socket in a private temporary directory and connects it to the
// gateway path. The dial itself succeeds as long as the gateway socket
// exists; a missing socket surfaces immediately and drives the same
// failover loop as a refused WebSocket dial.
type Unix struct {
	config Config
	pool   *addressPool

	mu        sync.Mutex
	state     linkState
	conn      *net.UnixConn
	addr      Address
	localPath string
	terminal  error

	inbound chan []byte
	done    chan struct{}
}

// NewUnix creates a Unix datagram transport over the config's address
// pool.
func NewUnix(config Config) (*Unix, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Unix{
		config:  config,
		pool:    newAddressPool(config.Addresses),
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}, nil
}

// socketPath strips the optional unix:// prefix from an address URL.
func socketPath(raw string) string {
	return strings.TrimPrefix(raw, "unix://")
}

// Open binds a local reply socket and connects it to the gateway's
// datagram socket, walking the address pool per the retry policy.
func (t *Unix) Open(ctx context.Context) error {
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

	var conn *net.UnixConn
	var localPath string
	addr, err := openWithFailover(ctx, t.config, t.pool, func(_ context.Context, addr Address) error {
		dir, dirErr := os.MkdirTemp("", "januskit-*")
		if dirErr != nil {
			return dirErr
		}
		local := &net.UnixAddr{Net: "unixgram", Name: filepath.Join(dir, "client.sock")}
		remote := &net.UnixAddr{Net: "unixgram", Name: socketPath(addr.URL)}
		dialed, dialErr := net.DialUnix("unixgram", local, remote)
		if dialErr != nil {
			os.RemoveAll(dir)
			return dialErr
		}
		conn = dialed
		localPath = dir
		return nil
	})
	if err != nil {
		t.mu.Lock()
		if t.state == linkOpening {
			t.state = linkIdle
		}
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	if t.state != linkOpening {
		t.mu.Unlock()
		conn.Close()
		os.RemoveAll(localPath)
		return ErrClosed
	}
	t.conn = conn
	t.addr = addr
	t.localPath = localPath
	t.state = linkOpen
	t.mu.Unlock()

	t.config.Logger.Debug("unix transport open", "path", socketPath(addr.URL))

	go t.readLoop(conn)
	return nil
}

// Send writes one datagram to the gateway.
func (t *Unix) Send(_ context.Context, frame []byte) error {
	t.mu.Lock()
	if t.state != linkOpen {
		t.mu.Unlock()
		return ErrNotOpen
	}
	conn := t.conn
	t.mu.Unlock()

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("transport: unix write: %w", err)
	}
	return nil
}

// Inbound returns the frame channel fed by the read loop.
func (t *Unix) Inbound() <-chan []byte { return t.inbound }

// Err returns the terminal transport error, nil after a requested
// Close.
func (t *Unix) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

// Close tears down the socket and removes the local reply socket.
// Idempotent.
func (t *Unix) Close() error {
	t.mu.Lock()
	if t.state == linkClosed {
		t.mu.Unlock()
		return nil
	}
	wasOpen := t.state == linkOpen
	t.state = linkClosed
	conn := t.conn
	localPath := t.localPath
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		close(t.inbound)
		return nil
	}
	conn.Close()
	if wasOpen {
		<-t.done
	}
	if localPath != "" {
		os.RemoveAll(localPath)
	}
	return nil
}

// RemoteHostname reports the gateway socket path; there is no host
// component on a Unix transport.
func (t *Unix) RemoteHostname() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return socketPath(t.addr.URL)
}

// ConnectedAddress returns the pool entry currently connected.
func (t *Unix) ConnectedAddress() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

// readLoop delivers each datagram as one frame, then closes Inbound.
func (t *Unix) readLoop(conn *net.UnixConn) {
	defer close(t.done)
	defer close(t.inbound)

	buffer := make([]byte, maxDatagram)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			t.mu.Lock()
			if t.state == linkOpen {
				t.state = linkClosed
				t.conn = nil
				t.terminal = fmt.Errorf("transport: unix read: %w", err)
			}
			t.mu.Unlock()
			return
		}
		frame := make([]byte, n)
		copy(frame, buffer[:n])
		t.inbound <- frame
	}
}
