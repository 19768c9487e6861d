// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/januskit/januskit/lib/clock"
)

// Sentinel errors for transport state violations. Programming errors
// (opening twice, sending on a closed transport) fail fast without a
// network round trip.
var (
	// ErrAlreadyOpen is returned by Open when an open attempt is
	// already in flight or the transport is connected.
	ErrAlreadyOpen = errors.New("transport: already opening or open")

	// ErrNotOpen is returned by Send when the transport is not
	// connected.
	ErrNotOpen = errors.New("transport: not open")

	// ErrClosed is returned by Open after Close has been called.
	ErrClosed = errors.New("transport: closed")
)

// Address is one candidate gateway endpoint. For the WebSocket
// transport the URL is a ws:// or wss:// URL; for the Unix transport
// it is a filesystem path, optionally prefixed with unix://.
//
// APISecret and Token are the endpoint's authentication material. The
// connection layer stamps them onto outgoing requests for whichever
// address the transport ended up connected to.
type Address struct {
	URL       string `yaml:"url" json:"url"`
	APISecret string `yaml:"apisecret,omitempty" json:"apisecret,omitempty"`
	Token     string `yaml:"token,omitempty" json:"token,omitempty"`
}

// DefaultRetryInterval is the wait between connection attempts when
// Config.RetryInterval is zero.
const DefaultRetryInterval = 10 * time.Second

// Config holds the address pool and retry policy for one transport
// instance. Immutable after Validate; owned exclusively by one
// connection.
type Config struct {
	// Addresses is the ordered pool of candidate endpoints. Open
	// iterates it circularly on failure. At least one is required.
	Addresses []Address

	// RetryInterval is the wait between failed connection attempts.
	// Zero means DefaultRetryInterval.
	RetryInterval time.Duration

	// MaxRetries caps the number of connection attempts before Open
	// surfaces a terminal error. Zero means unlimited.
	MaxRetries int

	// Admin selects the gateway's admin API. The WebSocket transport
	// negotiates the janus-admin-protocol subprotocol, and the
	// connection layer enables the admin request surface.
	Admin bool

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock abstracts retry and ping timing. If nil, clock.Real() is
	// used. Tests inject a fake.
	Clock clock.Clock
}

// Validate normalizes the config in place (defaults for interval,
// logger, and clock) and rejects an empty or malformed address pool.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("transport: config requires at least one address")
	}
	for i, addr := range c.Addresses {
		if addr.URL == "" {
			return fmt.Errorf("transport: address %d has an empty URL", i)
		}
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return nil
}

// Transport is a persistent duplex link to one gateway endpoint.
//
// Implementations deliver every inbound frame on the Inbound channel
// in arrival order and close it when the link dies or Close is called;
// Err then reports the terminal failure (nil after a requested Close).
// Correlating frames with requests is the connection layer's job; the
// transport is a dumb pipe.
type Transport interface {
	// Open establishes the physical link, walking the address pool
	// with the configured retry policy. Blocks across the whole retry
	// loop; bound by ctx. At most one Open succeeds per instance.
	Open(ctx context.Context) error

	// Send writes one frame to the gateway. Frames are written in
	// call order.
	Send(ctx context.Context, frame []byte) error

	// Inbound returns the channel of frames received from the
	// gateway. Closed when the link dies or the transport is closed.
	Inbound() <-chan []byte

	// Err returns the terminal transport error after Inbound closes.
	// Nil if the transport was closed on request.
	Err() error

	// Close tears down the link. Idempotent: closing a closed or
	// never-opened transport returns nil immediately.
	Close() error

	// RemoteHostname reports the host component of the connected
	// address, for logging and event payloads.
	RemoteHostname() string

	// ConnectedAddress returns the pool entry the transport ended up
	// connected to, so the connection layer can stamp that address's
	// apisecret and token onto requests.
	ConnectedAddress() Address
}

// addressPool is a fixed circular iterator over the configured
// addresses. current returns the candidate for the next attempt;
// advance moves to the following entry, wrapping indefinitely. Owned
// exclusively by one transport instance and only touched from its
// open attempt, so it needs no locking.
type addressPool struct {
	addresses []Address
	index     int
	advances  int
}

func newAddressPool(addresses []Address) *addressPool {
	return &addressPool{addresses: addresses}
}

func (p *addressPool) current() Address {
	return p.addresses[p.index]
}

func (p *addressPool) advance() {
	p.index = (p.index + 1) % len(p.addresses)
	p.advances++
}

// dialFunc attempts one connection to a single address.
type dialFunc func(ctx context.Context, addr Address) error

// openWithFailover runs the address-failover loop: try the pool's
// current address, and on failure advance the pool, wait
// RetryInterval, and try the next one. Gives up after MaxRetries
// attempts (zero: never), or when ctx is done. Returns the address
// that accepted the connection.
func openWithFailover(ctx context.Context, config Config, pool *addressPool, dial dialFunc) (Address, error) {
	var attempts int
	for {
		addr := pool.current()
		err := dial(ctx, addr)
		if err == nil {
			return addr, nil
		}
		attempts++
		config.Logger.Warn("connection attempt failed",
			"url", addr.URL,
			"attempt", attempts,
			"error", err,
		)
		if config.MaxRetries > 0 && attempts >= config.MaxRetries {
			return Address{}, fmt.Errorf("transport: all %d connection attempts failed, last address %s: %w", attempts, addr.URL, err)
		}
		pool.advance()

		select {
		case <-config.Clock.After(config.RetryInterval):
		case <-ctx.Done():
			return Address{}, fmt.Errorf("transport: open cancelled after %d attempts: %w", attempts, ctx.Err())
		}
	}
}
