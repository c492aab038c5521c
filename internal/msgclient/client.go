// Package msgclient is a thin Go SDK over a single node's line transport.
//
// It hides the READY/PING-PONG/ACK handshake behind two calls: Send and
// Ping. Like a node, a Client talks to exactly one address; it does not
// implement any cluster logic (no leader discovery, no retries across
// peers). Forwarding to the leader lives in internal/node.
package msgclient

import (
	"fmt"
	"time"

	"github.com/ppriyankuu/messaging-cluster/internal/transport"
)

// Client is a connection to one node's transport port.
type Client struct {
	addr    string
	timeout time.Duration
}

// New creates a Client targeting addr ("host:port").
func New(addr string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// ErrTimedOut is returned when a call exceeds the client's configured
// timeout.
var ErrTimedOut = fmt.Errorf("msgclient: call timed out")

// Send delivers a single line of content and waits for ACK.
func (c *Client) Send(content string) error {
	return c.withTimeout(func() error {
		return transport.SendLine(c.addr, content)
	})
}

// Ping performs a health check against the node and waits for PONG.
func (c *Client) Ping() error {
	return c.withTimeout(func() error {
		return transport.Ping(c.addr)
	})
}

// withTimeout runs fn on its own goroutine and bounds how long the caller
// waits for it; fn itself still owns the underlying connection and keeps
// running after the deadline fires. transport.SendLine and transport.Ping
// set no dial or read deadline of their own, so fn returns only once the
// peer replies or the connection fails.
func (c *Client) withTimeout(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(c.timeout):
		return ErrTimedOut
	}
}
