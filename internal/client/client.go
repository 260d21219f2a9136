// Package client holds per-connection state: buffers, timestamps, and
// the in-progress Request/Response pair, plus the weak back-reference to
// the listening socket that accepted the connection.
package client

import (
	"time"

	"github.com/google/uuid"

	"webserv/internal/config"
	"webserv/internal/httpreq"
)

// Client is one accepted TCP connection's state, owned by the reactor's
// client map.
type Client struct {
	ID           uuid.UUID // correlation ID for log lines spanning this connection's lifetime
	FD           int
	PeerAddr     string
	LastActivity time.Time
	SocketKey    config.SocketKey // weak back-reference to the owning Socket

	Request *httpreq.Request

	// PendingWrite is the not-yet-drained suffix of the serialized
	// response; EPOLLOUT writes trim bytes off its front as they land.
	PendingWrite []byte

	// KeepAlive is set when the built response carries
	// Connection: keep-alive; once that response finishes draining, it
	// tells the reactor to flip the fd back to EPOLLIN and reset
	// Request/PendingWrite for the next message instead of closing.
	KeepAlive bool
}

// New creates a Client for a freshly accepted connection.
func New(fd int, peer string, key config.SocketKey, now time.Time) *Client {
	return &Client{
		ID:           uuid.New(),
		FD:           fd,
		PeerAddr:     peer,
		LastActivity: now,
		SocketKey:    key,
	}
}

// Touch refreshes the idle-timeout clock; called on every successful read.
func (c *Client) Touch(now time.Time) {
	c.LastActivity = now
}

// IdleFor reports how long the connection has been idle as of now.
func (c *Client) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}

// Reset clears the request/response state for the next message on a
// keep-alive connection.
func (c *Client) Reset(resolver httpreq.ServerResolver) {
	c.Request = httpreq.New(resolver)
	c.PendingWrite = nil
	c.KeepAlive = false
}
