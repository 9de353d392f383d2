// client.go - Datagram client with request-ID multiplexing.
// Copyright (C) 2024  Robostack Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package udp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/katzenpost/katzenpost/core/log"
	"github.com/katzenpost/katzenpost/core/worker"
	"gopkg.in/op/go-logging.v1"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/instrument"
)

const defaultBlockTimeout = 5 * time.Second

// Config configures a Client.
type Config struct {
	// LogBackend hands out the loggers used by the client.
	LogBackend *log.Backend

	// OnError receives asynchronous failures that have no owning call:
	// receive loop errors and unsolicited replies.  May be nil.
	OnError func(error)

	// BlockTimeout is the per-block inactivity timeout applied during file
	// transfers in addition to the caller's context deadline.  Zero selects
	// the default of 5 seconds.
	BlockTimeout time.Duration
}

// openRequest is one pending outbound request, keyed by request ID in the
// client's handler table.
type openRequest struct {
	start   time.Time
	onReply func(header *ResponseHeader, data []byte)
}

// Client is a client for the binary HSES protocol.  A single datagram
// socket carries many concurrent outstanding requests distinguished by an
// 8-bit request ID.
type Client struct {
	worker.Worker

	log     *logging.Logger
	onError func(error)

	blockTimeout time.Duration

	sync.Mutex
	conn     net.Conn
	handlers map[uint8]*openRequest
	nextID   uint8
	closed   bool
}

// NewClient creates a new, unconnected client.
func NewClient(cfg *Config) *Client {
	c := &Client{
		log:          cfg.LogBackend.GetLogger("udp/client"),
		onError:      cfg.OnError,
		blockTimeout: cfg.BlockTimeout,
		handlers:     make(map[uint8]*openRequest),
	}
	if c.blockTimeout <= 0 {
		c.blockTimeout = defaultBlockTimeout
	}
	return c
}

// Connect resolves the address and connects the datagram socket, then
// starts the receive loop.  The context bounds resolution and connecting.
func (c *Client) Connect(ctx context.Context, host string, port uint16) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		if ctx.Err() != nil {
			return ctxError(ctx).Push("connecting to %s", host)
		}
		return yaskawa.WrapError(yaskawa.KindTransport, err, "connecting to %s", host)
	}

	c.Lock()
	if c.conn != nil {
		c.Unlock()
		conn.Close()
		return yaskawa.NewError(yaskawa.KindInvalidArgument, "client is already connected")
	}
	c.conn = conn
	c.closed = false
	c.Unlock()

	c.log.Debugf("Connected to %v.", conn.RemoteAddr())
	c.Go(c.recvWorker)
	return nil
}

// Close shuts down the socket, stops the receive loop and resolves all
// outstanding sessions with a cancellation error.  Subsequent operations
// fail with NotConnected.
func (c *Client) Close() {
	c.Lock()
	conn := c.conn
	c.conn = nil
	c.closed = true
	c.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.Halt()
}

// recvWorker is the receive loop: it parses each inbound datagram and
// dispatches it to the handler registered under its request ID.
func (c *Client) recvWorker() {
	defer c.log.Debugf("Receive loop terminated.")

	c.Lock()
	conn := c.conn
	c.Unlock()
	if conn == nil {
		return
	}

	buf := make([]byte, HeaderSize+MaxPayloadSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-c.HaltCh():
				return
			default:
			}
			c.Lock()
			closed := c.closed
			c.Unlock()
			if closed {
				return
			}
			c.reportError(yaskawa.WrapError(yaskawa.KindTransport, err, "receiving datagram"))
			return
		}
		instrument.PacketsReceived()

		header, payload, err := decodeResponseHeader(buf[:n])
		if err != nil {
			instrument.PacketsDropped()
			c.reportError(yaskawa.Push(err, "parsing response header"))
			continue
		}

		c.Lock()
		request := c.handlers[header.RequestID]
		c.Unlock()
		if request == nil {
			instrument.PacketsDropped()
			c.reportError(yaskawa.NewError(yaskawa.KindUnknownRequestID, "received reply for unknown request %d", header.RequestID))
			continue
		}

		request.onReply(&header, payload)
	}
}

func (c *Client) reportError(err error) {
	c.log.Warningf("%v", err)
	if c.onError != nil {
		c.onError(err)
	}
}

// registerHandler allocates a free request ID and binds a reply sink to it.
// The allocator scans forward from the last issued ID; it fails when all
// 256 IDs are in flight.
func (c *Client) registerHandler(onReply func(header *ResponseHeader, data []byte)) (uint8, error) {
	c.Lock()
	defer c.Unlock()

	if c.conn == nil {
		return 0, yaskawa.NewError(yaskawa.KindNotConnected, "client is not connected")
	}
	if len(c.handlers) >= 256 {
		return 0, yaskawa.NewError(yaskawa.KindInvalidArgument, "no free request id")
	}

	id := c.nextID
	for {
		if _, busy := c.handlers[id]; !busy {
			break
		}
		id++
	}
	c.nextID = id + 1
	c.handlers[id] = &openRequest{start: time.Now(), onReply: onReply}
	return id, nil
}

// removeHandler unbinds a request ID.  Removal happens atomically with
// session resolution; late replies for the ID are reported as unsolicited.
func (c *Client) removeHandler(id uint8) {
	c.Lock()
	delete(c.handlers, id)
	c.Unlock()
}

// send transmits one encoded frame.
func (c *Client) send(frame []byte) error {
	c.Lock()
	conn := c.conn
	c.Unlock()
	if conn == nil {
		return yaskawa.NewError(yaskawa.KindNotConnected, "client is not connected")
	}
	if _, err := conn.Write(frame); err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "writing datagram")
	}
	instrument.PacketsSent()
	return nil
}

// ctxError maps a context's terminal state to the matching error kind.
func ctxError(ctx context.Context) *yaskawa.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return yaskawa.NewError(yaskawa.KindTimeout, "deadline exceeded")
	}
	return yaskawa.NewError(yaskawa.KindCancelled, "operation cancelled")
}
