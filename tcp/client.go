// client.go - Stream client with per-command send/receive sessions.
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

package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/katzenpost/katzenpost/core/log"
	"gopkg.in/op/go-logging.v1"

	"github.com/robostack/yaskawa"
)

// Client is a client for the ASCII HSES protocol.  Only one command is in
// flight at a time; concurrent callers serialize on the client.
type Client struct {
	log *logging.Logger

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// NewClient creates a new, unconnected client.
func NewClient(logBackend *log.Backend) *Client {
	return &Client{
		log: logBackend.GetLogger("tcp/client"),
	}
}

// Connect dials the controller and performs the start command, optionally
// requesting keep-alive probes every keepAlive seconds.
func (c *Client) Connect(ctx context.Context, host string, port uint16, keepAlive int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return yaskawa.NewError(yaskawa.KindInvalidArgument, "client is already connected")
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		if ctx.Err() != nil {
			return ctxError(ctx).Push("connecting to %s", host)
		}
		return yaskawa.WrapError(yaskawa.KindTransport, err, "connecting to %s", host)
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)

	message, err := c.exchange(ctx, appendStartCommand(nil, keepAlive))
	if err != nil {
		conn.Close()
		c.conn = nil
		c.rd = nil
		return yaskawa.Push(err, "starting session with %s", host)
	}
	if _, err := decodeCommandResponse(message); err != nil {
		conn.Close()
		c.conn = nil
		c.rd = nil
		return yaskawa.Push(err, "starting session with %s", host)
	}

	c.log.Debugf("Connected to %v.", conn.RemoteAddr())
	return nil
}

// Close shuts down the connection.  Subsequent operations fail with
// NotConnected.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.rd = nil
	}
}

// exchange writes one request and reads one matcher-framed response.
// The caller must hold c.mu.
func (c *Client) exchange(ctx context.Context, request []byte) ([]byte, error) {
	if c.conn == nil {
		return nil, yaskawa.NewError(yaskawa.KindNotConnected, "client is not connected")
	}

	// A missing context deadline yields the zero time, which clears any
	// previous socket deadline.
	deadline, _ := ctx.Deadline()
	c.conn.SetDeadline(deadline)

	if len(request) > 0 {
		if _, err := c.conn.Write(request); err != nil {
			return nil, c.ioError(err, "writing command")
		}
	}
	return c.readMessage()
}

// readMessage reads bytes until the framing matcher reports the end of one
// message.  The caller must hold c.mu.
func (c *Client) readMessage() ([]byte, error) {
	var matcher ResponseMatcher
	var message []byte
	for {
		b, err := c.rd.ReadByte()
		if err != nil {
			return nil, c.ioError(err, "reading response")
		}
		message = append(message, b)
		if matcher.Consume(b) {
			return message, nil
		}
	}
}

func (c *Client) ioError(err error, doing string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return yaskawa.NewError(yaskawa.KindTimeout, "%s", doing)
	}
	if err == os.ErrDeadlineExceeded {
		return yaskawa.NewError(yaskawa.KindTimeout, "%s", doing)
	}
	return yaskawa.WrapError(yaskawa.KindTransport, err, "%s", doing)
}

// command sends one HOSTCTRL_REQUEST with its data body and parses the
// first response line.  For read commands (wantData) it then reads and
// returns the CR-terminated data body.
func (c *Client) command(ctx context.Context, name, params string, wantData bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	request := appendCommand(nil, name, params)
	message, err := c.exchange(ctx, request)
	if err != nil {
		return nil, yaskawa.Push(err, "command %s", name)
	}
	if _, err := decodeCommandResponse(message); err != nil {
		return nil, yaskawa.Push(err, "command %s", name)
	}
	if !wantData {
		return nil, nil
	}

	data, err := c.readMessage()
	if err != nil {
		return nil, yaskawa.Push(err, "command %s", name)
	}
	return data, nil
}

func variableTypeCode(t yaskawa.VariableType) string {
	return strconv.Itoa(int(t))
}

// ReadUint8Var reads one byte variable.
func (c *Client) ReadUint8Var(ctx context.Context, index int) (uint8, error) {
	data, err := c.command(ctx, "SAVEV", formatParams(variableTypeCode(yaskawa.ByteType), strconv.Itoa(index)), true)
	if err != nil {
		return 0, err
	}
	value, err := decodeIntData(data, 0, 255)
	if err != nil {
		return 0, err
	}
	return uint8(value), nil
}

// WriteUint8Var writes one byte variable.
func (c *Client) WriteUint8Var(ctx context.Context, index int, value uint8) error {
	params := formatParams(variableTypeCode(yaskawa.ByteType), strconv.Itoa(index), strconv.Itoa(int(value)))
	_, err := c.command(ctx, "LOADV", params, false)
	return err
}

// ReadInt16Var reads one integer variable.
func (c *Client) ReadInt16Var(ctx context.Context, index int) (int16, error) {
	data, err := c.command(ctx, "SAVEV", formatParams(variableTypeCode(yaskawa.IntegerType), strconv.Itoa(index)), true)
	if err != nil {
		return 0, err
	}
	value, err := decodeIntData(data, -1<<15, 1<<15-1)
	if err != nil {
		return 0, err
	}
	return int16(value), nil
}

// WriteInt16Var writes one integer variable.
func (c *Client) WriteInt16Var(ctx context.Context, index int, value int16) error {
	params := formatParams(variableTypeCode(yaskawa.IntegerType), strconv.Itoa(index), strconv.Itoa(int(value)))
	_, err := c.command(ctx, "LOADV", params, false)
	return err
}

// ReadInt32Var reads one double-integer variable.
func (c *Client) ReadInt32Var(ctx context.Context, index int) (int32, error) {
	data, err := c.command(ctx, "SAVEV", formatParams(variableTypeCode(yaskawa.DoubleType), strconv.Itoa(index)), true)
	if err != nil {
		return 0, err
	}
	value, err := decodeIntData(data, -1<<31, 1<<31-1)
	if err != nil {
		return 0, err
	}
	return int32(value), nil
}

// WriteInt32Var writes one double-integer variable.
func (c *Client) WriteInt32Var(ctx context.Context, index int, value int32) error {
	params := formatParams(variableTypeCode(yaskawa.DoubleType), strconv.Itoa(index), strconv.FormatInt(int64(value), 10))
	_, err := c.command(ctx, "LOADV", params, false)
	return err
}

// ReadFloat32Var reads one real variable.
func (c *Client) ReadFloat32Var(ctx context.Context, index int) (float32, error) {
	data, err := c.command(ctx, "SAVEV", formatParams(variableTypeCode(yaskawa.RealType), strconv.Itoa(index)), true)
	if err != nil {
		return 0, err
	}
	value, err := decodeFloatData(data)
	if err != nil {
		return 0, err
	}
	return float32(value), nil
}

// WriteFloat32Var writes one real variable.
func (c *Client) WriteFloat32Var(ctx context.Context, index int, value float32) error {
	params := formatParams(variableTypeCode(yaskawa.RealType), strconv.Itoa(index), strconv.FormatFloat(float64(value), 'f', -1, 32))
	_, err := c.command(ctx, "LOADV", params, false)
	return err
}

// ReadPositionVar reads one robot position variable.
func (c *Client) ReadPositionVar(ctx context.Context, index int) (yaskawa.Position, error) {
	data, err := c.command(ctx, "SAVEV", formatParams(variableTypeCode(yaskawa.RobotPositionType), strconv.Itoa(index)), true)
	if err != nil {
		return nil, err
	}
	return decodePositionData(data)
}

// WritePositionVar writes one robot position variable.
func (c *Client) WritePositionVar(ctx context.Context, index int, value yaskawa.Position) error {
	position, err := formatPosition(value)
	if err != nil {
		return err
	}
	params := formatParams(variableTypeCode(yaskawa.RobotPositionType), strconv.Itoa(index), position)
	_, err = c.command(ctx, "LOADV", params, false)
	return err
}

// ctxError maps a context's terminal state to the matching error kind.
func ctxError(ctx context.Context) *yaskawa.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return yaskawa.NewError(yaskawa.KindTimeout, "deadline exceeded")
	}
	return yaskawa.NewError(yaskawa.KindCancelled, "operation cancelled")
}
