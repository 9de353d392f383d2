// client_test.go - Stream client tests against an in-process fake server.
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
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/katzenpost/katzenpost/core/log"
	"github.com/stretchr/testify/require"

	"github.com/robostack/yaskawa"
)

// fakeServer runs a scripted ASCII HSES peer on a loopback socket.  The
// script maps a received command line to the full response text to write.
type fakeServer struct {
	t        *testing.T
	listener net.Listener
	script   func(line string, data string) string

	wg sync.WaitGroup
}

func newFakeServer(t *testing.T, script func(line, data string) string) *fakeServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeServer{t: t, listener: listener, script: script}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.close)
	return f
}

func (f *fakeServer) serve() {
	defer f.wg.Done()
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Start command.
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	if !strings.HasPrefix(line, "CONNECT Robot_access") {
		conn.Write([]byte("NG: bad start command\r\n"))
		return
	}
	conn.Write([]byte("OK: Robot_access\r\n"))

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		data, err := reader.ReadString('\r')
		if err != nil {
			return
		}
		response := f.script(strings.TrimSuffix(line, "\r\n"), strings.TrimSuffix(data, "\r"))
		if _, err := conn.Write([]byte(response)); err != nil {
			return
		}
	}
}

func (f *fakeServer) close() {
	f.listener.Close()
	f.wg.Wait()
}

func (f *fakeServer) port() uint16 {
	return uint16(f.listener.Addr().(*net.TCPAddr).Port)
}

func testLogBackend(t *testing.T) *log.Backend {
	backend, err := log.New("", "ERROR", false)
	require.NoError(t, err)
	return backend
}

func connectedClient(t *testing.T, f *fakeServer) *Client {
	client := NewClient(testLogBackend(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx, "127.0.0.1", f.port(), 0))
	t.Cleanup(client.Close)
	return client
}

func TestReadByteVariable(t *testing.T) {
	server := newFakeServer(t, func(line, data string) string {
		require.Equal(t, "HOSTCTRL_REQUEST SAVEV 4", line)
		require.Equal(t, "0,3", data)
		return "OK: 0000\r\n7\r"
	})
	client := connectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := client.ReadUint8Var(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, uint8(7), value)
}

func TestWriteInt16Variable(t *testing.T) {
	server := newFakeServer(t, func(line, data string) string {
		require.Equal(t, "HOSTCTRL_REQUEST LOADV 7", line)
		require.Equal(t, "1,6,-5", data)
		return "OK: 0000\r\n"
	})
	client := connectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.WriteInt16Var(ctx, 6, -5))
}

func TestCommandFailure(t *testing.T) {
	server := newFakeServer(t, func(line, data string) string {
		return "NG: unknown variable\r\n"
	})
	client := connectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.ReadUint8Var(ctx, 200)
	require.Equal(t, yaskawa.KindCommandFailed, yaskawa.KindOf(err))
}

func TestReadPositionVariable(t *testing.T) {
	server := newFakeServer(t, func(line, data string) string {
		require.Equal(t, "4,1", data)
		return "OK: 0000\r\n1,0,100.000,-200.500,300.000,0.0000,0.0000,45.0000,0,1\r"
	})
	client := connectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	position, err := client.ReadPositionVar(ctx, 1)
	require.NoError(t, err)

	cartesian := position.(yaskawa.CartesianPosition)
	require.Equal(t, yaskawa.Base, cartesian.Frame)
	require.InDelta(t, -200.5, cartesian.Y, 0.001)
}

func TestReadTimeout(t *testing.T) {
	server := newFakeServer(t, func(line, data string) string {
		time.Sleep(time.Second)
		return "OK: 0000\r\n7\r"
	})
	client := connectedClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.ReadUint8Var(ctx, 3)
	require.Equal(t, yaskawa.KindTimeout, yaskawa.KindOf(err))
}

func TestNotConnected(t *testing.T) {
	client := NewClient(testLogBackend(t))
	_, err := client.ReadUint8Var(context.Background(), 3)
	require.Equal(t, yaskawa.KindNotConnected, yaskawa.KindOf(err))
}
