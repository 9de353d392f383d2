// server_test.go - Poll loop tests against an in-process fake controller.
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

package rpcserver

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/katzenpost/katzenpost/core/log"
	"github.com/stretchr/testify/require"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/udp"
)

const (
	cmdInt8Variable  = 0x7a
	cmdMultipleInt8  = 0x302
	cmdInt16Variable = 0x7b
)

// fakeController keeps a byte variable bank and answers the poll loop's
// reads and writes.
type fakeController struct {
	t    *testing.T
	conn *net.UDPConn

	mu   sync.Mutex
	vars map[uint16]uint8

	wrote chan struct{}
	wg    sync.WaitGroup
}

func newFakeController(t *testing.T) *fakeController {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	f := &fakeController{
		t:     t,
		conn:  conn,
		vars:  make(map[uint16]uint8),
		wrote: make(chan struct{}, 16),
	}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(func() {
		conn.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeController) port() uint16 {
	return uint16(f.conn.LocalAddr().(*net.UDPAddr).Port)
}

func (f *fakeController) set(index uint16, value uint8) {
	f.mu.Lock()
	f.vars[index] = value
	f.mu.Unlock()
}

func (f *fakeController) get(index uint16) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vars[index]
}

// response constructs a reply frame mirroring the request's ID.
func response(requestID uint8, status uint8, payload []byte) []byte {
	frame := make([]byte, 0, 32+len(payload))
	frame = append(frame, 'Y', 'E', 'R', 'C')
	frame = binary.LittleEndian.AppendUint16(frame, 32)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, 3, 1, 1, requestID)
	frame = binary.LittleEndian.AppendUint32(frame, 0)
	frame = append(frame, "99999999"...)
	frame = append(frame, 1, status, 0, 0, 0, 0, 0, 0)
	return append(frame, payload...)
}

func (f *fakeController) serve() {
	defer f.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, addr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 32 {
			continue
		}

		requestID := buf[11]
		command := binary.LittleEndian.Uint16(buf[24:])
		instance := binary.LittleEndian.Uint16(buf[26:])
		payload := buf[32:n]

		var reply []byte
		switch command {
		case cmdMultipleInt8:
			count := binary.LittleEndian.Uint32(payload)
			values := make([]byte, 4, 4+count)
			binary.LittleEndian.PutUint32(values, count)
			for i := uint32(0); i < count; i++ {
				values = append(values, f.get(instance+uint16(i)))
			}
			reply = response(requestID, 0, values)
		case cmdInt8Variable:
			if len(payload) == 1 {
				// Single byte write.
				f.set(instance, payload[0])
				reply = response(requestID, 0, nil)
				f.wrote <- struct{}{}
			} else {
				reply = response(requestID, 0, []byte{f.get(instance)})
			}
		case cmdInt16Variable:
			reply = response(requestID, 0, []byte{0xFB, 0xFF})
		default:
			reply = response(requestID, 0xFF, nil)
		}
		if _, err := f.conn.WriteToUDP(reply, addr); err != nil {
			return
		}
	}
}

func testSetup(t *testing.T) (*fakeController, *udp.Client, *log.Backend) {
	controller := newFakeController(t)

	logBackend, err := log.New("", "ERROR", false)
	require.NoError(t, err)

	client := udp.NewClient(&udp.Config{LogBackend: logBackend})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx, "127.0.0.1", controller.port()))
	t.Cleanup(client.Close)

	return controller, client, logBackend
}

func TestServiceDispatch(t *testing.T) {
	controller, client, logBackend := testSetup(t)

	const base = 10
	controller.set(base, StatusRequested)

	called := make(chan []interface{}, 16)
	server := New(client, base, 10*time.Millisecond, nil, logBackend)
	server.AddService("beep", []udp.Command{udp.ReadInt16Vars{Index: 6, Count: 1}}, time.Second,
		func(results []interface{}, resolve func(error)) {
			controller.set(base, StatusIdle)
			called <- results
			resolve(nil)
		})

	require.True(t, server.Start())
	require.False(t, server.Start())
	defer server.Stop()

	select {
	case results := <-called:
		require.Len(t, results, 1)
		require.Equal(t, []int16{-5}, results[0])
	case <-time.After(5 * time.Second):
		t.Fatal("service was never dispatched")
	}

	// The post-execution status write marks the service idle.
	select {
	case <-controller.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("status variable was never written back")
	}
	require.Equal(t, StatusIdle, controller.get(base))
}

func TestServiceErrorStatus(t *testing.T) {
	controller, client, logBackend := testSetup(t)

	const base = 20
	controller.set(base, StatusRequested)

	errCh := make(chan error, 16)
	server := New(client, base, 10*time.Millisecond, func(err error) { errCh <- err }, logBackend)
	server.AddService("broken", nil, time.Second,
		func(results []interface{}, resolve func(error)) {
			// Stop the controller from requesting again before resolving.
			controller.set(base, StatusIdle)
			resolve(yaskawa.NewError(yaskawa.KindInvalidArgument, "nope"))
		})

	require.True(t, server.Start())
	defer server.Stop()

	select {
	case <-controller.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("status variable was never written back")
	}
	require.Equal(t, StatusError, controller.get(base))

	select {
	case err := <-errCh:
		require.Equal(t, yaskawa.KindInvalidArgument, yaskawa.KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("error sink never received the service error")
	}
}

func TestBusyServiceIsNotDispatchedTwice(t *testing.T) {
	controller, client, logBackend := testSetup(t)

	const base = 30
	controller.set(base, StatusRequested)

	var mu sync.Mutex
	dispatched := 0
	release := make(chan struct{})

	server := New(client, base, 5*time.Millisecond, nil, logBackend)
	server.AddService("slow", nil, time.Second,
		func(results []interface{}, resolve func(error)) {
			mu.Lock()
			dispatched++
			mu.Unlock()
			go func() {
				<-release
				controller.set(base, StatusIdle)
				resolve(nil)
			}()
		})

	require.True(t, server.Start())
	defer server.Stop()

	// Let the poll loop observe the requested status several times while
	// the service is still busy.
	time.Sleep(200 * time.Millisecond)
	close(release)

	select {
	case <-controller.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("status variable was never written back")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, dispatched)
}

func TestStopEndsPolling(t *testing.T) {
	_, client, logBackend := testSetup(t)

	server := New(client, 0, time.Millisecond, nil, logBackend)
	server.AddService("noop", nil, time.Second, Disabled)

	require.True(t, server.Start())
	require.True(t, server.Stop())
	require.False(t, server.Stop())
}
