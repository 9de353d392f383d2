// plugin.go - Out-of-process service handlers over a CBOR unix socket.
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
	"bufio"
	"io"
	"net"
	"os/exec"
	"sync"
	"syscall"

	"github.com/fxamacker/cbor/v2"
	"github.com/katzenpost/katzenpost/core/log"
	"github.com/katzenpost/katzenpost/core/worker"
	"gopkg.in/op/go-logging.v1"

	"github.com/robostack/yaskawa"
)

// PluginRequest is sent to the plugin for each dispatched service call.
// The pre-command results are individually CBOR-encoded.
type PluginRequest struct {
	Service string
	Results [][]byte
}

// PluginResponse is the plugin's verdict on one service call.
type PluginResponse struct {
	Ok    bool
	Error string
}

// PluginClient runs a service handler as an external program.  The plugin
// prints the path of its unix socket on its first stdout line and then
// answers CBOR-encoded PluginRequests with PluginResponses on that socket.
type PluginClient struct {
	worker.Worker

	logBackend *log.Backend
	log        *logging.Logger

	service string
	cmd     *exec.Cmd

	mu         sync.Mutex
	socketFile string
	conn       net.Conn
	encoder    *cbor.Encoder
	decoder    *cbor.Decoder
}

// NewPluginClient creates a plugin client for the named service.
func NewPluginClient(logBackend *log.Backend, service string) *PluginClient {
	return &PluginClient{
		logBackend: logBackend,
		log:        logBackend.GetLogger("rpcserver/plugin"),
		service:    service,
	}
}

// Start execs the plugin program, reads its socket path, connects to it and
// starts the reaper worker that terminates the plugin on Halt.
func (p *PluginClient) Start(command string, args []string) error {
	if err := p.launch(command, args); err != nil {
		return err
	}

	conn, err := net.Dial("unix", p.socketFile)
	if err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "connecting to plugin socket %s", p.socketFile)
	}
	p.mu.Lock()
	p.conn = conn
	p.encoder = cbor.NewEncoder(conn)
	p.decoder = cbor.NewDecoder(conn)
	p.mu.Unlock()

	p.Go(p.reaper)
	return nil
}

func (p *PluginClient) launch(command string, args []string) error {
	p.cmd = exec.Command(command, args...)
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "creating plugin stdout pipe")
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "creating plugin stderr pipe")
	}
	if err := p.cmd.Start(); err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "executing plugin %s", command)
	}

	// Proxy plugin stderr into our debug log. Also halts the plugin client
	// when stderr closes because the program crashed or was killed.
	p.Go(func() {
		p.logPluginStderr(stderr)
	})

	stdoutScanner := bufio.NewScanner(stdout)
	stdoutScanner.Scan()
	p.socketFile = stdoutScanner.Text()
	p.log.Debugf("plugin socket path: '%s'", p.socketFile)
	return nil
}

func (p *PluginClient) logPluginStderr(stderr io.ReadCloser) {
	logWriter := p.logBackend.GetLogWriter(p.cmd.Path, "DEBUG")
	if _, err := io.Copy(logWriter, stderr); err != nil {
		p.log.Errorf("Failed to proxy plugin stderr to DEBUG log: %s", err)
	}
	p.Halt()
}

func (p *PluginClient) reaper() {
	<-p.HaltCh()
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.mu.Unlock()
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.log.Errorf("Error sending SIGTERM to plugin: %s", err)
	}
	if err := p.cmd.Wait(); err != nil {
		p.log.Errorf("Plugin exec error: %s", err)
	}
}

// call performs one request/response round trip with the plugin.
func (p *PluginClient) call(request *PluginRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return yaskawa.NewError(yaskawa.KindNotConnected, "plugin is not connected")
	}

	if err := p.encoder.Encode(request); err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "writing plugin request")
	}
	response := &PluginResponse{}
	if err := p.decoder.Decode(response); err != nil {
		return yaskawa.WrapError(yaskawa.KindTransport, err, "reading plugin response")
	}
	if !response.Ok {
		return yaskawa.NewError(yaskawa.KindCommandFailed, "%s", response.Error)
	}
	return nil
}

// Handler adapts the plugin into an RPC server service handler.
func (p *PluginClient) Handler() Handler {
	return func(results []interface{}, resolve func(error)) {
		request := &PluginRequest{Service: p.service}
		for _, result := range results {
			encoded, err := cbor.Marshal(result)
			if err != nil {
				resolve(yaskawa.WrapError(yaskawa.KindInvalidArgument, err, "encoding pre-command result for plugin"))
				return
			}
			request.Results = append(request.Results, encoded)
		}
		resolve(p.call(request))
	}
}
