// server.go - Polling RPC server over controller byte variables.
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

// Package rpcserver dispatches named services when the controller writes a
// request code into a run of byte variables.  It polls the variables
// through a udp.Client, runs the service's pre-commands and handler, and
// writes the resulting status back.
package rpcserver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/katzenpost/katzenpost/core/log"
	"github.com/katzenpost/katzenpost/core/worker"
	"gopkg.in/op/go-logging.v1"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/instrument"
	"github.com/robostack/yaskawa/udp"
)

// Service status codes exchanged through the controller's byte variables.
const (
	StatusIdle      uint8 = 0
	StatusRequested uint8 = 1
	StatusError     uint8 = 2
)

// commandTimeout bounds the status variable reads and writes of the poll
// loop itself.
const commandTimeout = 100 * time.Millisecond

// Handler runs the user logic of a service.  It receives the responses of
// the service's pre-commands in registration order and must call resolve
// exactly once.
type Handler func(results []interface{}, resolve func(error))

type service struct {
	name        string
	busy        atomic.Bool
	preCommands []udp.Command
	timeout     time.Duration
	handler     Handler
}

// Server is the polling RPC server.
type Server struct {
	worker.Worker

	log     *logging.Logger
	client  *udp.Client
	base    uint8
	delay   time.Duration
	onError func(error)

	mu       sync.Mutex
	services []*service

	started atomic.Bool
	stopped atomic.Bool
}

// New creates an RPC server polling byte variables starting at base.  A
// zero delay re-polls immediately.
func New(client *udp.Client, base uint8, delay time.Duration, onError func(error), logBackend *log.Backend) *Server {
	return &Server{
		log:     logBackend.GetLogger("rpcserver"),
		client:  client,
		base:    base,
		delay:   delay,
		onError: onError,
	}
}

// AddService registers a named service.  When the controller requests it,
// the pre-commands run as one fan-out under the given timeout and, on
// success, handler receives their results.  The service's status variable
// is base + its registration index.
func (s *Server) AddService(name string, preCommands []udp.Command, timeout time.Duration, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, &service{
		name:        name,
		preCommands: preCommands,
		timeout:     timeout,
		handler:     handler,
	})
}

// Start transitions the server from stopped to running.  It returns false
// if the server was already started.
func (s *Server) Start() bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	s.Go(s.pollWorker)
	return true
}

// Stop transitions the server from running to stopped; the poll loop exits
// after its current iteration.  It returns false if the server was already
// stopped.
func (s *Server) Stop() bool {
	if !s.stopped.CompareAndSwap(false, true) {
		return false
	}
	s.Halt()
	return true
}

func (s *Server) pollWorker() {
	defer s.log.Debugf("Poll loop terminated.")

	for {
		s.pollOnce()

		if s.delay > 0 {
			select {
			case <-s.HaltCh():
				return
			case <-time.After(s.delay):
			}
		} else {
			select {
			case <-s.HaltCh():
				return
			default:
			}
		}
	}
}

func (s *Server) pollOnce() {
	s.mu.Lock()
	services := s.services
	s.mu.Unlock()
	if len(services) == 0 {
		return
	}

	// The controller requires byte variable reads of an even count.
	count := (len(services) + 1) / 2 * 2

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	statuses, err := s.client.ReadUint8Vars(ctx, s.base, uint8(count))
	cancel()
	if err != nil {
		s.reportError(yaskawa.Push(err, "reading command status variables"))
		return
	}

	for i := range services {
		if statuses[i] == StatusRequested {
			s.execute(i, services[i])
		}
	}
}

// execute dispatches one requested service unless it is already busy.
func (s *Server) execute(index int, svc *service) bool {
	if !svc.busy.CompareAndSwap(false, true) {
		return false
	}
	instrument.RPCCalls()

	statusVar := s.base + uint8(index)
	var once sync.Once
	resolve := func(err error) {
		once.Do(func() {
			if err != nil {
				s.reportError(yaskawa.Push(err, "executing service %s", svc.name))
			}

			// Always write the status, also after an error.
			status := StatusIdle
			if err != nil {
				status = StatusError
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			werr := s.client.WriteUint8Var(ctx, statusVar, status)
			cancel()
			if werr != nil {
				// The controller keeps its previous status value; there is
				// no supervisor to retry the write.
				s.reportError(yaskawa.Push(werr, "writing status for service %s", svc.name))
			}
			svc.busy.Store(false)
		})
	}

	go func() {
		var results []interface{}
		if len(svc.preCommands) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
			defer cancel()
			var err error
			results, err = s.client.SendCommands(ctx, svc.preCommands...)
			if err != nil {
				resolve(err)
				return
			}
		}
		svc.handler(results, resolve)
	}()
	return true
}

func (s *Server) reportError(err error) {
	s.log.Warningf("%v", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// Disabled is a handler for services that are configured but not enabled.
func Disabled(_ []interface{}, resolve func(error)) {
	resolve(yaskawa.NewError(yaskawa.KindInvalidArgument, "service is disabled"))
}
