// main.go - JSON-RPC-over-HTTP gateway to a robot controller.
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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	kpLog "github.com/katzenpost/katzenpost/core/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/udp"
)

// Config is the gateway's TOML configuration.
type Config struct {
	Listen  string
	Timeout duration

	Robot struct {
		Host string
		Port uint16
	}

	Logging struct {
		File  string
		Level string
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	d.Duration = parsed
	return err
}

// VariableService is the JSON-RPC surface of the gateway.
type VariableService struct {
	client  *udp.Client
	timeout time.Duration
}

func (s *VariableService) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

type StatusReply struct {
	Status yaskawa.Status
}

func (s *VariableService) Status(_ *http.Request, _ *struct{}, reply *StatusReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	status, err := s.client.ReadStatus(ctx)
	if err != nil {
		return err
	}
	reply.Status = status
	return nil
}

type ReadBytesArgs struct {
	Index uint8
	Count uint8
}

type ReadBytesReply struct {
	Values []uint8
}

func (s *VariableService) ReadBytes(_ *http.Request, args *ReadBytesArgs, reply *ReadBytesReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	values, err := s.client.ReadUint8Vars(ctx, args.Index, args.Count)
	if err != nil {
		return err
	}
	reply.Values = values
	return nil
}

type WriteBytesArgs struct {
	Index  uint8
	Values []uint8
}

func (s *VariableService) WriteBytes(_ *http.Request, args *WriteBytesArgs, _ *struct{}) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.WriteUint8Vars(ctx, args.Index, args.Values)
}

type ReadFloatsArgs struct {
	Index uint8
	Count uint8
}

type ReadFloatsReply struct {
	Values []float32
}

func (s *VariableService) ReadFloats(_ *http.Request, args *ReadFloatsArgs, reply *ReadFloatsReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	values, err := s.client.ReadFloat32Vars(ctx, args.Index, args.Count)
	if err != nil {
		return err
	}
	reply.Values = values
	return nil
}

type WriteFloatsArgs struct {
	Index  uint8
	Values []float32
}

func (s *VariableService) WriteFloats(_ *http.Request, args *WriteFloatsArgs, _ *struct{}) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.WriteFloat32Vars(ctx, args.Index, args.Values)
}

type ReadPositionArgs struct {
	ControlGroup int
}

type ReadPositionReply struct {
	// Position is a tagged YAML document, see yaskawa.MarshalPosition.
	Position string
}

func (s *VariableService) ReadPosition(_ *http.Request, args *ReadPositionArgs, reply *ReadPositionReply) error {
	ctx, cancel := s.ctx()
	defer cancel()
	position, err := s.client.ReadCurrentPosition(ctx, args.ControlGroup, yaskawa.RobotCartesian)
	if err != nil {
		return err
	}
	document, err := yaskawa.MarshalPosition(position)
	if err != nil {
		return err
	}
	reply.Position = string(document)
	return nil
}

func main() {
	configPath := flag.String("config", "ygateway.toml", "gateway configuration")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ygateway",
	})

	cfg := &Config{Listen: ":8080"}
	cfg.Robot.Port = udp.DefaultPort
	cfg.Timeout.Duration = 2 * time.Second
	cfg.Logging.Level = "NOTICE"
	if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logBackend, err := kpLog.New(cfg.Logging.File, cfg.Logging.Level, false)
	if err != nil {
		logger.Fatal("Failed to create log backend", "error", err)
	}

	client := udp.NewClient(&udp.Config{
		LogBackend: logBackend,
		OnError: func(err error) {
			logger.Warn("Client error", "error", err)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Duration)
	if err := client.Connect(ctx, cfg.Robot.Host, cfg.Robot.Port); err != nil {
		cancel()
		logger.Fatal("Failed to connect", "error", err)
	}
	cancel()
	defer client.Close()

	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	if err := server.RegisterService(&VariableService{client: client, timeout: cfg.Timeout.Duration}, "Robot"); err != nil {
		logger.Fatal("Failed to register RPC service", "error", err)
	}

	http.Handle("/rpc", server)
	http.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.Listen}
	go func() {
		logger.Info("Listening", "address", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	logger.Info("Shutting down")
	httpServer.Close()
}
