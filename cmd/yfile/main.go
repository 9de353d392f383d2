// main.go - File manager for the controller's file system.
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
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	kpLog "github.com/katzenpost/katzenpost/core/log"
	"golang.org/x/term"

	"github.com/robostack/yaskawa/udp"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] host command [args...]\n\ncommands:\n\tls [type]\n\tget name\n\tput name\n\tdelete name\n\nflags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	port := flag.Uint("port", udp.DefaultPort, "UDP port of the controller")
	timeout := flag.Duration("timeout", 30*time.Second, "whole-transfer timeout")
	logLevel := flag.String("log-level", "NOTICE", "log level for the client")
	flag.Usage = usage
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "yfile",
	})

	if flag.NArg() < 2 {
		usage()
		os.Exit(1)
	}
	host := flag.Arg(0)
	command := flag.Arg(1)
	args := flag.Args()[2:]

	logBackend, err := kpLog.New("", *logLevel, false)
	if err != nil {
		logger.Fatal("Failed to create log backend", "error", err)
	}

	client := udp.NewClient(&udp.Config{
		LogBackend: logBackend,
		OnError: func(err error) {
			logger.Warn("Client error", "error", err)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Connect(ctx, host, uint16(*port)); err != nil {
		logger.Fatal("Failed to connect", "error", err)
	}
	defer client.Close()

	switch command {
	case "ls":
		fileType := "*.*"
		if len(args) > 0 {
			fileType = args[0]
		}
		names, err := client.ReadFileList(ctx, fileType, nil)
		if err != nil {
			logger.Fatal("Failed to read file list", "error", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		data, err := client.ReadFile(ctx, args[0], func(received int) {
			logger.Info("Receiving", "bytes", received)
		})
		if err != nil {
			logger.Fatal("Failed to read file", "error", err)
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			logger.Fatal("Failed to write local file", "error", err)
		}
		logger.Info("Downloaded", "name", args[0], "bytes", len(data))

	case "put":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			logger.Fatal("Failed to read local file", "error", err)
		}
		if err := client.WriteFile(ctx, args[0], data, func(sent, total int) {
			logger.Info("Sending", "bytes", sent, "total", total)
		}); err != nil {
			logger.Fatal("Failed to write file", "error", err)
		}
		logger.Info("Uploaded", "name", args[0], "bytes", len(data))

	case "delete":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		if !confirm(fmt.Sprintf("delete %s from %s?", args[0], host)) {
			logger.Info("Aborted")
			return
		}
		if err := client.DeleteFile(ctx, args[0]); err != nil {
			logger.Fatal("Failed to delete file", "error", err)
		}
		logger.Info("Deleted", "name", args[0])

	default:
		usage()
		os.Exit(1)
	}
}

// confirm asks for confirmation when running interactively and defaults to
// yes otherwise.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
