// main.go - Controller status and position reader.
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
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	kpLog "github.com/katzenpost/katzenpost/core/log"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/udp"
)

func main() {
	port := flag.Uint("port", udp.DefaultPort, "UDP port of the controller")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	controlGroup := flag.Int("control-group", 0, "control group to read the position of")
	asYAML := flag.Bool("yaml", false, "print the position as YAML")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ystatus",
	})

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] host\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	host := flag.Arg(0)

	logBackend, err := kpLog.New("", "NOTICE", false)
	if err != nil {
		logger.Fatal("Failed to create log backend", "error", err)
	}

	client := udp.NewClient(&udp.Config{LogBackend: logBackend})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Connect(ctx, host, uint16(*port)); err != nil {
		logger.Fatal("Failed to connect", "error", err)
	}
	defer client.Close()

	// One fan-out: status and cartesian position under a single deadline.
	responses, err := client.SendCommands(ctx,
		udp.ReadStatus{},
		udp.ReadCurrentPosition{ControlGroup: *controlGroup, CoordinateSystem: yaskawa.RobotCartesian},
	)
	if err != nil {
		logger.Fatal("Failed to read controller state", "error", err)
	}

	status := responses[0].(yaskawa.Status)
	position := responses[1].(yaskawa.Position)

	fmt.Printf("step:               %v\n", status.Step)
	fmt.Printf("one_cycle:          %v\n", status.OneCycle)
	fmt.Printf("continuous:         %v\n", status.Continuous)
	fmt.Printf("running:            %v\n", status.Running)
	fmt.Printf("speed_limited:      %v\n", status.SpeedLimited)
	fmt.Printf("teach:              %v\n", status.Teach)
	fmt.Printf("play:               %v\n", status.Play)
	fmt.Printf("remote:             %v\n", status.Remote)
	fmt.Printf("teach_pendant_hold: %v\n", status.TeachPendantHold)
	fmt.Printf("external_hold:      %v\n", status.ExternalHold)
	fmt.Printf("command_hold:       %v\n", status.CommandHold)
	fmt.Printf("alarm:              %v\n", status.Alarm)
	fmt.Printf("error:              %v\n", status.Error)
	fmt.Printf("servo_on:           %v\n", status.ServoOn)

	if *asYAML {
		document, err := yaskawa.MarshalPosition(position)
		if err != nil {
			logger.Fatal("Failed to marshal position", "error", err)
		}
		os.Stdout.Write(document)
	} else {
		fmt.Printf("position:           %s\n", position)
	}
}
