// instrument.go - Prometheus metrics for transport events.
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

// Package instrument counts transport events for prometheus scraping.
package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "packets_sent_total",
		Help:      "Number of datagrams sent to the controller.",
	})
	packetsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "packets_received_total",
		Help:      "Number of datagrams received from the controller.",
	})
	packetsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "packets_dropped_total",
		Help:      "Number of inbound datagrams dropped as malformed or unsolicited.",
	})
	timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "timeouts_total",
		Help:      "Number of requests that timed out.",
	})
	fileTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "file_transfers_total",
		Help:      "Number of completed multi-block file transfers.",
	})
	rpcCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yaskawa",
		Name:      "rpc_calls_total",
		Help:      "Number of RPC services dispatched by the polling server.",
	})
)

func PacketsSent()     { packetsSent.Inc() }
func PacketsReceived() { packetsReceived.Inc() }
func PacketsDropped()  { packetsDropped.Inc() }
func Timeouts()        { timeouts.Inc() }
func FileTransfers()   { fileTransfers.Inc() }
func RPCCalls()        { rpcCalls.Inc() }
