// message.go - Wire constants and frame headers for the binary HSES transport.
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

// Package udp implements the binary, block-oriented request/response
// protocol of the Yaskawa High Speed Ethernet Server over a datagram
// socket, including the request multiplexer and multi-block file transfer.
package udp

// DefaultPort is the port the controller listens on for the binary
// protocol.
const DefaultPort = 10040

const (
	// HeaderSize is the fixed size of a request or response header.
	HeaderSize = 32

	// MaxPayloadSize is the maximum payload a single datagram may carry.
	MaxPayloadSize = 0x479
)

// lastBlock marks the final block of a multi-block file transfer.
const lastBlock = 0x80000000

// Division selects the top-level category of a request.
type Division uint8

const (
	DivisionRobot Division = 1
	DivisionFile  Division = 2
)

// Robot command numbers.
const (
	cmdReadAlarm                  = 0x70
	cmdReadAlarmHistory           = 0x71
	cmdReadStatusInformation      = 0x72
	cmdExecuteJobInformation      = 0x73
	cmdReadAxisConfiguration      = 0x74
	cmdReadRobotPosition          = 0x75
	cmdReadPositionError          = 0x76
	cmdReadTorque                 = 0x77
	cmdReadWriteIO                = 0x78
	cmdReadWriteRegister          = 0x79
	cmdReadWriteInt8Variable      = 0x7a
	cmdReadWriteInt16Variable     = 0x7b
	cmdReadWriteInt32Variable     = 0x7c
	cmdReadWriteFloatVariable     = 0x7d
	cmdReadWriteStringVariable    = 0x7e
	cmdReadWritePositionVariable  = 0x7f
	cmdReadWriteBasePosition      = 0x80
	cmdReadWriteExternalAxis      = 0x81
	cmdResetAlarm                 = 0x82
	cmdSetServoEnabled            = 0x83
	cmdSetExecutionMode           = 0x84
	cmdShowMessage                = 0x85
	cmdStartJob                   = 0x86
	cmdSelectJob                  = 0x87
	cmdReadManagementTime         = 0x88
	cmdReadSystemInformation      = 0x89
	cmdMoveCartesian              = 0x8a
	cmdMovePulse                  = 0x8b
	cmdReadWriteMultipleIO        = 0x300
	cmdReadWriteMultipleRegister  = 0x301
	cmdReadWriteMultipleInt8      = 0x302
	cmdReadWriteMultipleInt16     = 0x303
	cmdReadWriteMultipleInt32     = 0x304
	cmdReadWriteMultipleFloat     = 0x305
	cmdReadWriteMultipleString    = 0x306
	cmdReadWriteMultiplePosition  = 0x307
	cmdReadWriteMultipleBasePos   = 0x308
	cmdReadWriteMultipleExternal  = 0x309
	cmdReadAlarmData              = 0x30a
)

// File command numbers (carried in the service field of file requests).
const (
	cmdDeleteFile   = 0x09
	cmdWriteFile    = 0x15
	cmdReadFile     = 0x16
	cmdReadFileList = 0x32
)

// Service selectors.
const (
	serviceGetSingle     = 0x0e
	serviceSetSingle     = 0x10
	serviceGetAll        = 0x01
	serviceSetAll        = 0x02
	serviceReadMultiple  = 0x33
	serviceWriteMultiple = 0x34
)

// RequestHeader describes one outbound request frame.
type RequestHeader struct {
	PayloadSize uint16
	Division    Division
	Ack         bool
	RequestID   uint8
	BlockNumber uint32

	Command   uint16
	Instance  uint16
	Attribute uint8
	Service   uint8
}

// ResponseHeader describes one inbound reply frame.
type ResponseHeader struct {
	PayloadSize uint16
	Division    Division
	Ack         bool
	RequestID   uint8
	BlockNumber uint32

	Service     uint8
	Status      uint8
	ExtraStatus uint16
}

func makeRobotRequestHeader(payloadSize, command, instance uint16, attribute, service, requestID uint8) RequestHeader {
	return RequestHeader{
		PayloadSize: payloadSize,
		Division:    DivisionRobot,
		RequestID:   requestID,
		Command:     command,
		Instance:    instance,
		Attribute:   attribute,
		Service:     service,
	}
}

func makeFileRequestHeader(payloadSize uint16, service, requestID uint8, blockNumber uint32, ack bool) RequestHeader {
	return RequestHeader{
		PayloadSize: payloadSize,
		Division:    DivisionFile,
		Ack:         ack,
		RequestID:   requestID,
		BlockNumber: blockNumber,
		Service:     service,
	}
}
