// encode.go - Request frame and payload encoders.
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

package udp

import (
	"encoding/binary"
	"math"

	"github.com/robostack/yaskawa"
)

func appendUint16(out []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(out, v)
}

func appendUint32(out []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(out, v)
}

func appendInt16(out []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(out, uint16(v))
}

func appendInt32(out []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(out, uint32(v))
}

func appendFloat32(out []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
}

// appendRequestHeader encodes a request header into the fixed 32-byte wire
// layout.
func appendRequestHeader(out []byte, header RequestHeader) []byte {
	// Magic bytes.
	out = append(out, 'Y', 'E', 'R', 'C')

	// Header size, payload size.
	out = appendUint16(out, HeaderSize)
	out = appendUint16(out, header.PayloadSize)

	// Reserved magic constant.
	out = append(out, 3)

	// Division (robot command or file command).
	out = append(out, byte(header.Division))

	// Ack flag, zero on ordinary requests, set on file block acks.
	if header.Ack {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	// Request ID.
	out = append(out, header.RequestID)

	// Block number.
	out = appendUint32(out, header.BlockNumber)

	// Reserved. The controller ignores the content.
	out = append(out, "99999999"...)

	// Subrequest details.
	out = appendUint16(out, header.Command)
	out = appendUint16(out, header.Instance)
	out = append(out, header.Attribute, header.Service)

	// Padding.
	out = append(out, 0, 0)

	return out
}

// encodedPositionSize is the wire size of a position variable payload.
const encodedPositionSize = 13 * 4

// encodeFrameType maps a coordinate system to the frame type code used in
// cartesian payloads.
func encodeFrameType(frame yaskawa.CoordinateSystem) (uint32, error) {
	if yaskawa.IsUserCoordinateSystem(frame) {
		return 19, nil
	}
	switch frame {
	case yaskawa.Base:
		return 16, nil
	case yaskawa.Robot:
		return 17, nil
	case yaskawa.Tool:
		return 18, nil
	}
	return 0, yaskawa.NewError(yaskawa.KindInvalidArgument, "coordinate system %s can not be encoded as a frame type", frame)
}

func appendPulsePosition(out []byte, position yaskawa.PulsePosition) ([]byte, error) {
	if len(position.Joints) < 6 || len(position.Joints) > 8 {
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "pulse position must have 6, 7 or 8 joints, got %d", len(position.Joints))
	}

	// Position type: pulse.
	out = appendUint32(out, 0)
	// Pose configuration, meaningless for pulse positions.
	out = appendUint32(out, 0)
	// Tool number.
	out = appendUint32(out, uint32(position.Tool))
	// User coordinate system, meaningless for pulse positions.
	out = appendUint32(out, 0)
	// Extended pose configuration, not supported.
	out = appendUint32(out, 0)
	// Individual joint values in pulses.
	for _, value := range position.Joints {
		out = appendInt32(out, value)
	}
	// Padding, the robot wants 8 coordinates.
	for i := len(position.Joints); i < 8; i++ {
		out = appendInt32(out, 0)
	}
	return out, nil
}

func appendCartesianPosition(out []byte, position yaskawa.CartesianPosition) ([]byte, error) {
	frameType, err := encodeFrameType(position.Frame)
	if err != nil {
		return nil, err
	}

	// Position type.
	out = appendUint32(out, frameType)
	// Pose configuration.
	out = appendUint32(out, uint32(position.Configuration))
	// Tool number.
	out = appendUint32(out, uint32(position.Tool))
	// User coordinate system.
	out = appendUint32(out, uint32(yaskawa.UserCoordinateNumber(position.Frame)))
	// Extended pose configuration, not supported.
	out = appendUint32(out, 0)
	// XYZ components in micrometres.
	out = appendInt32(out, int32(math.Round(position.X*1000)))
	out = appendInt32(out, int32(math.Round(position.Y*1000)))
	out = appendInt32(out, int32(math.Round(position.Z*1000)))
	// Rotation components in 1e-4 degrees.
	out = appendInt32(out, int32(math.Round(position.Rx*10000)))
	out = appendInt32(out, int32(math.Round(position.Ry*10000)))
	out = appendInt32(out, int32(math.Round(position.Rz*10000)))
	// Padding, the robot wants 8 coordinates.
	out = appendInt32(out, 0)
	out = appendInt32(out, 0)
	return out, nil
}

func appendPosition(out []byte, position yaskawa.Position) ([]byte, error) {
	switch p := position.(type) {
	case yaskawa.PulsePosition:
		return appendPulsePosition(out, p)
	case yaskawa.CartesianPosition:
		return appendCartesianPosition(out, p)
	}
	return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "unknown position type %T", position)
}
