// decode.go - Response frame and payload decoders.
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
	"bytes"
	"encoding/binary"
	"math"

	"github.com/robostack/yaskawa"
)

var magic = []byte("YERC")

// decodeResponseHeader validates and parses the fixed 32-byte response
// header.  It returns the parsed header and the payload view.
func decodeResponseHeader(data []byte) (ResponseHeader, []byte, error) {
	var header ResponseHeader

	if len(data) < HeaderSize {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedTruncated,
			"response (%d bytes) does not contain enough data for a header (%d bytes)", len(data), HeaderSize)
	}

	if !bytes.Equal(data[0:4], magic) {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedMissingMagic,
			"response does not start with magic bytes `YERC'")
	}

	if headerSize := binary.LittleEndian.Uint16(data[4:]); headerSize != HeaderSize {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedWrongHeaderSize,
			"unexpected header size, expected %d, got %d", HeaderSize, headerSize)
	}

	header.PayloadSize = binary.LittleEndian.Uint16(data[6:])
	if header.PayloadSize > MaxPayloadSize {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedWrongPayloadSize,
			"received payload size (%d) exceeds maximum value (%d)", header.PayloadSize, MaxPayloadSize)
	}

	// One reserved byte at offset 8.
	header.Division = Division(data[9])

	if ack := data[10]; ack != 1 {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedWrongAck,
			"unexpected ACK value, expected 1, got %d", ack)
	}
	header.Ack = true

	header.RequestID = data[11]
	header.BlockNumber = binary.LittleEndian.Uint32(data[12:])

	// Eight reserved bytes at offset 16.
	header.Service = data[24]
	header.Status = data[25]

	// Ignore the added status size at 26..27, treat the extra status as a
	// two byte value.
	header.ExtraStatus = binary.LittleEndian.Uint16(data[28:])

	// Two bytes of padding at 30..31.

	if len(data) != HeaderSize+int(header.PayloadSize) {
		return header, nil, yaskawa.MalformedResponse(yaskawa.MalformedWrongPayloadSize,
			"request %d: number of received bytes (%d) does not match the message size according to the header (%d)",
			header.RequestID, len(data), HeaderSize+int(header.PayloadSize))
	}

	return header, data[HeaderSize:], nil
}

func decodeStatus(data []byte) (yaskawa.Status, error) {
	if err := yaskawa.ExpectSize("status data", len(data), 8); err != nil {
		return yaskawa.Status{}, err
	}
	return yaskawa.Status{
		Step:         data[0]&(1<<0) != 0,
		OneCycle:     data[0]&(1<<1) != 0,
		Continuous:   data[0]&(1<<2) != 0,
		Running:      data[0]&(1<<3) != 0,
		SpeedLimited: data[0]&(1<<4) != 0,
		Teach:        data[0]&(1<<5) != 0,
		Play:         data[0]&(1<<6) != 0,
		Remote:       data[0]&(1<<7) != 0,

		TeachPendantHold: data[4]&(1<<1) != 0,
		ExternalHold:     data[4]&(1<<2) != 0,
		CommandHold:      data[4]&(1<<3) != 0,
		Alarm:            data[4]&(1<<4) != 0,
		Error:            data[4]&(1<<5) != 0,
		ServoOn:          data[4]&(1<<6) != 0,
	}, nil
}

// decodeCartesianFrame maps a frame type code and user frame number back to
// a coordinate system.
func decodeCartesianFrame(frameType, userFrame int) (yaskawa.CoordinateSystem, error) {
	switch frameType {
	case 16:
		return yaskawa.Base, nil
	case 17:
		return yaskawa.Robot, nil
	case 18:
		return yaskawa.Tool, nil
	case 19:
		if userFrame < 1 || userFrame > 16 {
			return 0, yaskawa.MalformedResponse(yaskawa.MalformedBadPositionType,
				"user frame number (%d) outside the valid range [1, 16]", userFrame)
		}
		return yaskawa.UserCoordinateSystem(userFrame), nil
	}
	return 0, yaskawa.MalformedResponse(yaskawa.MalformedBadPositionType,
		"unknown frame type (%d), expected 16, 17, 18 or 19", frameType)
}

// decodePosition parses the common 52-byte position payload.
func decodePosition(data []byte) (yaskawa.Position, error) {
	if err := yaskawa.ExpectSize("position data", len(data), encodedPositionSize); err != nil {
		return nil, err
	}

	positionType := binary.LittleEndian.Uint32(data[0:])
	configuration := binary.LittleEndian.Uint32(data[4:])
	tool := binary.LittleEndian.Uint32(data[8:])
	userFrame := binary.LittleEndian.Uint32(data[12:])
	// Extended pose configuration at 16..19 is ignored.

	coords := make([]int32, 8)
	for i := range coords {
		coords[i] = int32(binary.LittleEndian.Uint32(data[20+4*i:]))
	}

	if positionType == 0 {
		return yaskawa.PulsePosition{
			Joints: coords,
			Tool:   int(tool),
		}, nil
	}

	frame, err := decodeCartesianFrame(int(positionType), int(userFrame))
	if err != nil {
		return nil, err
	}
	return yaskawa.CartesianPosition{
		X:  float64(coords[0]) / 1000,
		Y:  float64(coords[1]) / 1000,
		Z:  float64(coords[2]) / 1000,
		Rx: float64(coords[3]) / 10000,
		Ry: float64(coords[4]) / 10000,
		Rz: float64(coords[5]) / 10000,

		Frame:         frame,
		Configuration: yaskawa.PoseConfiguration(configuration),
		Tool:          int(tool),
	}, nil
}

// decodeVarPayload drives the shared single/multi variable payload layout:
// a bare value for count 1, a 4-byte count followed by the values otherwise.
// The element callback receives the wire bytes of element i.
func decodeVarPayload(data []byte, count, size int, element func(i int, b []byte) error) error {
	if count == 1 {
		if err := yaskawa.ExpectSize("response data", len(data), size); err != nil {
			return err
		}
		return element(0, data)
	}

	if err := yaskawa.ExpectSize("response data", len(data), 4+count*size); err != nil {
		return err
	}
	if got := binary.LittleEndian.Uint32(data); int(got) != count {
		return yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"received value count (%d) does not match the requested count (%d)", got, count)
	}
	data = data[4:]
	for i := 0; i < count; i++ {
		if err := element(i, data[i*size:(i+1)*size]); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
