// commands.go - Typed commands and their wire codecs.
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

// Command is one request/response exchange with the controller.  Each
// command value knows how to encode its request frame and how to decode the
// payload of the matching reply.  The decoded response is returned boxed;
// the typed client methods unbox it.
type Command interface {
	encodeRequest(out []byte, requestID uint8) ([]byte, error)
	decodeResponse(header *ResponseHeader, data []byte) (interface{}, error)
}

func expectEmpty(data []byte) (interface{}, error) {
	if err := yaskawa.ExpectSize("response data", len(data), 0); err != nil {
		return nil, err
	}
	return nil, nil
}

// ReadStatus reads the controller status word.  Response: yaskawa.Status.
type ReadStatus struct{}

func (ReadStatus) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return appendRequestHeader(out, makeRobotRequestHeader(0, cmdReadStatusInformation, 1, 0, serviceGetAll, requestID)), nil
}

func (ReadStatus) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return decodeStatus(data)
}

// ReadCurrentPosition reads the current position of a control group.
// Response: yaskawa.Position.
type ReadCurrentPosition struct {
	ControlGroup     int
	CoordinateSystem yaskawa.CoordinateSystemType
}

func (c ReadCurrentPosition) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	instance := c.ControlGroup
	switch c.CoordinateSystem {
	case yaskawa.RobotPulse:
		instance += 1
	case yaskawa.BasePulse:
		instance += 11
	case yaskawa.StationPulse:
		instance += 21
	case yaskawa.RobotCartesian:
		instance += 101
	default:
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "unknown coordinate system type %d", int(c.CoordinateSystem))
	}
	return appendRequestHeader(out, makeRobotRequestHeader(0, cmdReadRobotPosition, uint16(instance), 0, serviceGetAll, requestID)), nil
}

func (ReadCurrentPosition) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	if err := yaskawa.ExpectSizeMax("position data", len(data), encodedPositionSize); err != nil {
		return nil, err
	}
	// The controller may omit trailing zero words, pad them back.
	padded := make([]byte, encodedPositionSize)
	copy(padded, data)
	return decodePosition(padded)
}

// MoveL commands an absolute cartesian interpolated move.  Response: none.
type MoveL struct {
	ControlGroup int
	Target       yaskawa.CartesianPosition
	Speed        yaskawa.Speed
}

func (c MoveL) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	frameType, err := encodeFrameType(c.Target.Frame)
	if err != nil {
		return nil, err
	}

	const payloadSize = 26 * 4
	// Instance 2 selects an absolute cartesian interpolated move.
	out = appendRequestHeader(out, makeRobotRequestHeader(payloadSize, cmdMoveCartesian, 2, 1, serviceGetAll, requestID))

	out = appendUint32(out, uint32(c.ControlGroup+1))
	// Station control group.
	out = appendUint32(out, 0)
	out = appendUint32(out, uint32(c.Speed.Type))
	out = appendUint32(out, c.Speed.Value)
	out = appendUint32(out, frameType)

	// Translation coordinates in micrometres.
	out = appendInt32(out, int32(math.Round(c.Target.X*1000)))
	out = appendInt32(out, int32(math.Round(c.Target.Y*1000)))
	out = appendInt32(out, int32(math.Round(c.Target.Z*1000)))
	// Rotation components in 1e-4 degrees.
	out = appendInt32(out, int32(math.Round(c.Target.Rx*10000)))
	out = appendInt32(out, int32(math.Round(c.Target.Ry*10000)))
	out = appendInt32(out, int32(math.Round(c.Target.Rz*10000)))

	// Reserved.
	out = appendUint32(out, 0)
	out = appendUint32(out, 0)
	out = appendUint32(out, uint32(c.Target.Configuration))
	// Extended pose configuration, not supported.
	out = appendUint32(out, 0)
	out = appendUint32(out, uint32(c.Target.Tool))
	out = appendUint32(out, uint32(yaskawa.UserCoordinateNumber(c.Target.Frame)))

	// Unsupported base and station axes.
	for i := 0; i < 9; i++ {
		out = appendUint32(out, 0)
	}
	return out, nil
}

func (MoveL) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// Variable read commands.  A count of 1 uses the single-variable command id
// with a bare value payload; larger counts use the multi-variable command id
// with a count prefix.  Response: a slice of the element type.

func encodeReadVars(out []byte, requestID uint8, single, multi uint16, index, count uint8) ([]byte, error) {
	if count == 0 {
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "variable count must be at least 1")
	}
	if count == 1 {
		return appendRequestHeader(out, makeRobotRequestHeader(0, single, uint16(index), 0, serviceGetAll, requestID)), nil
	}
	out = appendRequestHeader(out, makeRobotRequestHeader(4, multi, uint16(index), 0, serviceReadMultiple, requestID))
	return appendUint32(out, uint32(count)), nil
}

func encodeWriteVarsHeader(out []byte, requestID uint8, single, multi uint16, index uint8, count, size int) ([]byte, error) {
	if count == 0 {
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "variable count must be at least 1")
	}
	dataSize := count * size
	if count == 1 {
		return appendRequestHeader(out, makeRobotRequestHeader(uint16(dataSize), single, uint16(index), 0, serviceSetAll, requestID)), nil
	}
	if 4+dataSize > MaxPayloadSize {
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "payload of %d values (%d bytes) exceeds the maximum payload size", count, 4+dataSize)
	}
	out = appendRequestHeader(out, makeRobotRequestHeader(uint16(4+dataSize), multi, uint16(index), 0, serviceWriteMultiple, requestID))
	return appendUint32(out, uint32(count)), nil
}

// ReadUint8Vars reads Count byte variables starting at Index.
type ReadUint8Vars struct {
	Index uint8
	Count uint8
}

func (c ReadUint8Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return encodeReadVars(out, requestID, cmdReadWriteInt8Variable, cmdReadWriteMultipleInt8, c.Index, c.Count)
}

func (c ReadUint8Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	values := make([]uint8, c.Count)
	err := decodeVarPayload(data, int(c.Count), 1, func(i int, b []byte) error {
		values[i] = b[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ReadInt16Vars reads Count integer variables starting at Index.
type ReadInt16Vars struct {
	Index uint8
	Count uint8
}

func (c ReadInt16Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return encodeReadVars(out, requestID, cmdReadWriteInt16Variable, cmdReadWriteMultipleInt16, c.Index, c.Count)
}

func (c ReadInt16Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	values := make([]int16, c.Count)
	err := decodeVarPayload(data, int(c.Count), 2, func(i int, b []byte) error {
		values[i] = int16(binary.LittleEndian.Uint16(b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ReadInt32Vars reads Count double-integer variables starting at Index.
type ReadInt32Vars struct {
	Index uint8
	Count uint8
}

func (c ReadInt32Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return encodeReadVars(out, requestID, cmdReadWriteInt32Variable, cmdReadWriteMultipleInt32, c.Index, c.Count)
}

func (c ReadInt32Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	values := make([]int32, c.Count)
	err := decodeVarPayload(data, int(c.Count), 4, func(i int, b []byte) error {
		values[i] = int32(binary.LittleEndian.Uint32(b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ReadFloat32Vars reads Count real variables starting at Index.
type ReadFloat32Vars struct {
	Index uint8
	Count uint8
}

func (c ReadFloat32Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return encodeReadVars(out, requestID, cmdReadWriteFloatVariable, cmdReadWriteMultipleFloat, c.Index, c.Count)
}

func (c ReadFloat32Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	values := make([]float32, c.Count)
	err := decodeVarPayload(data, int(c.Count), 4, func(i int, b []byte) error {
		values[i] = decodeFloat32(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ReadPositionVars reads Count robot position variables starting at Index.
type ReadPositionVars struct {
	Index uint8
	Count uint8
}

func (c ReadPositionVars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	return encodeReadVars(out, requestID, cmdReadWritePositionVariable, cmdReadWriteMultiplePosition, c.Index, c.Count)
}

func (c ReadPositionVars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	values := make([]yaskawa.Position, c.Count)
	err := decodeVarPayload(data, int(c.Count), encodedPositionSize, func(i int, b []byte) error {
		position, err := decodePosition(b)
		if err != nil {
			return err
		}
		values[i] = position
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Variable write commands.  Response: none.

// WriteUint8Vars writes byte variables starting at Index.
type WriteUint8Vars struct {
	Index  uint8
	Values []uint8
}

func (c WriteUint8Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out, err := encodeWriteVarsHeader(out, requestID, cmdReadWriteInt8Variable, cmdReadWriteMultipleInt8, c.Index, len(c.Values), 1)
	if err != nil {
		return nil, err
	}
	return append(out, c.Values...), nil
}

func (WriteUint8Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// WriteInt16Vars writes integer variables starting at Index.
type WriteInt16Vars struct {
	Index  uint8
	Values []int16
}

func (c WriteInt16Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out, err := encodeWriteVarsHeader(out, requestID, cmdReadWriteInt16Variable, cmdReadWriteMultipleInt16, c.Index, len(c.Values), 2)
	if err != nil {
		return nil, err
	}
	for _, v := range c.Values {
		out = appendInt16(out, v)
	}
	return out, nil
}

func (WriteInt16Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// WriteInt32Vars writes double-integer variables starting at Index.
type WriteInt32Vars struct {
	Index  uint8
	Values []int32
}

func (c WriteInt32Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out, err := encodeWriteVarsHeader(out, requestID, cmdReadWriteInt32Variable, cmdReadWriteMultipleInt32, c.Index, len(c.Values), 4)
	if err != nil {
		return nil, err
	}
	for _, v := range c.Values {
		out = appendInt32(out, v)
	}
	return out, nil
}

func (WriteInt32Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// WriteFloat32Vars writes real variables starting at Index.
type WriteFloat32Vars struct {
	Index  uint8
	Values []float32
}

func (c WriteFloat32Vars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out, err := encodeWriteVarsHeader(out, requestID, cmdReadWriteFloatVariable, cmdReadWriteMultipleFloat, c.Index, len(c.Values), 4)
	if err != nil {
		return nil, err
	}
	for _, v := range c.Values {
		out = appendFloat32(out, v)
	}
	return out, nil
}

func (WriteFloat32Vars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// WritePositionVars writes robot position variables starting at Index.
type WritePositionVars struct {
	Index  uint8
	Values []yaskawa.Position
}

func (c WritePositionVars) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out, err := encodeWriteVarsHeader(out, requestID, cmdReadWritePositionVariable, cmdReadWriteMultiplePosition, c.Index, len(c.Values), encodedPositionSize)
	if err != nil {
		return nil, err
	}
	for _, v := range c.Values {
		out, err = appendPosition(out, v)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (WritePositionVars) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// File commands.  ReadFileList and ReadFile are multi-block downloads and
// their decodeResponse runs over the accumulated transfer buffer; WriteFile
// is a multi-block upload; DeleteFile is a single exchange.

// ReadFileList lists the files on the controller matching a type pattern
// such as "*.JBI".  Response: []string.
type ReadFileList struct {
	Type string
}

func (c ReadFileList) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out = appendRequestHeader(out, makeFileRequestHeader(uint16(len(c.Type)), cmdReadFileList, requestID, 1, false))
	return append(out, c.Type...), nil
}

func (ReadFileList) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	if len(data) == 1 {
		return nil, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "file list consists of exactly one byte")
	}
	var names []string
	for len(data) > 0 {
		i := bytes.Index(data, []byte("\r\n"))
		if i < 0 {
			names = append(names, string(data))
			break
		}
		names = append(names, string(data[:i]))
		data = data[i+2:]
	}
	return names, nil
}

func (ReadFileList) fileService() uint8 { return cmdReadFileList }

// ReadFile downloads a file from the controller.  Response: []byte.
type ReadFile struct {
	Name string
}

func (c ReadFile) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out = appendRequestHeader(out, makeFileRequestHeader(uint16(len(c.Name)), cmdReadFile, requestID, 1, false))
	return append(out, c.Name...), nil
}

func (ReadFile) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	// The payload view may alias a reused receive buffer.
	return append([]byte(nil), data...), nil
}

func (ReadFile) fileService() uint8 { return cmdReadFile }

// WriteFile uploads a file to the controller.  Response: none.
type WriteFile struct {
	Name string
	Data []byte
}

func (c WriteFile) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	blockNumber := uint32(1)
	if len(c.Data) == 0 {
		// Nothing follows the name frame, it is the final block.
		blockNumber |= lastBlock
	}
	out = appendRequestHeader(out, makeFileRequestHeader(uint16(len(c.Name)), cmdWriteFile, requestID, blockNumber, false))
	return append(out, c.Name...), nil
}

func (WriteFile) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}

// DeleteFile removes a file from the controller.  Response: none.
type DeleteFile struct {
	Name string
}

func (c DeleteFile) encodeRequest(out []byte, requestID uint8) ([]byte, error) {
	out = appendRequestHeader(out, makeFileRequestHeader(uint16(len(c.Name)), cmdDeleteFile, requestID, 0, false))
	return append(out, c.Name...), nil
}

func (DeleteFile) decodeResponse(_ *ResponseHeader, data []byte) (interface{}, error) {
	return expectEmpty(data)
}
