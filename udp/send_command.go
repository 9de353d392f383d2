// send_command.go - Single-command session.
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
	"context"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/instrument"
)

type commandReply struct {
	response interface{}
	err      error
}

// SendCommand sends one request, awaits the matching reply and decodes it.
// The context deadline bounds the whole exchange; a reply arriving after
// resolution is dropped.
func (c *Client) SendCommand(ctx context.Context, cmd Command) (interface{}, error) {
	replyCh := make(chan commandReply, 1)

	id, err := c.registerHandler(func(header *ResponseHeader, data []byte) {
		var reply commandReply
		if header.Status != 0 {
			reply.err = yaskawa.CommandFailed(uint16(header.Status), header.ExtraStatus)
		} else {
			reply.response, reply.err = cmd.decodeResponse(header, data)
		}
		// A session resolves exactly once; duplicate replies are dropped.
		select {
		case replyCh <- reply:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer c.removeHandler(id)

	frame, err := cmd.encodeRequest(make([]byte, 0, HeaderSize+64), id)
	if err != nil {
		return nil, yaskawa.Push(err, "encoding request %d", id)
	}
	if err := c.send(frame); err != nil {
		return nil, yaskawa.Push(err, "writing command for request %d", id)
	}

	select {
	case reply := <-replyCh:
		if reply.err != nil {
			return nil, yaskawa.Push(reply.err, "request %d", id)
		}
		return reply.response, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			instrument.Timeouts()
		}
		return nil, ctxError(ctx).Push("waiting for reply to request %d", id)
	case <-c.HaltCh():
		return nil, yaskawa.NewError(yaskawa.KindCancelled, "client closed").Push("waiting for reply to request %d", id)
	}
}

// Typed convenience wrappers over SendCommand.

// ReadStatus reads the controller status word.
func (c *Client) ReadStatus(ctx context.Context) (yaskawa.Status, error) {
	response, err := c.SendCommand(ctx, ReadStatus{})
	if err != nil {
		return yaskawa.Status{}, err
	}
	return response.(yaskawa.Status), nil
}

// ReadCurrentPosition reads the current position of a control group in the
// given coordinate system.
func (c *Client) ReadCurrentPosition(ctx context.Context, controlGroup int, system yaskawa.CoordinateSystemType) (yaskawa.Position, error) {
	response, err := c.SendCommand(ctx, ReadCurrentPosition{ControlGroup: controlGroup, CoordinateSystem: system})
	if err != nil {
		return nil, err
	}
	return response.(yaskawa.Position), nil
}

// MoveL commands an absolute cartesian interpolated move.
func (c *Client) MoveL(ctx context.Context, controlGroup int, target yaskawa.CartesianPosition, speed yaskawa.Speed) error {
	_, err := c.SendCommand(ctx, MoveL{ControlGroup: controlGroup, Target: target, Speed: speed})
	return err
}

// ReadUint8Var reads one byte variable.
func (c *Client) ReadUint8Var(ctx context.Context, index uint8) (uint8, error) {
	values, err := c.ReadUint8Vars(ctx, index, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// ReadUint8Vars reads a run of byte variables.
func (c *Client) ReadUint8Vars(ctx context.Context, index, count uint8) ([]uint8, error) {
	response, err := c.SendCommand(ctx, ReadUint8Vars{Index: index, Count: count})
	if err != nil {
		return nil, err
	}
	return response.([]uint8), nil
}

// WriteUint8Var writes one byte variable.
func (c *Client) WriteUint8Var(ctx context.Context, index uint8, value uint8) error {
	_, err := c.SendCommand(ctx, WriteUint8Vars{Index: index, Values: []uint8{value}})
	return err
}

// WriteUint8Vars writes a run of byte variables.
func (c *Client) WriteUint8Vars(ctx context.Context, index uint8, values []uint8) error {
	_, err := c.SendCommand(ctx, WriteUint8Vars{Index: index, Values: values})
	return err
}

// ReadInt16Var reads one integer variable.
func (c *Client) ReadInt16Var(ctx context.Context, index uint8) (int16, error) {
	values, err := c.ReadInt16Vars(ctx, index, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// ReadInt16Vars reads a run of integer variables.
func (c *Client) ReadInt16Vars(ctx context.Context, index, count uint8) ([]int16, error) {
	response, err := c.SendCommand(ctx, ReadInt16Vars{Index: index, Count: count})
	if err != nil {
		return nil, err
	}
	return response.([]int16), nil
}

// WriteInt16Var writes one integer variable.
func (c *Client) WriteInt16Var(ctx context.Context, index uint8, value int16) error {
	_, err := c.SendCommand(ctx, WriteInt16Vars{Index: index, Values: []int16{value}})
	return err
}

// WriteInt16Vars writes a run of integer variables.
func (c *Client) WriteInt16Vars(ctx context.Context, index uint8, values []int16) error {
	_, err := c.SendCommand(ctx, WriteInt16Vars{Index: index, Values: values})
	return err
}

// ReadInt32Var reads one double-integer variable.
func (c *Client) ReadInt32Var(ctx context.Context, index uint8) (int32, error) {
	values, err := c.ReadInt32Vars(ctx, index, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// ReadInt32Vars reads a run of double-integer variables.
func (c *Client) ReadInt32Vars(ctx context.Context, index, count uint8) ([]int32, error) {
	response, err := c.SendCommand(ctx, ReadInt32Vars{Index: index, Count: count})
	if err != nil {
		return nil, err
	}
	return response.([]int32), nil
}

// WriteInt32Var writes one double-integer variable.
func (c *Client) WriteInt32Var(ctx context.Context, index uint8, value int32) error {
	_, err := c.SendCommand(ctx, WriteInt32Vars{Index: index, Values: []int32{value}})
	return err
}

// WriteInt32Vars writes a run of double-integer variables.
func (c *Client) WriteInt32Vars(ctx context.Context, index uint8, values []int32) error {
	_, err := c.SendCommand(ctx, WriteInt32Vars{Index: index, Values: values})
	return err
}

// ReadFloat32Var reads one real variable.
func (c *Client) ReadFloat32Var(ctx context.Context, index uint8) (float32, error) {
	values, err := c.ReadFloat32Vars(ctx, index, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// ReadFloat32Vars reads a run of real variables.
func (c *Client) ReadFloat32Vars(ctx context.Context, index, count uint8) ([]float32, error) {
	response, err := c.SendCommand(ctx, ReadFloat32Vars{Index: index, Count: count})
	if err != nil {
		return nil, err
	}
	return response.([]float32), nil
}

// WriteFloat32Var writes one real variable.
func (c *Client) WriteFloat32Var(ctx context.Context, index uint8, value float32) error {
	_, err := c.SendCommand(ctx, WriteFloat32Vars{Index: index, Values: []float32{value}})
	return err
}

// WriteFloat32Vars writes a run of real variables.
func (c *Client) WriteFloat32Vars(ctx context.Context, index uint8, values []float32) error {
	_, err := c.SendCommand(ctx, WriteFloat32Vars{Index: index, Values: values})
	return err
}

// ReadPositionVar reads one robot position variable.
func (c *Client) ReadPositionVar(ctx context.Context, index uint8) (yaskawa.Position, error) {
	values, err := c.ReadPositionVars(ctx, index, 1)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// ReadPositionVars reads a run of robot position variables.
func (c *Client) ReadPositionVars(ctx context.Context, index, count uint8) ([]yaskawa.Position, error) {
	response, err := c.SendCommand(ctx, ReadPositionVars{Index: index, Count: count})
	if err != nil {
		return nil, err
	}
	return response.([]yaskawa.Position), nil
}

// WritePositionVar writes one robot position variable.
func (c *Client) WritePositionVar(ctx context.Context, index uint8, value yaskawa.Position) error {
	_, err := c.SendCommand(ctx, WritePositionVars{Index: index, Values: []yaskawa.Position{value}})
	return err
}

// WritePositionVars writes a run of robot position variables.
func (c *Client) WritePositionVars(ctx context.Context, index uint8, values []yaskawa.Position) error {
	_, err := c.SendCommand(ctx, WritePositionVars{Index: index, Values: values})
	return err
}

// DeleteFile removes a file from the controller.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	_, err := c.SendCommand(ctx, DeleteFile{Name: name})
	return err
}
