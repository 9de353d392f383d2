// read_file.go - Multi-block download session for file reads and listings.
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
	"time"

	"github.com/robostack/yaskawa"
	"github.com/robostack/yaskawa/instrument"
)

// fileReadCommand is a download command: its decoder runs over the
// accumulated transfer buffer once the final block arrives.
type fileReadCommand interface {
	Command
	fileService() uint8
}

// readFileCommand drives a download: the request names the file or pattern,
// the controller streams numbered blocks which are each acknowledged, and
// the final block (bit 31) completes the transfer.  The caller's context
// bounds the whole transfer; each block must additionally arrive within the
// client's block timeout.
// The progress callback runs on the receive loop; it must not block.
func (c *Client) readFileCommand(ctx context.Context, cmd fileReadCommand, onProgress func(bytesReceived int)) (interface{}, error) {
	replyCh := make(chan commandReply, 1)
	tickCh := make(chan struct{}, 1)

	var blocksReceived uint32
	var buffer []byte

	resolve := func(reply commandReply) {
		select {
		case replyCh <- reply:
		default:
		}
	}

	id, err := c.registerHandler(func(header *ResponseHeader, data []byte) {
		if header.Status != 0 {
			resolve(commandReply{err: yaskawa.CommandFailed(uint16(header.Status), header.ExtraStatus)})
			return
		}

		block := header.BlockNumber &^ uint32(lastBlock)
		last := header.BlockNumber&lastBlock != 0

		if block != blocksReceived+1 {
			resolve(commandReply{err: yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
				"unexpected block number, expected %d, got %d", blocksReceived+1, block)})
			return
		}
		blocksReceived = block

		// Acknowledge the block before processing it.
		ack := appendRequestHeader(make([]byte, 0, HeaderSize), makeFileRequestHeader(0, cmd.fileService(), header.RequestID, block, true))
		if err := c.send(ack); err != nil {
			resolve(commandReply{err: yaskawa.Push(err, "writing ack for block %d", block)})
			return
		}

		buffer = append(buffer, data...)
		select {
		case tickCh <- struct{}{}:
		default:
		}
		if onProgress != nil {
			onProgress(len(buffer))
		}

		if last {
			response, err := cmd.decodeResponse(header, buffer)
			resolve(commandReply{response: response, err: err})
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

	blockTimer := time.NewTimer(c.blockTimeout)
	defer blockTimer.Stop()

	for {
		select {
		case reply := <-replyCh:
			if reply.err != nil {
				return nil, yaskawa.Push(reply.err, "request %d", id)
			}
			instrument.FileTransfers()
			return reply.response, nil
		case <-tickCh:
			if !blockTimer.Stop() {
				<-blockTimer.C
			}
			blockTimer.Reset(c.blockTimeout)
		case <-blockTimer.C:
			instrument.Timeouts()
			return nil, yaskawa.NewError(yaskawa.KindTimeout, "waiting for the next block of request %d", id)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				instrument.Timeouts()
			}
			return nil, ctxError(ctx).Push("waiting for reply to request %d", id)
		case <-c.HaltCh():
			return nil, yaskawa.NewError(yaskawa.KindCancelled, "client closed").Push("waiting for reply to request %d", id)
		}
	}
}

// ReadFileList lists the files on the controller matching a type pattern
// such as "*.JBI".  The progress callback, if non-nil, receives the number
// of bytes received so far after each block.
func (c *Client) ReadFileList(ctx context.Context, fileType string, onProgress func(bytesReceived int)) ([]string, error) {
	response, err := c.readFileCommand(ctx, ReadFileList{Type: fileType}, onProgress)
	if err != nil {
		return nil, err
	}
	return response.([]string), nil
}

// ReadFile downloads a file from the controller.
func (c *Client) ReadFile(ctx context.Context, name string, onProgress func(bytesReceived int)) ([]byte, error) {
	response, err := c.readFileCommand(ctx, ReadFile{Name: name}, onProgress)
	if err != nil {
		return nil, err
	}
	return response.([]byte), nil
}
