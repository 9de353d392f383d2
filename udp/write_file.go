// write_file.go - Multi-block upload session for file writes.
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

// WriteFile uploads a file to the controller.  The name frame is block 1;
// the data follows in blocks of at most MaxPayloadSize bytes, each sent
// only after the previous block was acknowledged.  The final block carries
// the last-block flag.  The progress callback, if non-nil, runs each time an
// ack leads to sending the next data block and receives the data bytes sent
// so far, including that block, and the total; the final ack does not
// invoke it.
// The progress callback runs on the receive loop; it must not block.
func (c *Client) WriteFile(ctx context.Context, name string, data []byte, onProgress func(bytesSent, totalBytes int)) error {
	replyCh := make(chan commandReply, 1)
	tickCh := make(chan struct{}, 1)

	// blocksSent counts all outbound frames of the transfer including the
	// name frame, so it always equals the last block number sent.
	blocksSent := uint32(1)

	resolve := func(reply commandReply) {
		select {
		case replyCh <- reply:
		default:
		}
	}

	bytesSent := func() int {
		sent := int(blocksSent-1) * MaxPayloadSize
		if sent > len(data) {
			return len(data)
		}
		return sent
	}

	writeNextBlock := func(requestID uint8) error {
		offset := int(blocksSent-1) * MaxPayloadSize
		remaining := len(data) - offset
		blockSize := remaining
		if blockSize > MaxPayloadSize {
			blockSize = MaxPayloadSize
		}

		blockNumber := blocksSent + 1
		if offset+blockSize == len(data) {
			blockNumber |= lastBlock
		}

		frame := appendRequestHeader(make([]byte, 0, HeaderSize+blockSize), makeFileRequestHeader(uint16(blockSize), cmdWriteFile, requestID, blockNumber, false))
		frame = append(frame, data[offset:offset+blockSize]...)
		if err := c.send(frame); err != nil {
			return yaskawa.Push(err, "writing block %d", blocksSent+1)
		}
		blocksSent++
		return nil
	}

	id, err := c.registerHandler(func(header *ResponseHeader, ackData []byte) {
		if header.Status != 0 {
			resolve(commandReply{err: yaskawa.CommandFailed(uint16(header.Status), header.ExtraStatus)})
			return
		}
		if err := yaskawa.ExpectSize("response data", len(ackData), 0); err != nil {
			resolve(commandReply{err: err})
			return
		}
		if !header.Ack {
			resolve(commandReply{err: yaskawa.MalformedResponse(yaskawa.MalformedWrongAck, "file block reply without ack flag")})
			return
		}
		if block := header.BlockNumber &^ uint32(lastBlock); block != blocksSent {
			resolve(commandReply{err: yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
				"unexpected block number, expected %d, got %d", blocksSent, block)})
			return
		}

		if bytesSent() >= len(data) {
			resolve(commandReply{})
			return
		}
		if err := writeNextBlock(header.RequestID); err != nil {
			resolve(commandReply{err: err})
			return
		}
		select {
		case tickCh <- struct{}{}:
		default:
		}
		if onProgress != nil {
			onProgress(bytesSent(), len(data))
		}
	})
	if err != nil {
		return err
	}
	defer c.removeHandler(id)

	frame, err := WriteFile{Name: name, Data: data}.encodeRequest(make([]byte, 0, HeaderSize+len(name)), id)
	if err != nil {
		return yaskawa.Push(err, "encoding request %d", id)
	}
	if err := c.send(frame); err != nil {
		return yaskawa.Push(err, "writing command for request %d", id)
	}

	blockTimer := time.NewTimer(c.blockTimeout)
	defer blockTimer.Stop()

	for {
		select {
		case reply := <-replyCh:
			if reply.err != nil {
				return yaskawa.Push(reply.err, "request %d", id)
			}
			instrument.FileTransfers()
			return nil
		case <-tickCh:
			if !blockTimer.Stop() {
				<-blockTimer.C
			}
			blockTimer.Reset(c.blockTimeout)
		case <-blockTimer.C:
			instrument.Timeouts()
			return yaskawa.NewError(yaskawa.KindTimeout, "waiting for the next block ack of request %d", id)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				instrument.Timeouts()
			}
			return ctxError(ctx).Push("waiting for reply to request %d", id)
		case <-c.HaltCh():
			return yaskawa.NewError(yaskawa.KindCancelled, "client closed").Push("waiting for reply to request %d", id)
		}
	}
}
