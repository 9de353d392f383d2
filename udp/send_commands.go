// send_commands.go - Multi-command fan-out session.
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

	"golang.org/x/sync/errgroup"

	"github.com/robostack/yaskawa"
)

// SendCommands dispatches a heterogeneous list of commands concurrently
// under a shared deadline.  On success the responses are returned in input
// order regardless of reply order.  The first subcommand error cancels the
// remaining subcommands and is returned.
func (c *Client) SendCommands(ctx context.Context, cmds ...Command) ([]interface{}, error) {
	if len(cmds) == 0 {
		return nil, yaskawa.NewError(yaskawa.KindInvalidArgument, "no commands given")
	}

	responses := make([]interface{}, len(cmds))
	group, ctx := errgroup.WithContext(ctx)
	for i, cmd := range cmds {
		i, cmd := i, cmd
		group.Go(func() error {
			response, err := c.SendCommand(ctx, cmd)
			if err != nil {
				return yaskawa.Push(err, "command %d of %d", i+1, len(cmds))
			}
			responses[i] = response
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
