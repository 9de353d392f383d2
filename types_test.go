// types_test.go - Data model tests.
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

package yaskawa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserCoordinateSystems(t *testing.T) {
	require.False(t, IsUserCoordinateSystem(Base))
	require.False(t, IsUserCoordinateSystem(Robot))
	require.False(t, IsUserCoordinateSystem(Tool))
	require.False(t, IsUserCoordinateSystem(Master))

	for number := 1; number <= 16; number++ {
		system := UserCoordinateSystem(number)
		require.True(t, IsUserCoordinateSystem(system))
		require.Equal(t, number, UserCoordinateNumber(system))
	}

	require.Equal(t, User1, UserCoordinateSystem(1))
	require.Equal(t, User16, UserCoordinateSystem(16))
	require.Equal(t, 0, UserCoordinateNumber(Tool))
}

func TestCoordinateSystemString(t *testing.T) {
	require.Equal(t, "base", Base.String())
	require.Equal(t, "robot", Robot.String())
	require.Equal(t, "tool", Tool.String())
	require.Equal(t, "master", Master.String())
	require.Equal(t, "user_frame_2", User2.String())
	require.Equal(t, "unknown_42", CoordinateSystem(42).String())
}

func TestPoseConfigurationBits(t *testing.T) {
	c := NewPoseConfiguration(true, false, true, false, true, false)
	require.True(t, c.NoFlip())
	require.False(t, c.LowerArm())
	require.True(t, c.Back())
	require.False(t, c.HighR())
	require.True(t, c.HighT())
	require.False(t, c.HighS())
	require.Equal(t, PoseConfiguration(0x15), c)

	all := NewPoseConfiguration(true, true, true, true, true, true)
	require.Equal(t, PoseConfiguration(0x3f), all)
}

func TestPositionTypes(t *testing.T) {
	var pulse Position = PulsePosition{Joints: []int32{1, 2, 3, 4, 5, 6}}
	var cartesian Position = CartesianPosition{X: 1}

	require.Equal(t, PositionTypePulse, pulse.Type())
	require.Equal(t, PositionTypeCartesian, cartesian.Type())
}

func TestPositionStrings(t *testing.T) {
	pulse := PulsePosition{Joints: []int32{1, -2, 3, -4, 5, -6}, Tool: 2}
	require.Equal(t, "PulsePosition{tool: 2, joints: [1, -2, 3, -4, 5, -6]}", pulse.String())

	cartesian := CartesianPosition{X: 1.5, Frame: User1, Tool: 1}
	require.Contains(t, cartesian.String(), "user_frame_1")
	require.Contains(t, cartesian.String(), "tool: 1")
}
