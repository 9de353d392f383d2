// protocol_test.go - ASCII framing and codec tests.
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

package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robostack/yaskawa"
)

func TestMatcherSingleMessages(t *testing.T) {
	cases := []struct {
		name    string
		message string
	}{
		{"ok", "OK: 0000\r\n"},
		{"ng", "NG: some failure\r\n"},
		{"error", "ERROR: no good\r\n"},
		{"empty data", "0000\r\n"},
		{"data body", "1,2,3\r"},
		{"long data body", "123456789,10\r"},
		{"bare cr", "\r"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var matcher ResponseMatcher
			consumed, matched := matcher.Match([]byte(tc.message))
			require.True(t, matched)
			require.Equal(t, len(tc.message), consumed)
		})
	}
}

func TestMatcherSplitsConcatenatedMessages(t *testing.T) {
	stream := []byte("OK: 0000\r\n7\r")

	var first ResponseMatcher
	consumed, matched := first.Match(stream)
	require.True(t, matched)
	require.Equal(t, len("OK: 0000\r\n"), consumed)

	var second ResponseMatcher
	rest, matched := second.Match(stream[consumed:])
	require.True(t, matched)
	require.Equal(t, len("7\r"), rest)
}

func TestMatcherIncrementalFeeding(t *testing.T) {
	message := "NG: bad\r\n"
	var matcher ResponseMatcher
	for i := 0; i < len(message)-1; i++ {
		require.False(t, matcher.Consume(message[i]))
	}
	require.True(t, matcher.Consume(message[len(message)-1]))
}

func TestMatcherLongDataBodyEndsOnCR(t *testing.T) {
	// A data body longer than any known prefix terminates on a single CR,
	// a CRLF inside it must not be required.
	var matcher ResponseMatcher
	consumed, matched := matcher.Match([]byte("abcdefg\r"))
	require.True(t, matched)
	require.Equal(t, 8, consumed)
}

func TestDecodeCommandResponse(t *testing.T) {
	message, err := decodeCommandResponse([]byte("OK:   0000\r\n"))
	require.NoError(t, err)
	require.Equal(t, "0000", message)

	_, err = decodeCommandResponse([]byte("NG:  bad index\r\n"))
	require.Equal(t, yaskawa.KindCommandFailed, yaskawa.KindOf(err))

	_, err = decodeCommandResponse([]byte("ERROR: no good\r\n"))
	require.Equal(t, yaskawa.KindCommandFailed, yaskawa.KindOf(err))

	message, err = decodeCommandResponse([]byte("0000\r\n"))
	require.NoError(t, err)
	require.Empty(t, message)

	_, err = decodeCommandResponse([]byte("banana\r\n"))
	require.Equal(t, yaskawa.KindMalformedResponse, yaskawa.KindOf(err))
}

func TestParseIntStrict(t *testing.T) {
	value, err := parseInt("-5", -100, 100)
	require.NoError(t, err)
	require.Equal(t, int64(-5), value)

	value, err = parseInt("+42", 0, 100)
	require.NoError(t, err)
	require.Equal(t, int64(42), value)

	_, err = parseInt("", 0, 100)
	require.Error(t, err)
	_, err = parseInt("12x", 0, 100)
	require.Error(t, err)
	_, err = parseInt("1.5", 0, 100)
	require.Error(t, err)
	_, err = parseInt("300", 0, 255)
	require.Error(t, err)
	_, err = parseInt("-1", 0, 255)
	require.Error(t, err)
}

func TestParseFloatStrict(t *testing.T) {
	cases := map[string]float64{
		"1":       1,
		"-1.5":    -1.5,
		"+2.25":   2.25,
		"1e3":     1000,
		"1.5e-2":  0.015,
		"-0.125":  -0.125,
		"100.001": 100.001,
	}
	for text, expected := range cases {
		value, err := parseFloat(text)
		require.NoError(t, err, "parsing %q", text)
		require.InDelta(t, expected, value, 1e-9, "parsing %q", text)
	}

	for _, text := range []string{"", "abc", "1.2.3", "1e", "--1"} {
		_, err := parseFloat(text)
		require.Error(t, err, "parsing %q", text)
	}
}

func TestAppendCommand(t *testing.T) {
	request := appendCommand(nil, "SAVEV", "0,3")
	require.Equal(t, "HOSTCTRL_REQUEST SAVEV 4\r\n0,3\r", string(request))
}

func TestAppendStartCommand(t *testing.T) {
	require.Equal(t, "CONNECT Robot_access\r\n", string(appendStartCommand(nil, 0)))
	require.Equal(t, "CONNECT Robot_access Keep-Alive:30\r\n", string(appendStartCommand(nil, 30)))
}

func TestFormatCartesianPosition(t *testing.T) {
	position := yaskawa.CartesianPosition{
		X: 100, Y: -200.5, Z: 300,
		Rx: 0, Ry: 0, Rz: 45,
		Frame:         yaskawa.Base,
		Configuration: 0,
		Tool:          1,
	}
	require.Equal(t,
		"1,0,100.000,-200.500,300.000,0.0000,0.0000,45.0000,0,1",
		formatCartesianPosition(position))
}

func TestFormatPulsePosition(t *testing.T) {
	position := yaskawa.PulsePosition{Joints: []int32{1, -2, 3, -4, 5, -6}, Tool: 2}
	require.Equal(t, "0,1,-2,3,-4,5,-6,2", formatPulsePosition(position))
}

func TestDecodePositionData(t *testing.T) {
	pulse, err := decodePositionData([]byte("0,1,-2,3,-4,5,-6,2\r"))
	require.NoError(t, err)
	require.Equal(t, yaskawa.PulsePosition{Joints: []int32{1, -2, 3, -4, 5, -6}, Tool: 2}, pulse)

	cartesian, err := decodePositionData([]byte("1,0,100.000,-200.500,300.000,0.0000,0.0000,45.0000,0,1\r"))
	require.NoError(t, err)
	require.Equal(t, yaskawa.CartesianPosition{
		X: 100, Y: -200.5, Z: 300,
		Rz:    45,
		Frame: yaskawa.Base,
		Tool:  1,
	}, cartesian)

	_, err = decodePositionData([]byte("2,1,2,3,4,5,6,7,8\r"))
	require.Equal(t, yaskawa.KindMalformedResponse, yaskawa.KindOf(err))
}

func TestPositionTextRoundTrip(t *testing.T) {
	original := yaskawa.CartesianPosition{
		X: 12.345, Y: -0.001, Z: 99.999,
		Rx: 1.0001, Ry: -2.5, Rz: 179.9999,
		Frame:         yaskawa.User3,
		Configuration: yaskawa.NewPoseConfiguration(false, true, false, true, false, false),
		Tool:          7,
	}
	decoded, err := decodePositionData([]byte(formatCartesianPosition(original) + "\r"))
	require.NoError(t, err)

	cartesian := decoded.(yaskawa.CartesianPosition)
	require.Equal(t, original.Frame, cartesian.Frame)
	require.Equal(t, original.Configuration, cartesian.Configuration)
	require.Equal(t, original.Tool, cartesian.Tool)
	require.InDelta(t, original.X, cartesian.X, 0.001)
	require.InDelta(t, original.Rz, cartesian.Rz, 0.0001)
}
