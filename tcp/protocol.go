// protocol.go - ASCII framing matcher and wire codec for the stream transport.
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

// Package tcp implements the line-oriented ASCII request/response channel
// of the Yaskawa High Speed Ethernet Server over a stream socket.
package tcp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robostack/yaskawa"
)

// DefaultPort is the port the controller listens on for the ASCII protocol.
const DefaultPort = 80

// matcherType tracks which terminator ends the current message.
type matcherType int

const (
	matchUnknown matcherType = iota
	matchCRLF
	matchCR
)

// ResponseMatcher is an incremental matcher that identifies the end of one
// response message.  Messages starting with "OK:", "NG:", "ERROR:" or
// "0000" terminate on CRLF; anything else (the DATA bodies of read
// commands) terminates on a single CR.
type ResponseMatcher struct {
	matcherType matcherType
	prefix      []byte
	cr          bool
}

// Consume feeds one byte to the matcher and reports whether it completes a
// message.
func (m *ResponseMatcher) Consume(c byte) bool {
	switch m.matcherType {
	case matchUnknown:
		if c == '\r' {
			m.matcherType = matchCR
			return true
		}
		m.prefix = append(m.prefix, c)
		switch {
		case string(m.prefix) == "OK:" || string(m.prefix) == "NG:" || string(m.prefix) == "ERROR:":
			m.matcherType = matchCRLF
		case string(m.prefix) == "0000":
			m.matcherType = matchCRLF
		case len(m.prefix) >= 6:
			m.matcherType = matchCR
		}
	case matchCRLF:
		if m.cr && c == '\n' {
			return true
		}
		m.cr = c == '\r'
	case matchCR:
		if c == '\r' {
			return true
		}
	}
	return false
}

// Match scans data for the end of the current message.  It returns the
// number of bytes consumed and whether a complete message was found.
func (m *ResponseMatcher) Match(data []byte) (int, bool) {
	for i, c := range data {
		if m.Consume(c) {
			return i + 1, true
		}
	}
	return len(data), false
}

// Request encoding.

func appendStartCommand(out []byte, keepAlive int) []byte {
	if keepAlive == 0 {
		return append(out, "CONNECT Robot_access\r\n"...)
	}
	return append(out, fmt.Sprintf("CONNECT Robot_access Keep-Alive:%d\r\n", keepAlive)...)
}

// appendCommand encodes a command line and its CR-terminated data body.
func appendCommand(out []byte, name string, params string) []byte {
	data := params + "\r"
	out = append(out, fmt.Sprintf("HOSTCTRL_REQUEST %s %d\r\n", name, len(data))...)
	return append(out, data...)
}

// formatParams joins parameter values with commas.
func formatParams(params ...string) string {
	return strings.Join(params, ",")
}

// formatPulsePosition renders a pulse position as a parameter list:
// type, joints..., tool.
func formatPulsePosition(p yaskawa.PulsePosition) string {
	parts := make([]string, 0, len(p.Joints)+2)
	parts = append(parts, "0")
	for _, joint := range p.Joints {
		parts = append(parts, strconv.FormatInt(int64(joint), 10))
	}
	parts = append(parts, strconv.Itoa(p.Tool))
	return formatParams(parts...)
}

// formatCartesianPosition renders a cartesian position as a parameter list:
// type, frame, x, y, z, rx, ry, rz, configuration, tool, with three decimal
// places for translation and four for rotation.
func formatCartesianPosition(p yaskawa.CartesianPosition) string {
	return formatParams(
		"1",
		strconv.Itoa(int(p.Frame)),
		strconv.FormatFloat(p.X, 'f', 3, 64),
		strconv.FormatFloat(p.Y, 'f', 3, 64),
		strconv.FormatFloat(p.Z, 'f', 3, 64),
		strconv.FormatFloat(p.Rx, 'f', 4, 64),
		strconv.FormatFloat(p.Ry, 'f', 4, 64),
		strconv.FormatFloat(p.Rz, 'f', 4, 64),
		strconv.Itoa(int(p.Configuration)),
		strconv.Itoa(p.Tool),
	)
}

func formatPosition(p yaskawa.Position) (string, error) {
	switch v := p.(type) {
	case yaskawa.PulsePosition:
		return formatPulsePosition(v), nil
	case yaskawa.CartesianPosition:
		return formatCartesianPosition(v), nil
	}
	return "", yaskawa.NewError(yaskawa.KindInvalidArgument, "unknown position type %T", p)
}

// Response decoding.

// decodeCommandResponse parses the first response line of a command:
// "OK: <message>" resolves with the trimmed message, "NG:" and "ERROR:"
// resolve as command failures, "0000" resolves as an empty success.
func decodeCommandResponse(message []byte) (string, error) {
	text := string(message)
	if !strings.HasSuffix(text, "\r\n") {
		return "", yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "response does not end with CRLF")
	}
	text = text[:len(text)-2]

	switch {
	case strings.HasPrefix(text, "OK:"):
		return strings.TrimLeft(text[3:], " "), nil
	case strings.HasPrefix(text, "NG:"):
		return "", yaskawa.CommandFailedMessage(strings.TrimLeft(text[3:], " "))
	case strings.HasPrefix(text, "ERROR:"):
		return "", yaskawa.CommandFailedMessage(strings.TrimLeft(text[6:], " "))
	case text == "0000":
		return "", nil
	}
	return "", yaskawa.MalformedResponse(yaskawa.MalformedMissingMagic, "response does not start with `OK:', `NG:' or `ERROR:'")
}

// splitData splits a CR-terminated data body into comma-separated,
// space-trimmed components.
func splitData(message []byte) ([]string, error) {
	text := string(message)
	if !strings.HasSuffix(text, "\r") {
		return nil, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "data body does not end with CR")
	}
	text = text[:len(text)-1]

	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.Trim(parts[i], " ")
	}
	return parts, nil
}

func isNumerical(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSign(c byte) bool {
	return c == '+' || c == '-'
}

// parseInt is a strict integer parser: an optional sign followed by digits
// only, bounds-checked against the declared range.
func parseInt(data string, min, max int64) (int64, error) {
	if data == "" {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "empty integer value received")
	}

	var sign int64 = 1
	if isSign(data[0]) {
		if data[0] == '-' {
			sign = -1
		}
		data = data[1:]
	}
	if data == "" {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "integer value consists of a bare sign")
	}

	var result int64
	for i := 0; i < len(data); i++ {
		if !isNumerical(data[i]) {
			return 0, yaskawa.MalformedResponse(yaskawa.MalformedTrailingBytes,
				"invalid character encountered in integral value: `%c' (%d)", data[i], data[i])
		}
		result = result*10 + int64(data[i]-'0')
	}
	result *= sign

	if result < min {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"received value (%d) exceeds the lowest allowed value (%d)", result, min)
	}
	if result > max {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"received value (%d) exceeds the highest allowed value (%d)", result, max)
	}
	return result, nil
}

// parseFloat is a strict floating point parser: an optional sign, digits,
// an optional fractional part and an optional exponent.
func parseFloat(data string) (float64, error) {
	if data == "" {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "empty floating point value received")
	}

	rest := data
	readInt := func(allowSign bool) (int64, int) {
		var sign int64 = 1
		digits := 0
		if allowSign && rest != "" && isSign(rest[0]) {
			if rest[0] == '-' {
				sign = -1
			}
			rest = rest[1:]
		}
		var result int64
		for rest != "" && isNumerical(rest[0]) {
			result = result*10 + int64(rest[0]-'0')
			rest = rest[1:]
			digits++
		}
		return sign * result, digits
	}

	integral, _ := readInt(true)
	negative := strings.HasPrefix(data, "-")

	var fractional int64
	var fractionalDigits int
	if rest != "" && rest[0] == '.' {
		rest = rest[1:]
		fractional, fractionalDigits = readInt(false)
	}

	var exponent int64
	if rest != "" && (rest[0] == 'e' || rest[0] == 'E') {
		rest = rest[1:]
		var exponentDigits int
		exponent, exponentDigits = readInt(true)
		if exponentDigits == 0 {
			return 0, yaskawa.MalformedResponse(yaskawa.MalformedTruncated, "floating point exponent without digits")
		}
	}

	if rest != "" {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedTrailingBytes,
			"invalid character encountered in floating point value: `%c' (%d)", rest[0], rest[0])
	}

	mantissa := float64(integral)
	fraction := float64(fractional)
	if negative {
		fraction = -fraction
	}
	result := mantissa*pow10(exponent) + fraction*pow10(exponent-int64(fractionalDigits))
	return result, nil
}

func pow10(n int64) float64 {
	result := 1.0
	if n < 0 {
		for ; n < 0; n++ {
			result /= 10
		}
		return result
	}
	for ; n > 0; n-- {
		result *= 10
	}
	return result
}

// decodeIntData decodes a data body containing exactly one integer.
func decodeIntData(message []byte, min, max int64) (int64, error) {
	params, err := splitData(message)
	if err != nil {
		return 0, err
	}
	if len(params) != 1 {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"received %d data components, expected 1", len(params))
	}
	return parseInt(params[0], min, max)
}

// decodeFloatData decodes a data body containing exactly one float.
func decodeFloatData(message []byte) (float64, error) {
	params, err := splitData(message)
	if err != nil {
		return 0, err
	}
	if len(params) != 1 {
		return 0, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"received %d data components, expected 1", len(params))
	}
	return parseFloat(params[0])
}

// decodePulsePositionParams decodes the joints-and-tool tail of a pulse
// position parameter list.
func decodePulsePositionParams(params []string) (yaskawa.PulsePosition, error) {
	if len(params) < 7 || len(params) > 9 {
		return yaskawa.PulsePosition{}, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"wrong number of parameters (%d) to describe a pulse position", len(params))
	}
	joints := make([]int32, len(params)-1)
	for i := range joints {
		value, err := parseInt(params[i], -1<<31, 1<<31-1)
		if err != nil {
			return yaskawa.PulsePosition{}, err
		}
		joints[i] = int32(value)
	}
	tool, err := parseInt(params[len(params)-1], 0, 15)
	if err != nil {
		return yaskawa.PulsePosition{}, err
	}
	return yaskawa.PulsePosition{Joints: joints, Tool: int(tool)}, nil
}

// decodeCartesianPositionParams decodes the frame, pose, configuration and
// tool tail of a cartesian position parameter list.
func decodeCartesianPositionParams(params []string) (yaskawa.CartesianPosition, error) {
	if len(params) != 9 {
		return yaskawa.CartesianPosition{}, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"wrong number of parameters (%d) to describe a cartesian position", len(params))
	}

	frame, err := parseInt(params[0], int64(yaskawa.Base), int64(yaskawa.Master))
	if err != nil {
		return yaskawa.CartesianPosition{}, err
	}

	var pose [6]float64
	for i := 0; i < 6; i++ {
		value, err := parseFloat(params[1+i])
		if err != nil {
			return yaskawa.CartesianPosition{}, err
		}
		pose[i] = value
	}

	configuration, err := parseInt(params[7], 0, 0x3f)
	if err != nil {
		return yaskawa.CartesianPosition{}, err
	}
	tool, err := parseInt(params[8], 0, 15)
	if err != nil {
		return yaskawa.CartesianPosition{}, err
	}

	return yaskawa.CartesianPosition{
		X: pose[0], Y: pose[1], Z: pose[2],
		Rx: pose[3], Ry: pose[4], Rz: pose[5],
		Frame:         yaskawa.CoordinateSystem(frame),
		Configuration: yaskawa.PoseConfiguration(configuration),
		Tool:          int(tool),
	}, nil
}

// decodePositionData decodes a position data body: a type component
// followed by the pulse or cartesian parameters.
func decodePositionData(message []byte) (yaskawa.Position, error) {
	params, err := splitData(message)
	if err != nil {
		return nil, err
	}
	if len(params) < 8 || len(params) > 10 {
		return nil, yaskawa.MalformedResponse(yaskawa.MalformedWrongElementCount,
			"wrong number of parameters (%d) to describe a position", len(params))
	}

	positionType, err := parseInt(params[0], 0, 1)
	if err != nil {
		return nil, yaskawa.MalformedResponse(yaskawa.MalformedBadPositionType,
			"unexpected position type %q, expected 0 or 1", params[0])
	}
	if positionType == 0 {
		return decodePulsePositionParams(params[1:])
	}
	position, err := decodeCartesianPositionParams(params[1:])
	if err != nil {
		return nil, err
	}
	return position, nil
}
