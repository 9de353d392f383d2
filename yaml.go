// yaml.go - YAML (un)marshalling of position values.
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
	"fmt"

	"gopkg.in/yaml.v3"
)

type cartesianYAML struct {
	X             float64 `yaml:"x"`
	Y             float64 `yaml:"y"`
	Z             float64 `yaml:"z"`
	Rx            float64 `yaml:"rx"`
	Ry            float64 `yaml:"ry"`
	Rz            float64 `yaml:"rz"`
	Frame         int     `yaml:"frame"`
	Configuration int     `yaml:"configuration"`
	Tool          int     `yaml:"tool"`
}

type pulseYAML struct {
	Joints []int32 `yaml:"joints"`
	Tool   int     `yaml:"tool"`
}

// MarshalYAML implements yaml.Marshaler.
func (p CartesianPosition) MarshalYAML() (interface{}, error) {
	return cartesianYAML{
		X: p.X, Y: p.Y, Z: p.Z,
		Rx: p.Rx, Ry: p.Ry, Rz: p.Rz,
		Frame:         int(p.Frame),
		Configuration: int(p.Configuration),
		Tool:          p.Tool,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *CartesianPosition) UnmarshalYAML(node *yaml.Node) error {
	var raw cartesianYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Frame < int(Base) || raw.Frame > int(Master) {
		return fmt.Errorf("invalid coordinate system %d", raw.Frame)
	}
	*p = CartesianPosition{
		X: raw.X, Y: raw.Y, Z: raw.Z,
		Rx: raw.Rx, Ry: raw.Ry, Rz: raw.Rz,
		Frame:         CoordinateSystem(raw.Frame),
		Configuration: PoseConfiguration(raw.Configuration),
		Tool:          raw.Tool,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p PulsePosition) MarshalYAML() (interface{}, error) {
	return pulseYAML{Joints: p.Joints, Tool: p.Tool}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PulsePosition) UnmarshalYAML(node *yaml.Node) error {
	var raw pulseYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if len(raw.Joints) < 6 || len(raw.Joints) > 8 {
		return fmt.Errorf("invalid joint count %d", len(raw.Joints))
	}
	*p = PulsePosition{Joints: raw.Joints, Tool: raw.Tool}
	return nil
}

type positionYAML struct {
	Type      string             `yaml:"type"`
	Pulse     *PulsePosition     `yaml:"pulse,omitempty"`
	Cartesian *CartesianPosition `yaml:"cartesian,omitempty"`
}

// MarshalPosition renders a Position as a tagged YAML document.
func MarshalPosition(p Position) ([]byte, error) {
	var doc positionYAML
	switch v := p.(type) {
	case PulsePosition:
		doc = positionYAML{Type: "pulse", Pulse: &v}
	case CartesianPosition:
		doc = positionYAML{Type: "cartesian", Cartesian: &v}
	default:
		return nil, fmt.Errorf("unknown position type %T", p)
	}
	return yaml.Marshal(doc)
}

// UnmarshalPosition parses a tagged YAML document into a Position.
func UnmarshalPosition(data []byte) (Position, error) {
	var doc positionYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Type {
	case "pulse":
		if doc.Pulse == nil {
			return nil, fmt.Errorf("pulse position document without pulse node")
		}
		return *doc.Pulse, nil
	case "cartesian":
		if doc.Cartesian == nil {
			return nil, fmt.Errorf("cartesian position document without cartesian node")
		}
		return *doc.Cartesian, nil
	}
	return nil, fmt.Errorf("unknown position document type %q", doc.Type)
}
