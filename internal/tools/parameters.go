// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"encoding/json"
	"fmt"
)

const (
	typeString = "string"
	typeInt    = "integer"
	typeFloat  = "float"
	typeBool   = "boolean"
	typeArray  = "array"
)

// ParamValues is an ordered list of ParamValue.
type ParamValues []ParamValue

// ParamValue represents the parameter's name and value.
type ParamValue struct {
	Name  string
	Value any
}

// AsSlice returns a slice of the Param's values (in order).
func (p ParamValues) AsSlice() []any {
	params := make([]any, 0, len(p))
	for _, v := range p {
		params = append(params, v.Value)
	}
	return params
}

// AsMap returns a map of ParamValue's names to values.
func (p ParamValues) AsMap() map[string]interface{} {
	params := make(map[string]interface{}, len(p))
	for _, v := range p {
		params[v.Name] = v.Value
	}
	return params
}

// ParseParams parses Parameters out of the raw request data. Parameters
// with a default are filled in when the caller omits them; claims is
// accepted for call-site parity with the tool dispatch path but unused
// since no auth source claims are wired into this server.
func ParseParams(ps Parameters, data map[string]any, claims map[string]map[string]any) (ParamValues, error) {
	return extractParams(ps, data)
}

// GetParams re-derives ParamValues from a plain map, the shape Invoke
// receives after ParseParams has already run once at the transport
// boundary. Tools call this on params.AsMap() to get back an ordered,
// positionally-stable ParamValues for the driver's placeholder binding.
func GetParams(ps Parameters, data map[string]any) (ParamValues, error) {
	return extractParams(ps, data)
}

func extractParams(ps Parameters, data map[string]any) (ParamValues, error) {
	params := make(ParamValues, 0, len(ps))
	for _, p := range ps {
		name := p.GetName()
		v, ok := data[name]
		if !ok {
			def, hasDefault := p.GetDefault()
			if !hasDefault {
				return nil, fmt.Errorf("parameter %q is required", name)
			}
			params = append(params, ParamValue{Name: name, Value: def})
			continue
		}
		newV, err := p.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("unable to parse value for %q: %w", name, err)
		}
		params = append(params, ParamValue{Name: name, Value: newV})
	}
	return params, nil
}

// Parameter describes one named input a tool accepts.
type Parameter interface {
	GetName() string
	GetType() string
	GetDefault() (any, bool)
	Parse(any) (any, error)
	Manifest() ParameterManifest
	McpManifest() ParameterMcpManifest
}

// Parameters is an ordered list of Parameter.
type Parameters []Parameter

// Manifest returns the parameter manifests for all Parameters, in order.
func (ps Parameters) Manifest() []ParameterManifest {
	rtn := make([]ParameterManifest, 0, len(ps))
	for _, p := range ps {
		rtn = append(rtn, p.Manifest())
	}
	return rtn
}

// McpManifest returns the JSON schema object describing every parameter.
func (ps Parameters) McpManifest() McpToolsSchema {
	schema := McpToolsSchema{
		Type:       "object",
		Properties: make(map[string]ParameterMcpManifest, len(ps)),
	}
	for _, p := range ps {
		schema.Properties[p.GetName()] = p.McpManifest()
		if _, hasDefault := p.GetDefault(); !hasDefault {
			schema.Required = append(schema.Required, p.GetName())
		}
	}
	return schema
}

// ParameterManifest represents parameters when served as part of a ToolManifest.
type ParameterManifest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ParameterMcpManifest is the JSON-schema fragment for one parameter.
type ParameterMcpManifest struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// CommonParameter holds the fields shared by every Parameter implementation.
type CommonParameter struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Desc string `yaml:"description"`
}

func (p *CommonParameter) GetName() string { return p.Name }
func (p *CommonParameter) GetType() string { return p.Type }

func (p *CommonParameter) Manifest() ParameterManifest {
	return ParameterManifest{Name: p.Name, Type: p.Type, Description: p.Desc}
}

func (p *CommonParameter) McpManifest() ParameterMcpManifest {
	return ParameterMcpManifest{Type: p.Type, Description: p.Desc}
}

// ParseTypeError is returned when a value doesn't match a Parameter's type.
type ParseTypeError struct {
	Name  string
	Type  string
	Value any
}

func (e ParseTypeError) Error() string {
	return fmt.Sprintf("%v is not type %q for parameter %q", e.Value, e.Type, e.Name)
}

// NewStringParameter initializes a required StringParameter.
func NewStringParameter(name, desc string) *StringParameter {
	return &StringParameter{CommonParameter: CommonParameter{Name: name, Type: typeString, Desc: desc}}
}

// NewStringParameterWithDefault initializes an optional StringParameter.
func NewStringParameterWithDefault(name string, def string, desc string) *StringParameter {
	return &StringParameter{
		CommonParameter: CommonParameter{Name: name, Type: typeString, Desc: desc},
		Default:         def,
		HasDefault:      true,
	}
}

var _ Parameter = &StringParameter{}

// StringParameter is a parameter representing the "string" type.
type StringParameter struct {
	CommonParameter `yaml:",inline"`
	Default         string `yaml:"default"`
	HasDefault      bool   `yaml:"-"`
}

func (p *StringParameter) Parse(v any) (any, error) {
	newV, ok := v.(string)
	if !ok {
		return nil, &ParseTypeError{p.Name, p.Type, v}
	}
	return newV, nil
}

func (p *StringParameter) GetDefault() (any, bool) { return p.Default, p.HasDefault }

// NewIntParameter initializes a required IntParameter.
func NewIntParameter(name, desc string) *IntParameter {
	return &IntParameter{CommonParameter: CommonParameter{Name: name, Type: typeInt, Desc: desc}}
}

// NewIntParameterWithDefault initializes an optional IntParameter.
func NewIntParameterWithDefault(name string, def int, desc string) *IntParameter {
	return &IntParameter{
		CommonParameter: CommonParameter{Name: name, Type: typeInt, Desc: desc},
		Default:         def,
		HasDefault:      true,
	}
}

var _ Parameter = &IntParameter{}

// IntParameter is a parameter representing the "int" type.
type IntParameter struct {
	CommonParameter `yaml:",inline"`
	Default         int  `yaml:"default"`
	HasDefault      bool `yaml:"-"`
}

func (p *IntParameter) Parse(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, &ParseTypeError{p.Name, p.Type, v}
		}
		return int(i), nil
	default:
		return nil, &ParseTypeError{p.Name, p.Type, v}
	}
}

func (p *IntParameter) GetDefault() (any, bool) { return p.Default, p.HasDefault }

// NewBooleanParameter initializes a required BooleanParameter.
func NewBooleanParameter(name, desc string) *BooleanParameter {
	return &BooleanParameter{CommonParameter: CommonParameter{Name: name, Type: typeBool, Desc: desc}}
}

// NewBooleanParameterWithDefault initializes an optional BooleanParameter.
func NewBooleanParameterWithDefault(name string, def bool, desc string) *BooleanParameter {
	return &BooleanParameter{
		CommonParameter: CommonParameter{Name: name, Type: typeBool, Desc: desc},
		Default:         def,
		HasDefault:      true,
	}
}

var _ Parameter = &BooleanParameter{}

// BooleanParameter is a parameter representing the "boolean" type.
type BooleanParameter struct {
	CommonParameter `yaml:",inline"`
	Default         bool `yaml:"default"`
	HasDefault      bool `yaml:"-"`
}

func (p *BooleanParameter) Parse(v any) (any, error) {
	newV, ok := v.(bool)
	if !ok {
		return nil, &ParseTypeError{p.Name, p.Type, v}
	}
	return newV, nil
}

func (p *BooleanParameter) GetDefault() (any, bool) { return p.Default, p.HasDefault }

// NewArrayParameter initializes a required ArrayParameter of strings.
func NewArrayParameter(name, desc string) *ArrayParameter {
	return &ArrayParameter{CommonParameter: CommonParameter{Name: name, Type: typeArray, Desc: desc}}
}

// NewArrayParameterWithDefault initializes an optional ArrayParameter of strings.
func NewArrayParameterWithDefault(name string, def []string, desc string) *ArrayParameter {
	return &ArrayParameter{
		CommonParameter: CommonParameter{Name: name, Type: typeArray, Desc: desc},
		Default:         def,
		HasDefault:      true,
	}
}

var _ Parameter = &ArrayParameter{}

// ArrayParameter is a parameter representing an array of strings, used
// for inline query-text lists (e.g. postgres_analyze_query_indexes).
type ArrayParameter struct {
	CommonParameter `yaml:",inline"`
	Default         []string `yaml:"default"`
	HasDefault      bool     `yaml:"-"`
}

func (p *ArrayParameter) Parse(v any) (any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, &ParseTypeError{p.Name, p.Type, v}
	}
	out := make([]string, 0, len(arr))
	for idx, elem := range arr {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("unable to parse element #%d of %q: not a string", idx, p.Name)
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *ArrayParameter) GetDefault() (any, bool) { return p.Default, p.HasDefault }
