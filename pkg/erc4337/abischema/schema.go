// Package abischema describes ABI parameter lists as explicit, ordered
// {name, solidity type} pairs and encodes/decodes values against them.
package abischema

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Param is one entry of a parameter list.
type Param struct {
	Name string
	Type string
}

// Schema is an ordered parameter list bound to go-ethereum ABI types.
type Schema struct {
	params []Param
	args   abi.Arguments
}

func New(params ...Param) (*Schema, error) {
	args := make(abi.Arguments, 0, len(params))
	for i, p := range params {
		typ, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("param %d (%s %s): %w", i, p.Type, p.Name, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		args = append(args, abi.Argument{Name: name, Type: typ})
	}

	return &Schema{params: append([]Param(nil), params...), args: args}, nil
}

func MustNew(params ...Param) *Schema {
	s, err := New(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse builds a schema from a signature-like list such as
// "address sender, uint256 nonce". Names are optional.
func Parse(list string) (*Schema, error) {
	var params []Param
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1:
			params = append(params, Param{Type: fields[0]})
		case 2:
			params = append(params, Param{Type: fields[0], Name: fields[1]})
		default:
			return nil, fmt.Errorf("malformed parameter %q", strings.TrimSpace(part))
		}
	}
	return New(params...)
}

func MustParse(list string) *Schema {
	s, err := Parse(list)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Params() []Param {
	return append([]Param(nil), s.params...)
}

// Arguments exposes the underlying go-ethereum arguments.
func (s *Schema) Arguments() abi.Arguments {
	return s.args
}

// Encode ABI-encodes values in schema order.
func (s *Schema) Encode(values ...interface{}) ([]byte, error) {
	if len(values) != len(s.args) {
		return nil, fmt.Errorf("schema %s expects %d values, got %d", s, len(s.args), len(values))
	}
	return s.args.Pack(values...)
}

// Decode unpacks data into values ordered like the schema.
func (s *Schema) Decode(data []byte) ([]interface{}, error) {
	return s.args.Unpack(data)
}

// DecodeMap unpacks data keyed by parameter name.
func (s *Schema) DecodeMap(data []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.args))
	if err := s.args.UnpackIntoMap(out, data); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Schema) String() string {
	parts := make([]string, len(s.params))
	for i, p := range s.params {
		parts[i] = strings.TrimSpace(p.Type + " " + p.Name)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
