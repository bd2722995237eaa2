package value

import (
	"fmt"
	"math/big"

	"gopkg.in/yaml.v3"
)

// MarshalYAML implements yaml.Marshaler. Structures become mappings that
// keep field order.
func (v Value) MarshalYAML() (any, error) {
	return v.node()
}

func (v Value) node() (*yaml.Node, error) {
	switch v.kind {
	case KindInteger:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: v.intVal.String()}, nil
	case KindBoolean:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(v.bool)}, nil
	case KindText:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.text}, nil
	case KindStructure:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range v.fields {
			child, err := f.Value.node()
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
				child)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("value: cannot marshal %s value", v.kind)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := FromYAML(n)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseYAML reads a value tree from a YAML document.
func ParseYAML(data []byte) (Value, error) {
	var v Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// FromYAML converts a decoded YAML node. Integers, booleans and strings map
// to the matching variants, mappings to Structures in document order.
func FromYAML(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return Value{}, fmt.Errorf("value: empty yaml document")
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int":
			i, ok := new(big.Int).SetString(n.Value, 0)
			if !ok {
				return Value{}, fmt.Errorf("value: line %d: bad integer %q", n.Line, n.Value)
			}
			return Value{kind: KindInteger, intVal: i}, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return Value{}, fmt.Errorf("value: line %d: %w", n.Line, err)
			}
			return Bool(b), nil
		case "!!str":
			return Text(n.Value), nil
		default:
			return Value{}, fmt.Errorf("value: line %d: unsupported scalar %s", n.Line, n.ShortTag())
		}
	case yaml.MappingNode:
		s := Value{kind: KindStructure, fields: make([]Field, 0, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("value: line %d: mapping keys must be scalars", key.Line)
			}
			fv, err := FromYAML(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			if _, dup := s.Get(key.Value); dup {
				return Value{}, fmt.Errorf("value: line %d: duplicate field %q", key.Line, key.Value)
			}
			s.fields = append(s.fields, Field{Name: key.Value, Value: fv})
		}
		return s, nil
	default:
		return Value{}, fmt.Errorf("value: line %d: sequences are not supported", n.Line)
	}
}
