/*
Package dynatable – serializer.

Pure functions converting descriptor-typed field maps to and from the
DynamoDB tagged attribute-value encoding.
*/
package dynatable

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Serialize converts fields to the wire encoding per the model descriptor.
// Rules:
//   - a required attribute with no value and no default fails with a
//     ValidationError
//   - an attribute name not declared in the descriptor fails with a
//     ValidationError
//   - an explicit nil value serializes as the NULL wire tag
//   - empty sets are omitted from the output, never encoded as empty
func Serialize(spec *ModelSpec, fields Item) (map[string]types.AttributeValue, error) {
	for name := range fields {
		if _, ok := spec.Attribute(name); !ok {
			return nil, newValidationError("model %q: unknown attribute %q", spec.Name(), name)
		}
	}

	out := make(map[string]types.AttributeValue, len(fields))
	for _, attr := range spec.attrs {
		value, present := fields[attr.Name]
		if !present {
			if attr.Default != nil {
				if v := attr.Default(); v != nil {
					value, present = v, true
				}
			}
			if !present {
				if attr.Required {
					return nil, newValidationError("model %q: missing required attribute %q", spec.Name(), attr.Name)
				}
				continue
			}
		}

		av, err := serializeAttribute(&attr, value)
		if err != nil {
			if errors.Is(err, errEmptySet) {
				continue
			}
			return nil, err
		}
		out[attr.Name] = av
	}
	return out, nil
}

func serializeAttribute(attr *AttributeSpec, value any) (types.AttributeValue, error) {
	if value == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	codec, err := codecFor(attr.Type)
	if err != nil {
		return nil, err
	}
	av, err := codec.encode(value)
	if err != nil {
		if errors.Is(err, errEmptySet) {
			return nil, err
		}
		return nil, newSerializationError("attribute %q: %s", attr.Name, err)
	}
	return av, nil
}

// Deserialize converts a wire item back to a field map. Attributes present
// on the wire but absent from the descriptor are ignored for forward
// compatibility. A NULL wire value deserializes to an explicit nil entry.
func Deserialize(spec *ModelSpec, item map[string]types.AttributeValue) (Item, error) {
	fields := make(Item, len(item))
	for _, attr := range spec.attrs {
		av, ok := item[attr.Name]
		if !ok {
			continue
		}
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			fields[attr.Name] = nil
			continue
		}
		codec, err := codecFor(attr.Type)
		if err != nil {
			return nil, err
		}
		v, err := codec.decode(av)
		if err != nil {
			return nil, newSerializationError("attribute %q: %s", attr.Name, err)
		}
		fields[attr.Name] = v
	}
	return fields, nil
}

// deserializeAll maps a list of wire items through Deserialize.
func deserializeAll(spec *ModelSpec, items []map[string]types.AttributeValue) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, raw := range items {
		item, err := Deserialize(spec, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
