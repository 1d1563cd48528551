/*
Package dynatable – attribute type registry.

Defines the supported wire tags and the conversion functions between Go
values and the DynamoDB tagged attribute-value encoding.
*/
package dynatable

import (
	"math/big"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a generic property map passed to and returned from operations.
type Item = map[string]any

// AttributeType is the wire tag of an attribute value.
type AttributeType string

const (
	TypeString    AttributeType = "S"
	TypeNumber    AttributeType = "N"
	TypeBinary    AttributeType = "B"
	TypeBool      AttributeType = "BOOL"
	TypeNull      AttributeType = "NULL"
	TypeList      AttributeType = "L"
	TypeMap       AttributeType = "M"
	TypeStringSet AttributeType = "SS"
	TypeNumberSet AttributeType = "NS"
	TypeBinarySet AttributeType = "BS"
)

// IsSet reports whether the tag is one of the homogeneous scalar set types.
func (t AttributeType) IsSet() bool {
	return t == TypeStringSet || t == TypeNumberSet || t == TypeBinarySet
}

// keyable reports whether attributes of this tag may serve as table or
// index keys.
func (t AttributeType) keyable() bool {
	return t == TypeString || t == TypeNumber || t == TypeBinary
}

// ─── Number ──────────────────────────────────────────────────────────────────

// Number is an arbitrary-precision decimal carried in its DynamoDB string
// form. Values round-trip exactly; nothing is ever forced through a float.
type Number string

// NewNumber validates s as a decimal number string.
func NewNumber(s string) (Number, error) {
	if _, ok := Number(s).Rat(); !ok {
		return "", newSerializationError("invalid number %q", s)
	}
	return Number(s), nil
}

// NumberFromInt converts an int64 exactly.
func NumberFromInt(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// NumberFromFloat converts a float64 using the shortest representation that
// round-trips the float exactly.
func NumberFromFloat(f float64) Number {
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Rat returns the exact rational value, or false when the string is not a
// valid decimal.
func (n Number) Rat() (*big.Rat, bool) {
	s := string(n)
	if s == "" {
		return nil, false
	}
	// big.Rat also parses fractions and base-prefixed forms; the service
	// only speaks decimal with an optional exponent, so gate the charset
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-':
		default:
			return nil, false
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, false
	}
	return r, true
}

// Cmp compares two numbers exactly. It returns -1, 0 or +1.
func (n Number) Cmp(o Number) (int, error) {
	a, ok := n.Rat()
	if !ok {
		return 0, newSerializationError("invalid number %q", string(n))
	}
	b, ok := o.Rat()
	if !ok {
		return 0, newSerializationError("invalid number %q", string(o))
	}
	return a.Cmp(b), nil
}

// Int64 returns the value as an int64 when it is an exact integer in range.
func (n Number) Int64() (int64, bool) {
	i, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

func (n Number) String() string { return string(n) }

// ─── Set types ───────────────────────────────────────────────────────────────

// StringSet, NumberSet and BinarySet are the homogeneous scalar set values.
// Members must be unique; empty sets are represented as attribute-absent on
// the wire because the service forbids empty sets.
type (
	StringSet []string
	NumberSet []Number
	BinarySet [][]byte
)

// ─── Registry ────────────────────────────────────────────────────────────────

// errEmptySet signals that a set value has no members and the attribute
// must be omitted from the wire output.
var errEmptySet = newSerializationError("empty set")

type typeCodec struct {
	encode func(v any) (types.AttributeValue, error)
	decode func(av types.AttributeValue) (any, error)
}

// typeRegistry maps each wire tag to its conversion functions.
var typeRegistry = map[AttributeType]typeCodec{
	TypeString: {encodeString, decodeString},
	TypeNumber: {encodeNumber, decodeNumber},
	TypeBinary: {encodeBinary, decodeBinary},
	TypeBool:   {encodeBool, decodeBool},
	TypeNull:   {encodeNull, decodeNull},
	TypeList:   {encodeList, decodeList},
	TypeMap:    {encodeMap, decodeMap},

	TypeStringSet: {encodeStringSet, decodeStringSet},
	TypeNumberSet: {encodeNumberSet, decodeNumberSet},
	TypeBinarySet: {encodeBinarySet, decodeBinarySet},
}

func codecFor(t AttributeType) (typeCodec, error) {
	c, ok := typeRegistry[t]
	if !ok {
		return typeCodec{}, newSerializationError("unknown attribute type %q", string(t))
	}
	return c, nil
}

func encodeString(v any) (types.AttributeValue, error) {
	s, ok := v.(string)
	if !ok {
		return nil, newSerializationError("expected string, got %T", v)
	}
	return &types.AttributeValueMemberS{Value: s}, nil
}

func decodeString(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, newSerializationError("expected S attribute, got %T", av)
	}
	return m.Value, nil
}

func coerceNumber(v any) (Number, error) {
	switch n := v.(type) {
	case Number:
		if _, ok := n.Rat(); !ok {
			return "", newSerializationError("invalid number %q", string(n))
		}
		return n, nil
	case int:
		return NumberFromInt(int64(n)), nil
	case int32:
		return NumberFromInt(int64(n)), nil
	case int64:
		return NumberFromInt(n), nil
	case float64:
		return NumberFromFloat(n), nil
	case string:
		return NewNumber(n)
	default:
		return "", newSerializationError("expected number, got %T", v)
	}
}

func encodeNumber(v any) (types.AttributeValue, error) {
	n, err := coerceNumber(v)
	if err != nil {
		return nil, err
	}
	return &types.AttributeValueMemberN{Value: string(n)}, nil
}

func decodeNumber(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, newSerializationError("expected N attribute, got %T", av)
	}
	return Number(m.Value), nil
}

func encodeBinary(v any) (types.AttributeValue, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, newSerializationError("expected []byte, got %T", v)
	}
	return &types.AttributeValueMemberB{Value: b}, nil
}

func decodeBinary(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberB)
	if !ok {
		return nil, newSerializationError("expected B attribute, got %T", av)
	}
	return m.Value, nil
}

func encodeBool(v any) (types.AttributeValue, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, newSerializationError("expected bool, got %T", v)
	}
	return &types.AttributeValueMemberBOOL{Value: b}, nil
}

func decodeBool(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberBOOL)
	if !ok {
		return nil, newSerializationError("expected BOOL attribute, got %T", av)
	}
	return m.Value, nil
}

func encodeNull(v any) (types.AttributeValue, error) {
	if v != nil {
		return nil, newSerializationError("expected nil, got %T", v)
	}
	return &types.AttributeValueMemberNULL{Value: true}, nil
}

func decodeNull(types.AttributeValue) (any, error) { return nil, nil }

func encodeList(v any) (types.AttributeValue, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, newSerializationError("expected []any, got %T", v)
	}
	members := make([]types.AttributeValue, len(list))
	for i, member := range list {
		av, err := encodeAny(member)
		if err != nil {
			return nil, err
		}
		members[i] = av
	}
	return &types.AttributeValueMemberL{Value: members}, nil
}

func decodeList(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, newSerializationError("expected L attribute, got %T", av)
	}
	list := make([]any, len(m.Value))
	for i, member := range m.Value {
		v, err := decodeAny(member)
		if err != nil {
			return nil, err
		}
		list[i] = v
	}
	return list, nil
}

func encodeMap(v any) (types.AttributeValue, error) {
	obj, ok := v.(Item)
	if !ok {
		return nil, newSerializationError("expected map[string]any, got %T", v)
	}
	members := make(map[string]types.AttributeValue, len(obj))
	for k, member := range obj {
		av, err := encodeAny(member)
		if err != nil {
			return nil, err
		}
		members[k] = av
	}
	return &types.AttributeValueMemberM{Value: members}, nil
}

func decodeMap(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, newSerializationError("expected M attribute, got %T", av)
	}
	obj := make(Item, len(m.Value))
	for k, member := range m.Value {
		v, err := decodeAny(member)
		if err != nil {
			return nil, err
		}
		obj[k] = v
	}
	return obj, nil
}

func encodeStringSet(v any) (types.AttributeValue, error) {
	var members []string
	switch set := v.(type) {
	case StringSet:
		members = set
	case []string:
		members = set
	default:
		return nil, newSerializationError("expected string set, got %T", v)
	}
	if len(members) == 0 {
		return nil, errEmptySet
	}
	seen := make(map[string]bool, len(members))
	for _, s := range members {
		if seen[s] {
			return nil, newSerializationError("duplicate set member %q", s)
		}
		seen[s] = true
	}
	return &types.AttributeValueMemberSS{Value: append([]string(nil), members...)}, nil
}

func decodeStringSet(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberSS)
	if !ok {
		return nil, newSerializationError("expected SS attribute, got %T", av)
	}
	return StringSet(append([]string(nil), m.Value...)), nil
}

func encodeNumberSet(v any) (types.AttributeValue, error) {
	var members []Number
	switch set := v.(type) {
	case NumberSet:
		members = set
	case []Number:
		members = set
	case []int:
		members = make([]Number, len(set))
		for i, n := range set {
			members[i] = NumberFromInt(int64(n))
		}
	case []int64:
		members = make([]Number, len(set))
		for i, n := range set {
			members[i] = NumberFromInt(n)
		}
	default:
		return nil, newSerializationError("expected number set, got %T", v)
	}
	if len(members) == 0 {
		return nil, errEmptySet
	}
	values := make([]string, len(members))
	seen := make(map[string]bool, len(members))
	for i, n := range members {
		if _, ok := n.Rat(); !ok {
			return nil, newSerializationError("invalid number %q", string(n))
		}
		if seen[string(n)] {
			return nil, newSerializationError("duplicate set member %q", string(n))
		}
		seen[string(n)] = true
		values[i] = string(n)
	}
	return &types.AttributeValueMemberNS{Value: values}, nil
}

func decodeNumberSet(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberNS)
	if !ok {
		return nil, newSerializationError("expected NS attribute, got %T", av)
	}
	set := make(NumberSet, len(m.Value))
	for i, s := range m.Value {
		set[i] = Number(s)
	}
	return set, nil
}

func encodeBinarySet(v any) (types.AttributeValue, error) {
	var members [][]byte
	switch set := v.(type) {
	case BinarySet:
		members = set
	case [][]byte:
		members = set
	default:
		return nil, newSerializationError("expected binary set, got %T", v)
	}
	if len(members) == 0 {
		return nil, errEmptySet
	}
	seen := make(map[string]bool, len(members))
	for _, b := range members {
		if seen[string(b)] {
			return nil, newSerializationError("duplicate set member")
		}
		seen[string(b)] = true
	}
	return &types.AttributeValueMemberBS{Value: members}, nil
}

func decodeBinarySet(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberBS)
	if !ok {
		return nil, newSerializationError("expected BS attribute, got %T", av)
	}
	return BinarySet(m.Value), nil
}

// ─── Generic conversion ──────────────────────────────────────────────────────

// encodeAny converts a Go value without a declared attribute type, as found
// inside lists, maps and expression literals. Unrecognised Go types fall
// back to attributevalue.Marshal.
func encodeAny(v any) (types.AttributeValue, error) {
	switch tv := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: tv}, nil
	case Number, int, int32, int64, float64:
		return encodeNumber(tv)
	case bool:
		return &types.AttributeValueMemberBOOL{Value: tv}, nil
	case []byte:
		return &types.AttributeValueMemberB{Value: tv}, nil
	case []any:
		return encodeList(tv)
	case Item:
		return encodeMap(tv)
	case StringSet, []string:
		return encodeStringSet(tv)
	case NumberSet, []Number, []int, []int64:
		return encodeNumberSet(tv)
	case BinarySet, [][]byte:
		return encodeBinarySet(tv)
	case types.AttributeValue:
		return tv, nil
	default:
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, newSerializationError("cannot encode %T: %s", v, err)
		}
		return av, nil
	}
}

// decodeAny converts a wire value without a declared attribute type.
func decodeAny(av types.AttributeValue) (any, error) {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return decodeString(av)
	case *types.AttributeValueMemberN:
		return decodeNumber(av)
	case *types.AttributeValueMemberB:
		return decodeBinary(av)
	case *types.AttributeValueMemberBOOL:
		return decodeBool(av)
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberL:
		return decodeList(av)
	case *types.AttributeValueMemberM:
		return decodeMap(av)
	case *types.AttributeValueMemberSS:
		return decodeStringSet(av)
	case *types.AttributeValueMemberNS:
		return decodeNumberSet(av)
	case *types.AttributeValueMemberBS:
		return decodeBinarySet(av)
	default:
		return nil, newSerializationError("unknown attribute value %T", av)
	}
}

// wireTag returns the tag of a wire value, used by attribute_type conditions
// and operator validity checks.
func wireTag(av types.AttributeValue) AttributeType {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return TypeString
	case *types.AttributeValueMemberN:
		return TypeNumber
	case *types.AttributeValueMemberB:
		return TypeBinary
	case *types.AttributeValueMemberBOOL:
		return TypeBool
	case *types.AttributeValueMemberNULL:
		return TypeNull
	case *types.AttributeValueMemberL:
		return TypeList
	case *types.AttributeValueMemberM:
		return TypeMap
	case *types.AttributeValueMemberSS:
		return TypeStringSet
	case *types.AttributeValueMemberNS:
		return TypeNumberSet
	case *types.AttributeValueMemberBS:
		return TypeBinarySet
	default:
		return ""
	}
}
