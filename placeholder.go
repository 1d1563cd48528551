/*
Package dynatable – placeholder tables.
*/
package dynatable

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PlaceholderTable collects the attribute-name and value substitutions for
// one compiled expression. Every attribute path is referenced as a #n<i>
// token and every literal as a :v<i> token, so expressions never collide
// with service reserved words and never inline literal values.
//
// Tokens are issued sequentially in traversal order and reused for repeated
// paths and repeated scalar values, making compilation deterministic.
type PlaceholderTable struct {
	names       map[string]string               // token -> attribute name
	nameTokens  map[string]string               // attribute name -> token
	values      map[string]types.AttributeValue // token -> value
	valueTokens map[string]string               // scalar fingerprint -> token
	nameSeq     int
	valueSeq    int
}

// NewPlaceholderTable creates an empty table.
func NewPlaceholderTable() *PlaceholderTable {
	return &PlaceholderTable{
		names:       map[string]string{},
		nameTokens:  map[string]string{},
		values:      map[string]types.AttributeValue{},
		valueTokens: map[string]string{},
	}
}

// NameToken registers a single attribute name and returns its token.
func (p *PlaceholderTable) NameToken(name string) string {
	if tok, ok := p.nameTokens[name]; ok {
		return tok
	}
	tok := "#n" + strconv.Itoa(p.nameSeq)
	p.nameSeq++
	p.names[tok] = name
	p.nameTokens[name] = tok
	return tok
}

// PathTokens renders a document path ("a.b[2].c") with each segment name
// replaced by its token; list subscripts are kept verbatim.
func (p *PlaceholderTable) PathTokens(path string) string {
	segments := strings.Split(path, ".")
	out := make([]string, len(segments))
	for i, seg := range segments {
		subscript := ""
		if idx := strings.Index(seg, "["); idx >= 0 {
			subscript = seg[idx:]
			seg = seg[:idx]
		}
		out[i] = p.NameToken(seg) + subscript
	}
	return strings.Join(out, ".")
}

// ValueToken registers a literal wire value and returns its token. Scalar
// values are deduplicated; structured values always get a fresh token.
func (p *PlaceholderTable) ValueToken(av types.AttributeValue) string {
	if fp, ok := scalarFingerprint(av); ok {
		if tok, seen := p.valueTokens[fp]; seen {
			return tok
		}
		tok := p.issueValue(av)
		p.valueTokens[fp] = tok
		return tok
	}
	return p.issueValue(av)
}

func (p *PlaceholderTable) issueValue(av types.AttributeValue) string {
	tok := ":v" + strconv.Itoa(p.valueSeq)
	p.valueSeq++
	p.values[tok] = av
	return tok
}

func scalarFingerprint(av types.AttributeValue) (string, bool) {
	switch m := av.(type) {
	case *types.AttributeValueMemberS:
		return "S\x00" + m.Value, true
	case *types.AttributeValueMemberN:
		return "N\x00" + m.Value, true
	case *types.AttributeValueMemberB:
		return "B\x00" + string(m.Value), true
	case *types.AttributeValueMemberBOOL:
		return "BOOL\x00" + strconv.FormatBool(m.Value), true
	case *types.AttributeValueMemberNULL:
		return "NULL", true
	}
	return "", false
}

// Names returns the ExpressionAttributeNames map, or nil when empty. The
// returned map is a copy; mutating it does not affect the table.
func (p *PlaceholderTable) Names() map[string]string {
	if len(p.names) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.names))
	for tok, name := range p.names {
		out[tok] = name
	}
	return out
}

// Values returns the ExpressionAttributeValues map, or nil when empty. The
// returned map is a copy; mutating it does not affect the table.
func (p *PlaceholderTable) Values() map[string]types.AttributeValue {
	if len(p.values) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(p.values))
	for tok, av := range p.values {
		out[tok] = av
	}
	return out
}

// Len reports how many name and value tokens have been issued.
func (p *PlaceholderTable) Len() (names, values int) {
	return p.nameSeq, p.valueSeq
}
