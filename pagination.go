/*
Package dynatable – query/scan pagination.

PageIterator is a lazy, forward-only sequence of deserialized items over a
paged query or scan. Exhaustion is determined solely by the absence of a
continuation key or by the caller's item limit; the service returning a
short or empty page (1 MB response ceiling) is not exhaustion. An iterator
can be rebuilt from an observed cursor to resume at that page boundary.
*/
package dynatable

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// QueryParams describe one query; every page reuses them unmodified except
// for the continuation key.
type QueryParams struct {
	// HashValue is the mandatory hash-key equality value.
	HashValue any

	// Range optionally narrows the range key. Only key-condition operators
	// are allowed.
	Range *Condition

	// Filter is applied server-side after key selection.
	Filter *Condition

	// Index selects a secondary index; empty means the primary key.
	Index string

	// Projection limits the returned attributes.
	Projection []string

	// Consistent selects strongly consistent reads (primary index only).
	Consistent bool

	// Descending reverses the range-key order.
	Descending bool

	// Limit caps the total items yielded by the iterator. 0 means all.
	Limit int

	// PageSize caps items requested per page. 0 uses the service default.
	PageSize int32

	// StartCursor resumes iteration from a previously observed cursor.
	StartCursor string
}

// ScanParams describe one scan.
type ScanParams struct {
	Filter      *Condition
	Index       string
	Projection  []string
	Consistent  bool
	Limit       int
	PageSize    int32
	StartCursor string

	// Segment / TotalSegments enable parallel scans when TotalSegments > 0.
	Segment       int32
	TotalSegments int32
}

type pageFetch func(ctx context.Context, start map[string]types.AttributeValue) (
	items []map[string]types.AttributeValue, last map[string]types.AttributeValue, err error)

// PageIterator lazily yields items across pages.
//
//	it := table.Query(spec, params)
//	for it.Next(ctx) {
//	    item := it.Item()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	spec  *ModelSpec
	fetch pageFetch

	startKey  map[string]types.AttributeValue
	buf       []Item
	pos       int
	current   Item
	err       error
	exhausted bool

	limit   int
	yielded int
}

func newPageIterator(spec *ModelSpec, fetch pageFetch, startCursor string, limit int, buildErr error) *PageIterator {
	it := &PageIterator{spec: spec, fetch: fetch, limit: limit, err: buildErr}
	if buildErr == nil && startCursor != "" {
		it.startKey, it.err = decodeCursor(startCursor)
	}
	return it
}

// Next advances to the next item, fetching pages as needed. It returns
// false at the end of results, on error, or once the caller limit has been
// reached; Err distinguishes the cases.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.limit > 0 && it.yielded >= it.limit {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.exhausted {
			return false
		}
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		raw, last, err := it.fetch(ctx, it.startKey)
		if err != nil {
			it.err = err
			return false
		}
		items, err := deserializeAll(it.spec, raw)
		if err != nil {
			it.err = err
			return false
		}
		it.buf = items
		it.pos = 0
		it.startKey = last
		if last == nil {
			it.exhausted = true
		}
	}
	it.current = it.buf[it.pos]
	it.pos++
	it.yielded++
	return true
}

// Item returns the item produced by the last successful Next.
func (it *PageIterator) Item() Item { return it.current }

// Err returns the error that terminated iteration, if any.
func (it *PageIterator) Err() error { return it.err }

// Cursor returns an opaque token resuming at the next unread page
// boundary, or "" when no further pages exist.
func (it *PageIterator) Cursor() (string, error) {
	return encodeCursor(it.startKey)
}

// All drains the iterator into a slice.
func (it *PageIterator) All(ctx context.Context) ([]Item, error) {
	var items []Item
	for it.Next(ctx) {
		items = append(items, it.Item())
	}
	return items, it.Err()
}

// ─── Query / Scan ────────────────────────────────────────────────────────────

// Query returns a PageIterator over items matching the key condition.
// Compilation errors surface on the first Next call.
func (t *Table) Query(spec *ModelSpec, p QueryParams) *PageIterator {
	input := &ddb.QueryInput{
		TableName:      aws.String(t.Name),
		ConsistentRead: aws.Bool(p.Consistent),
	}
	if p.Index != "" {
		input.IndexName = aws.String(p.Index)
	}
	if p.PageSize > 0 {
		input.Limit = aws.Int32(p.PageSize)
	}
	if p.Descending {
		input.ScanIndexForward = aws.Bool(false)
	}

	pt := NewPlaceholderTable()
	buildErr := func() error {
		keyExpr, err := CompileKeyCondition(spec, p.Index, p.HashValue, p.Range, pt)
		if err != nil {
			return err
		}
		input.KeyConditionExpression = aws.String(keyExpr)
		if p.Filter != nil {
			filterExpr, err := CompileCondition(spec, p.Filter, pt)
			if err != nil {
				return err
			}
			input.FilterExpression = aws.String(filterExpr)
		}
		if len(p.Projection) > 0 {
			input.ProjectionExpression = aws.String(projectionExpr(pt, p.Projection))
		}
		input.ExpressionAttributeNames = pt.Names()
		input.ExpressionAttributeValues = pt.Values()
		return nil
	}()

	fetch := func(ctx context.Context, start map[string]types.AttributeValue) (
		[]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
		in := *input
		in.ExclusiveStartKey = start
		done := t.notify(ctx, "query", spec.Name(), nil)
		var out *ddb.QueryOutput
		err := t.invoke(ctx, "query", func(ctx context.Context) error {
			var callErr error
			out, callErr = t.client.Query(ctx, &in)
			return callErr
		})
		done(err)
		if err != nil {
			return nil, nil, err
		}
		return out.Items, out.LastEvaluatedKey, nil
	}
	return newPageIterator(spec, fetch, p.StartCursor, p.Limit, buildErr)
}

// Scan returns a PageIterator over all items, optionally filtered.
func (t *Table) Scan(spec *ModelSpec, p ScanParams) *PageIterator {
	input := &ddb.ScanInput{
		TableName:      aws.String(t.Name),
		ConsistentRead: aws.Bool(p.Consistent),
	}
	if p.Index != "" {
		input.IndexName = aws.String(p.Index)
	}
	if p.PageSize > 0 {
		input.Limit = aws.Int32(p.PageSize)
	}
	if p.TotalSegments > 0 {
		input.Segment = aws.Int32(p.Segment)
		input.TotalSegments = aws.Int32(p.TotalSegments)
	}

	pt := NewPlaceholderTable()
	buildErr := func() error {
		if p.Filter != nil {
			filterExpr, err := CompileCondition(spec, p.Filter, pt)
			if err != nil {
				return err
			}
			input.FilterExpression = aws.String(filterExpr)
		}
		if len(p.Projection) > 0 {
			input.ProjectionExpression = aws.String(projectionExpr(pt, p.Projection))
		}
		input.ExpressionAttributeNames = pt.Names()
		input.ExpressionAttributeValues = pt.Values()
		return nil
	}()

	fetch := func(ctx context.Context, start map[string]types.AttributeValue) (
		[]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
		in := *input
		in.ExclusiveStartKey = start
		done := t.notify(ctx, "scan", spec.Name(), nil)
		var out *ddb.ScanOutput
		err := t.invoke(ctx, "scan", func(ctx context.Context) error {
			var callErr error
			out, callErr = t.client.Scan(ctx, &in)
			return callErr
		})
		done(err)
		if err != nil {
			return nil, nil, err
		}
		return out.Items, out.LastEvaluatedKey, nil
	}
	return newPageIterator(spec, fetch, p.StartCursor, p.Limit, buildErr)
}

// ─── Cursor codec ────────────────────────────────────────────────────────────

// Continuation keys hold only scalar key attributes, so the cursor encodes
// the standard DynamoDB JSON shape ({"S": ...}, {"N": ...}, {"B": base64})
// wrapped in URL-safe base64. Number keys keep their exact decimal string.
type cursorValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
	B []byte  `json:"B,omitempty"`
}

// encodeCursor renders a continuation key as an opaque string; nil keys
// yield "".
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	flat := make(map[string]cursorValue, len(key))
	for name, av := range key {
		switch m := av.(type) {
		case *types.AttributeValueMemberS:
			flat[name] = cursorValue{S: aws.String(m.Value)}
		case *types.AttributeValueMemberN:
			flat[name] = cursorValue{N: aws.String(m.Value)}
		case *types.AttributeValueMemberB:
			flat[name] = cursorValue{B: m.Value}
		default:
			return "", newSerializationError("cursor key %q has non-scalar type", name)
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", newSerializationError("cannot encode cursor: %s", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor restores a continuation key from an opaque cursor string.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, newValidationError("malformed cursor: %s", err)
	}
	var flat map[string]cursorValue
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, newValidationError("malformed cursor: %s", err)
	}
	key := make(map[string]types.AttributeValue, len(flat))
	for name, v := range flat {
		switch {
		case v.S != nil:
			key[name] = &types.AttributeValueMemberS{Value: *v.S}
		case v.N != nil:
			key[name] = &types.AttributeValueMemberN{Value: *v.N}
		case v.B != nil:
			key[name] = &types.AttributeValueMemberB{Value: v.B}
		default:
			return nil, newValidationError("malformed cursor: empty value for %q", name)
		}
	}
	return key, nil
}
