/*
Package ddbmock provides a hook-based test double for the dynatable Client
interface. Each method delegates to the corresponding function field when
set and fails the calling test otherwise, so a test only wires the calls it
expects.
*/
package ddbmock

import (
	"context"
	"sync"
	"testing"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client implements dynatable.Client through per-method hooks.
type Client struct {
	T *testing.T

	GetItemFn            func(ctx context.Context, in *ddb.GetItemInput) (*ddb.GetItemOutput, error)
	PutItemFn            func(ctx context.Context, in *ddb.PutItemInput) (*ddb.PutItemOutput, error)
	DeleteItemFn         func(ctx context.Context, in *ddb.DeleteItemInput) (*ddb.DeleteItemOutput, error)
	UpdateItemFn         func(ctx context.Context, in *ddb.UpdateItemInput) (*ddb.UpdateItemOutput, error)
	QueryFn              func(ctx context.Context, in *ddb.QueryInput) (*ddb.QueryOutput, error)
	ScanFn               func(ctx context.Context, in *ddb.ScanInput) (*ddb.ScanOutput, error)
	BatchGetItemFn       func(ctx context.Context, in *ddb.BatchGetItemInput) (*ddb.BatchGetItemOutput, error)
	BatchWriteItemFn     func(ctx context.Context, in *ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error)
	TransactGetItemsFn   func(ctx context.Context, in *ddb.TransactGetItemsInput) (*ddb.TransactGetItemsOutput, error)
	TransactWriteItemsFn func(ctx context.Context, in *ddb.TransactWriteItemsInput) (*ddb.TransactWriteItemsOutput, error)
	CreateTableFn        func(ctx context.Context, in *ddb.CreateTableInput) (*ddb.CreateTableOutput, error)
	DeleteTableFn        func(ctx context.Context, in *ddb.DeleteTableInput) (*ddb.DeleteTableOutput, error)
	DescribeTableFn      func(ctx context.Context, in *ddb.DescribeTableInput) (*ddb.DescribeTableOutput, error)

	mu    sync.Mutex
	calls map[string]int
}

// Calls reports how many times the named method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Client) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[method]++
}

func (c *Client) unexpected(method string) {
	if c.T != nil {
		c.T.Helper()
		c.T.Fatalf("unexpected %s call", method)
	}
	panic("ddbmock: unexpected " + method + " call")
}

func (c *Client) GetItem(ctx context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	c.record("GetItem")
	if c.GetItemFn == nil {
		c.unexpected("GetItem")
	}
	return c.GetItemFn(ctx, in)
}

func (c *Client) PutItem(ctx context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	c.record("PutItem")
	if c.PutItemFn == nil {
		c.unexpected("PutItem")
	}
	return c.PutItemFn(ctx, in)
}

func (c *Client) DeleteItem(ctx context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	c.record("DeleteItem")
	if c.DeleteItemFn == nil {
		c.unexpected("DeleteItem")
	}
	return c.DeleteItemFn(ctx, in)
}

func (c *Client) UpdateItem(ctx context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	c.record("UpdateItem")
	if c.UpdateItemFn == nil {
		c.unexpected("UpdateItem")
	}
	return c.UpdateItemFn(ctx, in)
}

func (c *Client) Query(ctx context.Context, in *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	c.record("Query")
	if c.QueryFn == nil {
		c.unexpected("Query")
	}
	return c.QueryFn(ctx, in)
}

func (c *Client) Scan(ctx context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	c.record("Scan")
	if c.ScanFn == nil {
		c.unexpected("Scan")
	}
	return c.ScanFn(ctx, in)
}

func (c *Client) BatchGetItem(ctx context.Context, in *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	c.record("BatchGetItem")
	if c.BatchGetItemFn == nil {
		c.unexpected("BatchGetItem")
	}
	return c.BatchGetItemFn(ctx, in)
}

func (c *Client) BatchWriteItem(ctx context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	c.record("BatchWriteItem")
	if c.BatchWriteItemFn == nil {
		c.unexpected("BatchWriteItem")
	}
	return c.BatchWriteItemFn(ctx, in)
}

func (c *Client) TransactGetItems(ctx context.Context, in *ddb.TransactGetItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error) {
	c.record("TransactGetItems")
	if c.TransactGetItemsFn == nil {
		c.unexpected("TransactGetItems")
	}
	return c.TransactGetItemsFn(ctx, in)
}

func (c *Client) TransactWriteItems(ctx context.Context, in *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	c.record("TransactWriteItems")
	if c.TransactWriteItemsFn == nil {
		c.unexpected("TransactWriteItems")
	}
	return c.TransactWriteItemsFn(ctx, in)
}

func (c *Client) CreateTable(ctx context.Context, in *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	c.record("CreateTable")
	if c.CreateTableFn == nil {
		c.unexpected("CreateTable")
	}
	return c.CreateTableFn(ctx, in)
}

func (c *Client) DeleteTable(ctx context.Context, in *ddb.DeleteTableInput, _ ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error) {
	c.record("DeleteTable")
	if c.DeleteTableFn == nil {
		c.unexpected("DeleteTable")
	}
	return c.DeleteTableFn(ctx, in)
}

func (c *Client) DescribeTable(ctx context.Context, in *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	c.record("DescribeTable")
	if c.DescribeTableFn == nil {
		c.unexpected("DescribeTable")
	}
	return c.DescribeTableFn(ctx, in)
}

// ─── Canned behaviors ────────────────────────────────────────────────────────

// QueryPages returns a QueryFn that serves the given pages in order,
// emitting LastEvaluatedKey for every page except the final one. The key of
// the first item on the next page stands in for the continuation key.
func QueryPages(pages [][]map[string]types.AttributeValue, keyAttrs ...string) func(ctx context.Context, in *ddb.QueryInput) (*ddb.QueryOutput, error) {
	next := 0
	return func(_ context.Context, in *ddb.QueryInput) (*ddb.QueryOutput, error) {
		// honor restarts: an ExclusiveStartKey positions the server at the
		// page whose first item matches it
		if in.ExclusiveStartKey != nil {
			for i, page := range pages {
				if len(page) > 0 && keyMatches(page[0], in.ExclusiveStartKey, keyAttrs) {
					next = i
					break
				}
			}
		}
		if next >= len(pages) {
			return &ddb.QueryOutput{}, nil
		}
		out := &ddb.QueryOutput{Items: pages[next]}
		next++
		if next < len(pages) && len(pages[next]) > 0 {
			out.LastEvaluatedKey = pickKey(pages[next][0], keyAttrs)
		}
		return out, nil
	}
}

// UnprocessedWrites returns a BatchWriteItemFn that leaves every request
// unprocessed for the first failures calls and then accepts everything.
func UnprocessedWrites(failures int) func(ctx context.Context, in *ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error) {
	var mu sync.Mutex
	calls := 0
	return func(_ context.Context, in *ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= failures {
			return &ddb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
		}
		return &ddb.BatchWriteItemOutput{}, nil
	}
}

func pickKey(item map[string]types.AttributeValue, keyAttrs []string) map[string]types.AttributeValue {
	key := make(map[string]types.AttributeValue, len(keyAttrs))
	for _, name := range keyAttrs {
		if av, ok := item[name]; ok {
			key[name] = av
		}
	}
	return key
}

func keyMatches(item, key map[string]types.AttributeValue, keyAttrs []string) bool {
	for _, name := range keyAttrs {
		a, aok := item[name].(*types.AttributeValueMemberS)
		b, bok := key[name].(*types.AttributeValueMemberS)
		if aok && bok {
			if a.Value != b.Value {
				return false
			}
			continue
		}
		an, anok := item[name].(*types.AttributeValueMemberN)
		bn, bnok := key[name].(*types.AttributeValueMemberN)
		if anok && bnok {
			if an.Value != bn.Value {
				return false
			}
			continue
		}
		return false
	}
	return true
}
