/*
Package dynatable – batch orchestration.

Batch reads and writes are chunked to the service limits, dispatched
concurrently, and unprocessed remainders are resubmitted with backoff.
Remainders that survive every attempt are reported through
PartialFailureError so callers can resume with exactly the leftover items.
*/
package dynatable

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// BatchOptions tune batch reads and writes.
type BatchOptions struct {
	// Consistent selects strongly consistent reads (BatchGet only).
	Consistent bool

	// Projection limits returned attributes (BatchGet only).
	Projection []string
}

// ─── BatchGet ────────────────────────────────────────────────────────────────

// BatchGet loads many items by key. Results carry no ordering guarantee and
// missing keys are silently absent. When unprocessed keys survive all retry
// attempts the partial results are returned together with a
// PartialFailureError listing the leftover keys.
func (t *Table) BatchGet(ctx context.Context, spec *ModelSpec, keys []Item, opts *BatchOptions) ([]Item, error) {
	done := t.notify(ctx, "batchGet", spec.Name(), nil)
	items, err := t.batchGet(ctx, spec, keys, opts)
	done(err)
	return items, err
}

func (t *Table) batchGet(ctx context.Context, spec *ModelSpec, keys []Item, opts *BatchOptions) ([]Item, error) {
	if opts == nil {
		opts = &BatchOptions{}
	}
	wireKeys := make([]map[string]types.AttributeValue, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		wk, err := spec.Key(k)
		if err != nil {
			return nil, err
		}
		fp := keyFingerprint(wk)
		if _, dup := seen[fp]; dup {
			return nil, newValidationError("duplicate key in batch get")
		}
		seen[fp] = struct{}{}
		wireKeys[i] = wk
	}

	var projection *string
	var names map[string]string
	if len(opts.Projection) > 0 {
		pt := NewPlaceholderTable()
		projection = aws.String(projectionExpr(pt, opts.Projection))
		names = pt.Names()
	}

	var (
		mu       sync.Mutex
		items    []Item
		leftover []Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for start := 0; start < len(wireKeys); start += MaxBatchGetKeys {
		end := min(start+MaxBatchGetKeys, len(wireKeys))
		chunk := wireKeys[start:end]
		g.Go(func() error {
			got, rest, err := t.getChunk(gctx, chunk, opts.Consistent, projection, names)
			if err != nil {
				return err
			}
			decoded, err := deserializeAll(spec, got)
			if err != nil {
				return err
			}
			restDecoded, err := deserializeAll(spec, rest)
			if err != nil {
				return err
			}
			mu.Lock()
			items = append(items, decoded...)
			leftover = append(leftover, restDecoded...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(leftover) > 0 {
		return items, &PartialFailureError{Op: "batchGet", UnprocessedKeys: leftover}
	}
	return items, nil
}

// getChunk issues one BatchGetItem and resubmits unprocessed keys until the
// retry budget runs out; whatever remains is returned as rest.
func (t *Table) getChunk(ctx context.Context, keys []map[string]types.AttributeValue, consistent bool, projection *string, names map[string]string) (got, rest []map[string]types.AttributeValue, err error) {
	pending := keys
	for attempt := 1; len(pending) > 0; attempt++ {
		in := &ddb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				t.Name: {
					Keys:                     pending,
					ConsistentRead:           aws.Bool(consistent),
					ProjectionExpression:     projection,
					ExpressionAttributeNames: names,
				},
			},
		}
		var out *ddb.BatchGetItemOutput
		callErr := t.invoke(ctx, "batchGet", func(ctx context.Context) error {
			var e error
			out, e = t.client.BatchGetItem(ctx, in)
			return e
		})
		if callErr != nil {
			return nil, nil, callErr
		}
		got = append(got, out.Responses[t.Name]...)
		pending = out.UnprocessedKeys[t.Name].Keys
		if len(pending) == 0 {
			break
		}
		if attempt >= t.retry.MaxAttempts {
			return got, pending, nil
		}
		if err := t.retry.wait(ctx, attempt); err != nil {
			return nil, nil, err
		}
	}
	return got, nil, nil
}

// ─── BatchWrite ──────────────────────────────────────────────────────────────

// BatchWrite puts and deletes many items. A put and a delete addressing the
// same key in one call is rejected before any request is sent. Items that
// remain unprocessed after all retry attempts are reported through
// PartialFailureError.
func (t *Table) BatchWrite(ctx context.Context, spec *ModelSpec, puts, deletes []Item) error {
	done := t.notify(ctx, "batchWrite", spec.Name(), nil)
	err := t.batchWrite(ctx, spec, puts, deletes)
	done(err)
	return err
}

func (t *Table) batchWrite(ctx context.Context, spec *ModelSpec, puts, deletes []Item) error {
	requests := make([]types.WriteRequest, 0, len(puts)+len(deletes))
	putKeys := make(map[string]struct{}, len(puts))
	for _, item := range puts {
		av, err := Serialize(spec, item)
		if err != nil {
			return err
		}
		key, err := spec.Key(item)
		if err != nil {
			return err
		}
		fp := keyFingerprint(key)
		if _, dup := putKeys[fp]; dup {
			return newValidationError("duplicate put key in batch write")
		}
		putKeys[fp] = struct{}{}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}
	deleteKeys := make(map[string]struct{}, len(deletes))
	for _, item := range deletes {
		key, err := spec.Key(item)
		if err != nil {
			return err
		}
		fp := keyFingerprint(key)
		if _, dup := deleteKeys[fp]; dup {
			return newValidationError("duplicate delete key in batch write")
		}
		if _, clash := putKeys[fp]; clash {
			return newValidationError("batch write puts and deletes the same key")
		}
		deleteKeys[fp] = struct{}{}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	var (
		mu       sync.Mutex
		leftover []types.WriteRequest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for start := 0; start < len(requests); start += MaxBatchWriteItems {
		end := min(start+MaxBatchWriteItems, len(requests))
		chunk := requests[start:end]
		g.Go(func() error {
			rest, err := t.writeChunk(gctx, chunk)
			if err != nil {
				return err
			}
			if len(rest) > 0 {
				mu.Lock()
				leftover = append(leftover, rest...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(leftover) == 0 {
		return nil
	}
	perr := &PartialFailureError{Op: "batchWrite"}
	for _, wr := range leftover {
		switch {
		case wr.PutRequest != nil:
			item, err := Deserialize(spec, wr.PutRequest.Item)
			if err != nil {
				return err
			}
			perr.UnprocessedPuts = append(perr.UnprocessedPuts, item)
		case wr.DeleteRequest != nil:
			item, err := Deserialize(spec, wr.DeleteRequest.Key)
			if err != nil {
				return err
			}
			perr.UnprocessedDeletes = append(perr.UnprocessedDeletes, item)
		}
	}
	return perr
}

// writeChunk issues one BatchWriteItem and resubmits unprocessed requests
// until the retry budget runs out.
func (t *Table) writeChunk(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	pending := requests
	for attempt := 1; len(pending) > 0; attempt++ {
		in := &ddb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{t.Name: pending},
		}
		var out *ddb.BatchWriteItemOutput
		callErr := t.invoke(ctx, "batchWrite", func(ctx context.Context) error {
			var e error
			out, e = t.client.BatchWriteItem(ctx, in)
			return e
		})
		if callErr != nil {
			return nil, callErr
		}
		pending = out.UnprocessedItems[t.Name]
		if len(pending) == 0 {
			break
		}
		t.log.Trace("batch write resubmitting unprocessed items", map[string]any{
			"count":   len(pending),
			"attempt": attempt,
		})
		if attempt >= t.retry.MaxAttempts {
			return pending, nil
		}
		if err := t.retry.wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
