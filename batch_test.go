package dynatable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dynatable/dynatable-go/ddbmock"
)

func manyUsers(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{"pk": "u", "sk": fmt.Sprintf("item#%03d", i)}
	}
	return items
}

func TestBatchWriteChunking(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	mock := &ddbmock.Client{
		BatchWriteItemFn: func(_ context.Context, in *ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error) {
			mu.Lock()
			sizes = append(sizes, len(in.RequestItems["users"]))
			mu.Unlock()
			return &ddb.BatchWriteItemOutput{}, nil
		},
	}
	tbl := testTable(t, mock)

	if err := tbl.BatchWrite(context.Background(), userSpec(t), manyUsers(60), nil); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if len(sizes) != 3 {
		t.Fatalf("expected 3 chunks for 60 items, got %d", len(sizes))
	}
	total := 0
	for _, n := range sizes {
		if n > MaxBatchWriteItems {
			t.Fatalf("chunk exceeds write limit: %d", n)
		}
		total += n
	}
	if total != 60 {
		t.Fatalf("items lost in chunking: %d", total)
	}
}

func TestBatchWritePutDeleteSameKey(t *testing.T) {
	mock := &ddbmock.Client{}
	tbl := testTable(t, mock)
	item := Item{"pk": "u", "sk": "x"}

	err := tbl.BatchWrite(context.Background(), userSpec(t), []Item{item}, []Item{item})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if mock.Calls("BatchWriteItem") != 0 {
		t.Fatal("request was sent despite key conflict")
	}
}

func TestBatchWriteRetriesUnprocessed(t *testing.T) {
	mock := &ddbmock.Client{BatchWriteItemFn: ddbmock.UnprocessedWrites(1)}
	tbl := testTable(t, mock)

	if err := tbl.BatchWrite(context.Background(), userSpec(t), manyUsers(10), nil); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if calls := mock.Calls("BatchWriteItem"); calls != 2 {
		t.Fatalf("expected one resubmission, got %d calls", calls)
	}
}

func TestBatchWriteExhaustionReportsRemainder(t *testing.T) {
	mock := &ddbmock.Client{BatchWriteItemFn: ddbmock.UnprocessedWrites(1000)}
	tbl := testTable(t, mock)

	err := tbl.BatchWrite(context.Background(), userSpec(t), manyUsers(30), nil)
	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if len(partial.UnprocessedPuts) != 30 {
		t.Fatalf("remainder size: %d, want 30", len(partial.UnprocessedPuts))
	}
	if partial.UnprocessedPuts[0]["pk"] != "u" {
		t.Fatalf("remainder not deserialized: %#v", partial.UnprocessedPuts[0])
	}
}

func TestBatchGetChunkingAndMerge(t *testing.T) {
	mock := &ddbmock.Client{
		BatchGetItemFn: func(_ context.Context, in *ddb.BatchGetItemInput) (*ddb.BatchGetItemOutput, error) {
			keys := in.RequestItems["users"].Keys
			if len(keys) > MaxBatchGetKeys {
				t.Errorf("chunk exceeds get limit: %d", len(keys))
			}
			return &ddb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{"users": keys},
			}, nil
		},
	}
	tbl := testTable(t, mock)

	items, err := tbl.BatchGet(context.Background(), userSpec(t), manyUsers(150), nil)
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if len(items) != 150 {
		t.Fatalf("merged result: %d items, want 150", len(items))
	}
	if calls := mock.Calls("BatchGetItem"); calls != 2 {
		t.Fatalf("expected 2 chunks for 150 keys, got %d", calls)
	}
}

func TestBatchGetDuplicateKey(t *testing.T) {
	mock := &ddbmock.Client{}
	tbl := testTable(t, mock)
	item := Item{"pk": "u", "sk": "x"}
	_, err := tbl.BatchGet(context.Background(), userSpec(t), []Item{item, item}, nil)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBatchGetUnprocessedReportsRemainder(t *testing.T) {
	mock := &ddbmock.Client{
		BatchGetItemFn: func(_ context.Context, in *ddb.BatchGetItemInput) (*ddb.BatchGetItemOutput, error) {
			keys := in.RequestItems["users"].Keys
			// serve all but the last key, leave it unprocessed forever
			return &ddb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{"users": keys[:len(keys)-1]},
				UnprocessedKeys: map[string]types.KeysAndAttributes{
					"users": {Keys: keys[len(keys)-1:]},
				},
			}, nil
		},
	}
	tbl := testTable(t, mock)

	items, err := tbl.BatchGet(context.Background(), userSpec(t), manyUsers(5), nil)
	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if len(partial.UnprocessedKeys) != 1 {
		t.Fatalf("unprocessed keys: %d", len(partial.UnprocessedKeys))
	}
	if len(items) == 0 {
		t.Fatal("partial results were dropped")
	}
}

func TestBatchRetryBackoffGrows(t *testing.T) {
	mock := &ddbmock.Client{BatchWriteItemFn: ddbmock.UnprocessedWrites(1000)}
	mock.T = t
	tbl, err := NewTable(TableParams{
		Name:   "users",
		Client: mock,
		Logger: NopLogger(),
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   30 * time.Millisecond,
			MaxDelay:    time.Second,
			Multiplier:  2,
			Jitter:      0,
		},
	})
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	start := time.Now()
	werr := tbl.BatchWrite(context.Background(), userSpec(t), manyUsers(1), nil)
	elapsed := time.Since(start)

	var partial *PartialFailureError
	if !errors.As(werr, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", werr)
	}
	// resubmission waits are 30ms then 60ms; equal waits would total 60ms
	if elapsed < 85*time.Millisecond {
		t.Fatalf("backoff did not grow between retries: %v elapsed", elapsed)
	}
}

func TestBatchWriteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &ddbmock.Client{
		BatchWriteItemFn: func(_ context.Context, in *ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error) {
			cancel()
			return &ddb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
		},
	}
	tbl := testTable(t, mock)

	err := tbl.BatchWrite(ctx, userSpec(t), manyUsers(5), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
