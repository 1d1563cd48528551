package dynatable

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dynatable/dynatable-go/ddbmock"
)

func TestSaveBuildsConditionalPut(t *testing.T) {
	spec := userSpec(t)
	var seen *ddb.PutItemInput
	mock := &ddbmock.Client{
		PutItemFn: func(_ context.Context, in *ddb.PutItemInput) (*ddb.PutItemOutput, error) {
			seen = in
			return &ddb.PutItemOutput{}, nil
		},
	}
	tbl := testTable(t, mock)

	old, err := tbl.Save(context.Background(), spec, Item{"pk": "u", "sk": "a", "name": "ada"},
		&WriteOptions{Condition: NotExists("pk")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if old != nil {
		t.Fatalf("no old state requested, got %#v", old)
	}
	if aws.ToString(seen.TableName) != "users" {
		t.Fatalf("table name: %q", aws.ToString(seen.TableName))
	}
	if aws.ToString(seen.ConditionExpression) != "attribute_not_exists(#n0)" {
		t.Fatalf("condition: %q", aws.ToString(seen.ConditionExpression))
	}
	if seen.ExpressionAttributeNames["#n0"] != "pk" {
		t.Fatalf("names: %v", seen.ExpressionAttributeNames)
	}
}

func TestSaveReturnOld(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{
		PutItemFn: func(_ context.Context, in *ddb.PutItemInput) (*ddb.PutItemOutput, error) {
			if in.ReturnValues != types.ReturnValueAllOld {
				t.Errorf("ReturnValues: %v", in.ReturnValues)
			}
			return &ddb.PutItemOutput{Attributes: wireUser("u", "a")}, nil
		},
	}
	tbl := testTable(t, mock)

	old, err := tbl.Save(context.Background(), spec, Item{"pk": "u", "sk": "a"}, &WriteOptions{ReturnOld: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if old["sk"] != "a" {
		t.Fatalf("old state: %#v", old)
	}
}

func TestLoadMissingItem(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{
		GetItemFn: func(_ context.Context, _ *ddb.GetItemInput) (*ddb.GetItemOutput, error) {
			return &ddb.GetItemOutput{}, nil
		},
	}
	tbl := testTable(t, mock)

	item, err := tbl.Load(context.Background(), spec, Item{"pk": "u", "sk": "nope"}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil for a missing item, got %#v", item)
	}
}

func TestLoadProjectionAndConsistency(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{
		GetItemFn: func(_ context.Context, in *ddb.GetItemInput) (*ddb.GetItemOutput, error) {
			if !aws.ToBool(in.ConsistentRead) {
				t.Error("consistent read not requested")
			}
			if aws.ToString(in.ProjectionExpression) != "#n0, #n1" {
				t.Errorf("projection: %q", aws.ToString(in.ProjectionExpression))
			}
			return &ddb.GetItemOutput{Item: wireUser("u", "a")}, nil
		},
	}
	tbl := testTable(t, mock)

	if _, err := tbl.Load(context.Background(), spec, Item{"pk": "u", "sk": "a"},
		&ReadOptions{Consistent: true, Projection: []string{"name", "age"}}); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestUpdateReturnsNewState(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{
		UpdateItemFn: func(_ context.Context, in *ddb.UpdateItemInput) (*ddb.UpdateItemOutput, error) {
			if in.ReturnValues != types.ReturnValueAllNew {
				t.Errorf("ReturnValues: %v", in.ReturnValues)
			}
			if aws.ToString(in.UpdateExpression) != "SET #n0 = :v0" {
				t.Errorf("update expression: %q", aws.ToString(in.UpdateExpression))
			}
			out := wireUser("u", "a")
			out["name"] = &types.AttributeValueMemberS{Value: "grace"}
			return &ddb.UpdateItemOutput{Attributes: out}, nil
		},
	}
	tbl := testTable(t, mock)

	item, err := tbl.Update(context.Background(), spec, Item{"pk": "u", "sk": "a"},
		[]UpdateAction{Set("name", "grace")}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if item["name"] != "grace" {
		t.Fatalf("new state: %#v", item)
	}
}

func TestDeleteMissingKeyAttribute(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{}
	tbl := testTable(t, mock)

	_, err := tbl.Delete(context.Background(), spec, Item{"pk": "u"}, nil)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if mock.Calls("DeleteItem") != 0 {
		t.Fatal("request was sent despite missing range key")
	}
}

func TestInvokeRetriesThrottling(t *testing.T) {
	spec := userSpec(t)
	failures := 2
	mock := &ddbmock.Client{
		GetItemFn: func(_ context.Context, _ *ddb.GetItemInput) (*ddb.GetItemOutput, error) {
			if failures > 0 {
				failures--
				return nil, &types.ProvisionedThroughputExceededException{}
			}
			return &ddb.GetItemOutput{Item: wireUser("u", "a")}, nil
		},
	}
	tbl := testTable(t, mock)

	item, err := tbl.Load(context.Background(), spec, Item{"pk": "u", "sk": "a"}, nil)
	if err != nil {
		t.Fatalf("load after throttling: %v", err)
	}
	if item == nil {
		t.Fatal("no item returned")
	}
	if calls := mock.Calls("GetItem"); calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestInvokeFatalErrorNotRetried(t *testing.T) {
	spec := userSpec(t)
	mock := &ddbmock.Client{
		GetItemFn: func(_ context.Context, _ *ddb.GetItemInput) (*ddb.GetItemOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}
	tbl := testTable(t, mock)

	_, err := tbl.Load(context.Background(), spec, Item{"pk": "u", "sk": "a"}, nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Retryable {
		t.Fatalf("expected a fatal transport error, got %v", err)
	}
	if calls := mock.Calls("GetItem"); calls != 1 {
		t.Fatalf("fatal error retried: %d calls", calls)
	}
}

func TestExists(t *testing.T) {
	mock := &ddbmock.Client{
		DescribeTableFn: func(_ context.Context, _ *ddb.DescribeTableInput) (*ddb.DescribeTableOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}
	tbl := testTable(t, mock)

	ok, err := tbl.Exists(context.Background())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("missing table reported as present")
	}
}

func TestCreateTableFromModel(t *testing.T) {
	spec := userSpec(t)
	var seen *ddb.CreateTableInput
	mock := &ddbmock.Client{
		CreateTableFn: func(_ context.Context, in *ddb.CreateTableInput) (*ddb.CreateTableOutput, error) {
			seen = in
			return &ddb.CreateTableOutput{}, nil
		},
	}
	tbl := testTable(t, mock)

	if err := tbl.CreateTable(context.Background(), spec, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if seen.BillingMode != types.BillingModePayPerRequest {
		t.Fatalf("billing mode: %v", seen.BillingMode)
	}
	if len(seen.KeySchema) != 2 {
		t.Fatalf("key schema: %#v", seen.KeySchema)
	}
	if len(seen.GlobalSecondaryIndexes) != 1 {
		t.Fatalf("indexes: %#v", seen.GlobalSecondaryIndexes)
	}
	// pk, sk plus the index keys name and age
	if len(seen.AttributeDefinitions) != 4 {
		t.Fatalf("attribute definitions: %#v", seen.AttributeDefinitions)
	}
}

// ─── Observers ───────────────────────────────────────────────────────────────

type recordingObserver struct {
	mu     sync.Mutex
	before []string
	after  []string
	errs   []error
}

func (r *recordingObserver) Before(_ context.Context, ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = append(r.before, ev.Op)
}

func (r *recordingObserver) After(_ context.Context, ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = append(r.after, ev.Op)
	r.errs = append(r.errs, ev.Err)
}

func TestObserverCallbacks(t *testing.T) {
	spec := userSpec(t)
	rec := &recordingObserver{}
	mock := &ddbmock.Client{
		PutItemFn: func(_ context.Context, _ *ddb.PutItemInput) (*ddb.PutItemOutput, error) {
			return &ddb.PutItemOutput{}, nil
		},
		GetItemFn: func(_ context.Context, _ *ddb.GetItemInput) (*ddb.GetItemOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}
	mock.T = t
	tbl, err := NewTable(TableParams{
		Name:      "users",
		Client:    mock,
		Logger:    NopLogger(),
		Observers: []Observer{rec},
	})
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	if _, err := tbl.Save(context.Background(), spec, Item{"pk": "u", "sk": "a"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := tbl.Load(context.Background(), spec, Item{"pk": "u", "sk": "a"}, nil); err == nil {
		t.Fatal("expected load failure")
	}

	if len(rec.before) != 2 || rec.before[0] != "save" || rec.before[1] != "load" {
		t.Fatalf("before callbacks: %v", rec.before)
	}
	if len(rec.after) != 2 {
		t.Fatalf("after callbacks: %v", rec.after)
	}
	if rec.errs[0] != nil {
		t.Fatalf("save reported error: %v", rec.errs[0])
	}
	if rec.errs[1] == nil {
		t.Fatal("load error not delivered to observer")
	}
}
