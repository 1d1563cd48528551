/*
Package dynatable – Table type and single-item operations.
*/
package dynatable

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the interface satisfied by both the real DynamoDB client and
// test doubles. Requests are already built; credential and signing
// concerns live entirely behind this boundary.
type Client interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	Scan(ctx context.Context, params *ddb.ScanInput, optFns ...func(*ddb.Options)) (*ddb.ScanOutput, error)

	BatchGetItem(ctx context.Context, params *ddb.BatchGetItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)

	TransactGetItems(ctx context.Context, params *ddb.TransactGetItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error)
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)

	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *ddb.DeleteTableInput, optFns ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
}

// TableParams configures a Table.
type TableParams struct {
	Name   string
	Client Client

	// Logger defaults to a zerolog-backed logger at info level.
	Logger Logger

	// Observers are invoked synchronously around each operation.
	Observers []Observer

	// Retry governs backoff for batch remainders and retryable transport
	// failures. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// Concurrency bounds parallel chunk submissions in batch operations.
	// Zero means 4.
	Concurrency int
}

// Table binds a model-agnostic operation surface to one DynamoDB table.
type Table struct {
	Name string

	client      Client
	log         Logger
	retry       RetryPolicy
	observers   []Observer
	concurrency int
}

// NewTable creates a Table.
func NewTable(params TableParams) (*Table, error) {
	if params.Name == "" {
		return nil, NewError("missing table name", WithCode(ErrArgument))
	}
	if params.Client == nil {
		return nil, NewError("missing client", WithCode(ErrArgument))
	}
	t := &Table{
		Name:        params.Name,
		client:      params.Client,
		log:         params.Logger,
		retry:       params.Retry.orDefault(),
		observers:   params.Observers,
		concurrency: params.Concurrency,
	}
	if t.log == nil {
		t.log = defaultLogger()
	}
	if t.concurrency <= 0 {
		t.concurrency = 4
	}
	return t, nil
}

// invoke runs one client call with the table's retry policy. Retryable
// transport failures are retried up to the attempt ceiling and then
// surfaced as-is; fatal failures and context cancellation surface
// immediately.
func (t *Table) invoke(ctx context.Context, op string, call func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call(ctx)
		if err == nil {
			return nil
		}
		werr := wrapTransport(op, err)
		if !IsRetryable(werr) || attempt >= t.retry.MaxAttempts {
			return werr
		}
		t.log.Trace("retrying after transport failure", map[string]any{
			"op": op, "attempt": attempt, "error": err.Error(),
		})
		if werr := t.retry.wait(ctx, attempt); werr != nil {
			return werr
		}
	}
}

// ─── Options ─────────────────────────────────────────────────────────────────

// WriteOptions modify single-item write operations.
type WriteOptions struct {
	// Condition must hold for the write to apply.
	Condition *Condition

	// ReturnOld requests the previous item state.
	ReturnOld bool
}

// ReadOptions modify single-item reads.
type ReadOptions struct {
	// Consistent selects strongly consistent reads.
	Consistent bool

	// Projection limits the returned attributes.
	Projection []string
}

// ─── Single-item operations ──────────────────────────────────────────────────

// Save writes a full item. When opts.ReturnOld is set the previous item
// state is returned; otherwise the returned Item is nil.
func (t *Table) Save(ctx context.Context, spec *ModelSpec, item Item, opts *WriteOptions) (Item, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	done := t.notify(ctx, "save", spec.Name(), item)

	av, err := Serialize(spec, item)
	if err != nil {
		done(err)
		return nil, err
	}
	input := &ddb.PutItemInput{
		TableName: aws.String(t.Name),
		Item:      av,
	}
	if opts.ReturnOld {
		input.ReturnValues = types.ReturnValueAllOld
	}
	if opts.Condition != nil {
		pt := NewPlaceholderTable()
		expr, err := CompileCondition(spec, opts.Condition, pt)
		if err != nil {
			done(err)
			return nil, err
		}
		input.ConditionExpression = aws.String(expr)
		input.ExpressionAttributeNames = pt.Names()
		input.ExpressionAttributeValues = pt.Values()
	}

	var out *ddb.PutItemOutput
	err = t.invoke(ctx, "save", func(ctx context.Context) error {
		var callErr error
		out, callErr = t.client.PutItem(ctx, input)
		return callErr
	})
	done(err)
	if err != nil {
		return nil, err
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return Deserialize(spec, out.Attributes)
}

// Load reads a single item by key. A missing item returns (nil, nil).
func (t *Table) Load(ctx context.Context, spec *ModelSpec, key Item, opts *ReadOptions) (Item, error) {
	if opts == nil {
		opts = &ReadOptions{}
	}
	done := t.notify(ctx, "load", spec.Name(), key)

	avKey, err := spec.Key(key)
	if err != nil {
		done(err)
		return nil, err
	}
	input := &ddb.GetItemInput{
		TableName:      aws.String(t.Name),
		Key:            avKey,
		ConsistentRead: aws.Bool(opts.Consistent),
	}
	if len(opts.Projection) > 0 {
		pt := NewPlaceholderTable()
		input.ProjectionExpression = aws.String(projectionExpr(pt, opts.Projection))
		input.ExpressionAttributeNames = pt.Names()
	}

	var out *ddb.GetItemOutput
	err = t.invoke(ctx, "load", func(ctx context.Context) error {
		var callErr error
		out, callErr = t.client.GetItem(ctx, input)
		return callErr
	})
	done(err)
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return Deserialize(spec, out.Item)
}

// Delete removes an item by key. When opts.ReturnOld is set the removed
// item is returned.
func (t *Table) Delete(ctx context.Context, spec *ModelSpec, key Item, opts *WriteOptions) (Item, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	done := t.notify(ctx, "delete", spec.Name(), key)

	avKey, err := spec.Key(key)
	if err != nil {
		done(err)
		return nil, err
	}
	input := &ddb.DeleteItemInput{
		TableName: aws.String(t.Name),
		Key:       avKey,
	}
	if opts.ReturnOld {
		input.ReturnValues = types.ReturnValueAllOld
	}
	if opts.Condition != nil {
		pt := NewPlaceholderTable()
		expr, err := CompileCondition(spec, opts.Condition, pt)
		if err != nil {
			done(err)
			return nil, err
		}
		input.ConditionExpression = aws.String(expr)
		input.ExpressionAttributeNames = pt.Names()
		input.ExpressionAttributeValues = pt.Values()
	}

	var out *ddb.DeleteItemOutput
	err = t.invoke(ctx, "delete", func(ctx context.Context) error {
		var callErr error
		out, callErr = t.client.DeleteItem(ctx, input)
		return callErr
	})
	done(err)
	if err != nil {
		return nil, err
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return Deserialize(spec, out.Attributes)
}

// Update applies update actions to the item identified by key and returns
// the new item state.
func (t *Table) Update(ctx context.Context, spec *ModelSpec, key Item, actions []UpdateAction, opts *WriteOptions) (Item, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	done := t.notify(ctx, "update", spec.Name(), key)

	avKey, err := spec.Key(key)
	if err != nil {
		done(err)
		return nil, err
	}
	pt := NewPlaceholderTable()
	updateExpr, err := CompileUpdate(spec, actions, pt)
	if err != nil {
		done(err)
		return nil, err
	}
	input := &ddb.UpdateItemInput{
		TableName:        aws.String(t.Name),
		Key:              avKey,
		UpdateExpression: aws.String(updateExpr),
		ReturnValues:     types.ReturnValueAllNew,
	}
	if opts.Condition != nil {
		condExpr, err := CompileCondition(spec, opts.Condition, pt)
		if err != nil {
			done(err)
			return nil, err
		}
		input.ConditionExpression = aws.String(condExpr)
	}
	input.ExpressionAttributeNames = pt.Names()
	input.ExpressionAttributeValues = pt.Values()

	var out *ddb.UpdateItemOutput
	err = t.invoke(ctx, "update", func(ctx context.Context) error {
		var callErr error
		out, callErr = t.client.UpdateItem(ctx, input)
		return callErr
	})
	done(err)
	if err != nil {
		return nil, err
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return Deserialize(spec, out.Attributes)
}

func projectionExpr(pt *PlaceholderTable, fields []string) string {
	expr := ""
	for i, f := range fields {
		if i > 0 {
			expr += ", "
		}
		expr += pt.PathTokens(f)
	}
	return expr
}

// ─── DDL ─────────────────────────────────────────────────────────────────────

// CreateTable creates the DynamoDB table described by the model spec,
// including its secondary indexes and throughput metadata.
func (t *Table) CreateTable(ctx context.Context, spec *ModelSpec, throughput *Throughput) error {
	attrs := map[string]types.ScalarAttributeType{}
	addKeyAttr := func(a *AttributeSpec) {
		if a == nil {
			return
		}
		attrs[a.Name] = scalarType(a.Type)
	}
	addKeyAttr(spec.HashKey())
	addKeyAttr(spec.RangeKey())

	input := &ddb.CreateTableInput{
		TableName:   aws.String(t.Name),
		KeySchema:   keySchema(spec.HashKey().Name, rangeKeyName(spec.RangeKey())),
		BillingMode: types.BillingModePayPerRequest,
	}
	if throughput != nil && (throughput.ReadUnits > 0 || throughput.WriteUnits > 0) {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(throughput.ReadUnits),
			WriteCapacityUnits: aws.Int64(throughput.WriteUnits),
		}
	}

	for _, idx := range spec.Indexes() {
		hash, rng, err := spec.keyAttrs(idx.Name)
		if err != nil {
			return err
		}
		addKeyAttr(hash)
		addKeyAttr(rng)

		proj := &types.Projection{ProjectionType: types.ProjectionTypeAll}
		switch idx.Projection.Kind {
		case "KEYS_ONLY":
			proj.ProjectionType = types.ProjectionTypeKeysOnly
		case "INCLUDE":
			proj.ProjectionType = types.ProjectionTypeInclude
			proj.NonKeyAttributes = idx.Projection.Include
		}

		if idx.Local {
			input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  keySchema(hash.Name, rangeKeyName(rng)),
				Projection: proj,
			})
			continue
		}
		gsi := types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchema(hash.Name, rangeKeyName(rng)),
			Projection: proj,
		}
		if idx.Throughput != nil {
			gsi.ProvisionedThroughput = &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(idx.Throughput.ReadUnits),
				WriteCapacityUnits: aws.Int64(idx.Throughput.WriteUnits),
			}
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, gsi)
	}

	for name, st := range attrs {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: st,
		})
	}

	return t.invoke(ctx, "createTable", func(ctx context.Context) error {
		_, err := t.client.CreateTable(ctx, input)
		return err
	})
}

// DeleteTable permanently deletes the DynamoDB table.
func (t *Table) DeleteTable(ctx context.Context) error {
	return t.invoke(ctx, "deleteTable", func(ctx context.Context) error {
		_, err := t.client.DeleteTable(ctx, &ddb.DeleteTableInput{TableName: aws.String(t.Name)})
		return err
	})
}

// EnsureTable creates the table when it does not exist yet. Safe to call
// on every startup.
func (t *Table) EnsureTable(ctx context.Context, spec *ModelSpec, throughput *Throughput) error {
	ok, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return t.CreateTable(ctx, spec, throughput)
}

// Exists reports whether the DynamoDB table is present.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	_, err := t.client.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: aws.String(t.Name)})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, wrapTransport("describeTable", err)
	}
	return true, nil
}

func keySchema(hash, rng string) []types.KeySchemaElement {
	schema := []types.KeySchemaElement{{
		AttributeName: aws.String(hash),
		KeyType:       types.KeyTypeHash,
	}}
	if rng != "" {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(rng),
			KeyType:       types.KeyTypeRange,
		})
	}
	return schema
}

func rangeKeyName(a *AttributeSpec) string {
	if a == nil {
		return ""
	}
	return a.Name
}

func scalarType(t AttributeType) types.ScalarAttributeType {
	switch t {
	case TypeNumber:
		return types.ScalarAttributeTypeN
	case TypeBinary:
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeS
	}
}
