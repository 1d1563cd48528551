/*
Package dynatable – atomic transactions.

TransactWrite composes up to MaxTransactItems puts, updates, deletes and
condition checks into one all-or-nothing request. Each call carries a fresh
idempotency token so a retried request cannot apply twice. On cancellation
the per-item reasons are decoded index-aligned with the submitted ops.
*/
package dynatable

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// TransactOp is one member of a write transaction. Build with TransactPut,
// TransactUpdate, TransactDelete or TransactCheck.
type TransactOp struct {
	spec    *ModelSpec
	kind    string
	item    Item
	key     Item
	actions []UpdateAction
	cond    *Condition
}

// TransactPut writes item, optionally guarded by a condition.
func TransactPut(spec *ModelSpec, item Item, cond *Condition) TransactOp {
	return TransactOp{spec: spec, kind: "put", item: item, cond: cond}
}

// TransactUpdate applies actions to the item at key.
func TransactUpdate(spec *ModelSpec, key Item, actions []UpdateAction, cond *Condition) TransactOp {
	return TransactOp{spec: spec, kind: "update", key: key, actions: actions, cond: cond}
}

// TransactDelete removes the item at key.
func TransactDelete(spec *ModelSpec, key Item, cond *Condition) TransactOp {
	return TransactOp{spec: spec, kind: "delete", key: key, cond: cond}
}

// TransactCheck asserts a condition on the item at key without writing it.
func TransactCheck(spec *ModelSpec, key Item, cond *Condition) TransactOp {
	return TransactOp{spec: spec, kind: "check", key: key, cond: cond}
}

func (op TransactOp) compile(table string) (types.TransactWriteItem, error) {
	var out types.TransactWriteItem
	pt := NewPlaceholderTable()

	var condExpr *string
	if op.cond != nil {
		expr, err := CompileCondition(op.spec, op.cond, pt)
		if err != nil {
			return out, err
		}
		condExpr = aws.String(expr)
	}

	switch op.kind {
	case "put":
		av, err := Serialize(op.spec, op.item)
		if err != nil {
			return out, err
		}
		out.Put = &types.Put{
			TableName:                 aws.String(table),
			Item:                      av,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  pt.Names(),
			ExpressionAttributeValues: pt.Values(),
		}
	case "update":
		key, err := op.spec.Key(op.key)
		if err != nil {
			return out, err
		}
		updateExpr, err := CompileUpdate(op.spec, op.actions, pt)
		if err != nil {
			return out, err
		}
		out.Update = &types.Update{
			TableName:                 aws.String(table),
			Key:                       key,
			UpdateExpression:          aws.String(updateExpr),
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  pt.Names(),
			ExpressionAttributeValues: pt.Values(),
		}
	case "delete":
		key, err := op.spec.Key(op.key)
		if err != nil {
			return out, err
		}
		out.Delete = &types.Delete{
			TableName:                 aws.String(table),
			Key:                       key,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  pt.Names(),
			ExpressionAttributeValues: pt.Values(),
		}
	case "check":
		if op.cond == nil {
			return out, newValidationError("condition check requires a condition")
		}
		key, err := op.spec.Key(op.key)
		if err != nil {
			return out, err
		}
		out.ConditionCheck = &types.ConditionCheck{
			TableName:                 aws.String(table),
			Key:                       key,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  pt.Names(),
			ExpressionAttributeValues: pt.Values(),
		}
	default:
		return out, newValidationError("unknown transact op %q", op.kind)
	}
	return out, nil
}

// TransactWrite executes ops atomically. Either every op applies or none
// does; on cancellation the returned TransactionCanceledError carries one
// reason per submitted op, in order.
func (t *Table) TransactWrite(ctx context.Context, ops []TransactOp) error {
	done := t.notify(ctx, "transactWrite", "", nil)
	err := t.transactWrite(ctx, ops)
	done(err)
	return err
}

func (t *Table) transactWrite(ctx context.Context, ops []TransactOp) error {
	if len(ops) == 0 {
		return newValidationError("transaction has no ops")
	}
	if len(ops) > MaxTransactItems {
		return newValidationError("transaction has %d ops, limit is %d", len(ops), MaxTransactItems)
	}
	items := make([]types.TransactWriteItem, len(ops))
	for i, op := range ops {
		item, err := op.compile(t.Name)
		if err != nil {
			return err
		}
		items[i] = item
	}
	in := &ddb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(uuid.NewString()),
	}
	err := t.invoke(ctx, "transactWrite", func(ctx context.Context) error {
		_, e := t.client.TransactWriteItems(ctx, in)
		return e
	})
	if err != nil {
		if canceled, ok := decodeCancellation(err, len(ops)); ok {
			return canceled
		}
		return err
	}
	return nil
}

// TransactGet reads up to MaxTransactItems items in one consistent
// snapshot. The result is index-aligned with keys; missing items are nil.
func (t *Table) TransactGet(ctx context.Context, spec *ModelSpec, keys []Item) ([]Item, error) {
	done := t.notify(ctx, "transactGet", spec.Name(), nil)
	items, err := t.transactGet(ctx, spec, keys)
	done(err)
	return items, err
}

func (t *Table) transactGet(ctx context.Context, spec *ModelSpec, keys []Item) ([]Item, error) {
	if len(keys) == 0 {
		return nil, newValidationError("transaction has no keys")
	}
	if len(keys) > MaxTransactItems {
		return nil, newValidationError("transaction has %d keys, limit is %d", len(keys), MaxTransactItems)
	}
	gets := make([]types.TransactGetItem, len(keys))
	for i, k := range keys {
		key, err := spec.Key(k)
		if err != nil {
			return nil, err
		}
		gets[i] = types.TransactGetItem{
			Get: &types.Get{TableName: aws.String(t.Name), Key: key},
		}
	}
	var out *ddb.TransactGetItemsOutput
	err := t.invoke(ctx, "transactGet", func(ctx context.Context) error {
		var e error
		out, e = t.client.TransactGetItems(ctx, &ddb.TransactGetItemsInput{TransactItems: gets})
		return e
	})
	if err != nil {
		if canceled, ok := decodeCancellation(err, len(keys)); ok {
			return nil, canceled
		}
		return nil, err
	}
	items := make([]Item, len(keys))
	for i, resp := range out.Responses {
		if len(resp.Item) == 0 {
			continue
		}
		item, err := Deserialize(spec, resp.Item)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}
