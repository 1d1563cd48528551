/*
Package dynatable – expression compiler.

Compiles a composable predicate algebra into condition, filter and
key-condition expression strings, and update actions into update
expressions, all referencing PlaceholderTable tokens.
*/
package dynatable

import (
	"strings"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEqual         Operator = "="
	OpNotEqual      Operator = "<>"
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpBetween       Operator = "BETWEEN"
	OpBeginsWith    Operator = "begins_with"
	OpContains      Operator = "contains"
	OpIn            Operator = "IN"
	OpExists        Operator = "attribute_exists"
	OpNotExists     Operator = "attribute_not_exists"
	OpAttributeType Operator = "attribute_type"
)

// keyConditionOps are the operators permitted on a range key inside a key
// condition.
var keyConditionOps = map[Operator]bool{
	OpEqual: true, OpLess: true, OpLessEqual: true,
	OpGreater: true, OpGreaterEqual: true,
	OpBetween: true, OpBeginsWith: true,
}

// orderingOps require a type with a defined sort order.
var orderingOps = map[Operator]bool{
	OpLess: true, OpLessEqual: true, OpGreater: true, OpGreaterEqual: true,
	OpBetween: true,
}

// Condition is an immutable predicate tree node: either a leaf comparison
// on an attribute path, or an AND / OR / NOT combinator.
type Condition struct {
	op   Operator
	path string
	args []any

	combine  string // "AND", "OR" or "NOT" for internal nodes
	children []*Condition
}

func leaf(op Operator, path string, args ...any) *Condition {
	return &Condition{op: op, path: path, args: args}
}

// Equal compares an attribute path to a value.
func Equal(path string, v any) *Condition { return leaf(OpEqual, path, v) }

// NotEqual compares an attribute path to a value.
func NotEqual(path string, v any) *Condition { return leaf(OpNotEqual, path, v) }

// Less compares an attribute path to a value.
func Less(path string, v any) *Condition { return leaf(OpLess, path, v) }

// LessEqual compares an attribute path to a value.
func LessEqual(path string, v any) *Condition { return leaf(OpLessEqual, path, v) }

// Greater compares an attribute path to a value.
func Greater(path string, v any) *Condition { return leaf(OpGreater, path, v) }

// GreaterEqual compares an attribute path to a value.
func GreaterEqual(path string, v any) *Condition { return leaf(OpGreaterEqual, path, v) }

// Between matches values in the inclusive range [lo, hi].
func Between(path string, lo, hi any) *Condition { return leaf(OpBetween, path, lo, hi) }

// BeginsWith matches string or binary attributes by prefix.
func BeginsWith(path string, prefix any) *Condition { return leaf(OpBeginsWith, path, prefix) }

// Contains matches substring or set/list membership.
func Contains(path string, v any) *Condition { return leaf(OpContains, path, v) }

// In matches any of the listed values.
func In(path string, values ...any) *Condition { return leaf(OpIn, path, values...) }

// Exists matches items carrying the attribute.
func Exists(path string) *Condition { return leaf(OpExists, path) }

// NotExists matches items lacking the attribute.
func NotExists(path string) *Condition { return leaf(OpNotExists, path) }

// IsType matches attributes of the given wire tag.
func IsType(path string, t AttributeType) *Condition {
	return leaf(OpAttributeType, path, string(t))
}

// And combines conditions conjunctively.
func And(conds ...*Condition) *Condition {
	return &Condition{combine: "AND", children: conds}
}

// Or combines conditions disjunctively.
func Or(conds ...*Condition) *Condition {
	return &Condition{combine: "OR", children: conds}
}

// Not negates a condition.
func Not(cond *Condition) *Condition {
	return &Condition{combine: "NOT", children: []*Condition{cond}}
}

// CompileCondition renders a predicate tree to a fully parenthesized
// expression string, registering every path and literal in pt. The spec is
// used to encode literals against declared attribute types and to reject
// operators invalid for an attribute's wire tag; paths not declared on the
// model (nested document paths) are encoded generically.
func CompileCondition(spec *ModelSpec, cond *Condition, pt *PlaceholderTable) (string, error) {
	if cond == nil {
		return "", newValidationError("nil condition")
	}
	c := &exprCompiler{spec: spec, pt: pt}
	return c.render(cond)
}

type exprCompiler struct {
	spec *ModelSpec
	pt   *PlaceholderTable
}

func (c *exprCompiler) render(cond *Condition) (string, error) {
	switch cond.combine {
	case "AND", "OR":
		if len(cond.children) < 2 {
			return "", newValidationError("%s requires at least two conditions", cond.combine)
		}
		parts := make([]string, len(cond.children))
		for i, child := range cond.children {
			s, err := c.render(child)
			if err != nil {
				return "", err
			}
			parts[i] = "(" + s + ")"
		}
		return strings.Join(parts, " "+cond.combine+" "), nil
	case "NOT":
		if len(cond.children) != 1 {
			return "", newValidationError("NOT requires exactly one condition")
		}
		s, err := c.render(cond.children[0])
		if err != nil {
			return "", err
		}
		return "NOT (" + s + ")", nil
	}
	return c.renderLeaf(cond)
}

func (c *exprCompiler) renderLeaf(cond *Condition) (string, error) {
	if cond.path == "" {
		return "", newValidationError("condition without attribute path")
	}
	if err := c.checkOperator(cond); err != nil {
		return "", err
	}
	target := c.pt.PathTokens(cond.path)

	switch cond.op {
	case OpExists:
		return "attribute_exists(" + target + ")", nil
	case OpNotExists:
		return "attribute_not_exists(" + target + ")", nil
	case OpAttributeType:
		tok, err := c.valueToken(cond.path, cond.args[0])
		if err != nil {
			return "", err
		}
		return "attribute_type(" + target + ", " + tok + ")", nil
	case OpBeginsWith:
		tok, err := c.valueToken(cond.path, cond.args[0])
		if err != nil {
			return "", err
		}
		return "begins_with(" + target + ", " + tok + ")", nil
	case OpContains:
		tok, err := c.valueToken(cond.path, cond.args[0])
		if err != nil {
			return "", err
		}
		return "contains(" + target + ", " + tok + ")", nil
	case OpBetween:
		if len(cond.args) != 2 {
			return "", newValidationError("BETWEEN requires two values")
		}
		lo, err := c.valueToken(cond.path, cond.args[0])
		if err != nil {
			return "", err
		}
		hi, err := c.valueToken(cond.path, cond.args[1])
		if err != nil {
			return "", err
		}
		return target + " BETWEEN " + lo + " AND " + hi, nil
	case OpIn:
		if len(cond.args) == 0 {
			return "", newValidationError("IN requires at least one value")
		}
		toks := make([]string, len(cond.args))
		for i, v := range cond.args {
			tok, err := c.valueToken(cond.path, v)
			if err != nil {
				return "", err
			}
			toks[i] = tok
		}
		return target + " IN (" + strings.Join(toks, ", ") + ")", nil
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		if len(cond.args) != 1 {
			return "", newValidationError("%s requires one value", string(cond.op))
		}
		tok, err := c.valueToken(cond.path, cond.args[0])
		if err != nil {
			return "", err
		}
		return target + " " + string(cond.op) + " " + tok, nil
	}
	return "", newValidationError("unknown operator %q", string(cond.op))
}

// checkOperator rejects operators incompatible with the declared wire tag
// of a top-level attribute. Nested document paths have no declared tag and
// are not checked.
func (c *exprCompiler) checkOperator(cond *Condition) error {
	if c.spec == nil || strings.ContainsAny(cond.path, ".[") {
		return nil
	}
	attr, ok := c.spec.Attribute(cond.path)
	if !ok {
		return nil
	}
	switch cond.op {
	case OpBeginsWith:
		if attr.Type != TypeString && attr.Type != TypeBinary {
			return newValidationError("begins_with requires a string or binary attribute, %q is %s",
				attr.Name, string(attr.Type))
		}
	case OpContains:
		switch attr.Type {
		case TypeString, TypeStringSet, TypeNumberSet, TypeBinarySet, TypeList:
		default:
			return newValidationError("contains requires a string, set or list attribute, %q is %s",
				attr.Name, string(attr.Type))
		}
	default:
		if orderingOps[cond.op] && !attr.Type.keyable() {
			return newValidationError("%s requires an ordered attribute type, %q is %s",
				string(cond.op), attr.Name, string(attr.Type))
		}
	}
	return nil
}

// valueToken encodes a literal and registers it. The declared attribute
// codec is used for top-level paths so literal types are validated; other
// paths and function arguments fall back to generic encoding.
func (c *exprCompiler) valueToken(path string, v any) (string, error) {
	if c.spec != nil && !strings.ContainsAny(path, ".[") {
		if attr, ok := c.spec.Attribute(path); ok && attr.Type != TypeNull {
			switch attr.Type {
			case TypeString, TypeNumber, TypeBinary, TypeBool:
				av, err := serializeAttribute(attr, v)
				if err != nil {
					return "", err
				}
				return c.pt.ValueToken(av), nil
			}
		}
	}
	av, err := encodeAny(v)
	if err != nil {
		return "", err
	}
	return c.pt.ValueToken(av), nil
}

// ─── Key conditions ──────────────────────────────────────────────────────────

// CompileKeyCondition builds a key-condition expression: an equality on the
// hash key, optionally AND-ed with a range-key predicate restricted to the
// sortable operator set. index selects a secondary index; empty means the
// primary key.
func CompileKeyCondition(spec *ModelSpec, index string, hashValue any, rangeCond *Condition, pt *PlaceholderTable) (string, error) {
	hash, rng, err := spec.keyAttrs(index)
	if err != nil {
		return "", err
	}

	av, err := serializeAttribute(hash, hashValue)
	if err != nil {
		return "", err
	}
	expr := pt.PathTokens(hash.Name) + " = " + pt.ValueToken(av)

	if rangeCond == nil {
		return expr, nil
	}
	if rng == nil {
		return "", newValidationError("model %q: no range key on index %q", spec.Name(), index)
	}
	if rangeCond.combine != "" {
		return "", newValidationError("key condition cannot combine predicates")
	}
	if rangeCond.path != rng.Name {
		return "", newValidationError("key condition range predicate must target %q, got %q",
			rng.Name, rangeCond.path)
	}
	if !keyConditionOps[rangeCond.op] {
		return "", newValidationError("operator %q not allowed in a key condition", string(rangeCond.op))
	}
	c := &exprCompiler{spec: spec, pt: pt}
	rangeExpr, err := c.renderLeaf(rangeCond)
	if err != nil {
		return "", err
	}
	return expr + " AND " + rangeExpr, nil
}

// ─── Update expressions ──────────────────────────────────────────────────────

type actionKind int

const (
	actionSet actionKind = iota
	actionRemove
	actionAdd
	actionDelete
)

var clauseOrder = []struct {
	kind    actionKind
	keyword string
}{
	{actionSet, "SET"},
	{actionRemove, "REMOVE"},
	{actionAdd, "ADD"},
	{actionDelete, "DELETE"},
}

// UpdateAction is a single update operation on an attribute path.
type UpdateAction struct {
	kind  actionKind
	path  string
	value any
	fn    string // "", "if_not_exists" or "list_append"
}

// Set assigns a value to an attribute path.
func Set(path string, v any) UpdateAction {
	return UpdateAction{kind: actionSet, path: path, value: v}
}

// SetIfNotExists assigns a value only when the attribute is absent.
func SetIfNotExists(path string, v any) UpdateAction {
	return UpdateAction{kind: actionSet, path: path, value: v, fn: "if_not_exists"}
}

// Append appends items to a list attribute, creating it when absent.
func Append(path string, items []any) UpdateAction {
	return UpdateAction{kind: actionSet, path: path, value: items, fn: "list_append"}
}

// Remove deletes an attribute path from the item.
func Remove(path string) UpdateAction {
	return UpdateAction{kind: actionRemove, path: path}
}

// Add increments a number attribute or unions members into a set.
func Add(path string, v any) UpdateAction {
	return UpdateAction{kind: actionAdd, path: path, value: v}
}

// DeleteFrom removes members from a set attribute.
func DeleteFrom(path string, v any) UpdateAction {
	return UpdateAction{kind: actionDelete, path: path, value: v}
}

// CompileUpdate renders update actions grouped under their clause keywords,
// with clauses emitted in the fixed order SET, REMOVE, ADD, DELETE for
// reproducible output. The same path under both SET and REMOVE fails with a
// ValidationError. Key attributes may not be updated.
func CompileUpdate(spec *ModelSpec, actions []UpdateAction, pt *PlaceholderTable) (string, error) {
	if len(actions) == 0 {
		return "", newValidationError("no update actions")
	}

	setPaths := map[string]bool{}
	removePaths := map[string]bool{}
	for _, a := range actions {
		if a.path == "" {
			return "", newValidationError("update action without attribute path")
		}
		switch a.kind {
		case actionSet:
			setPaths[a.path] = true
		case actionRemove:
			removePaths[a.path] = true
		}
	}
	for path := range setPaths {
		if removePaths[path] {
			return "", newValidationError("attribute %q appears under both SET and REMOVE", path)
		}
	}
	if spec != nil {
		for _, a := range actions {
			top := strings.SplitN(strings.SplitN(a.path, ".", 2)[0], "[", 2)[0]
			if attr, ok := spec.Attribute(top); ok && attr.KeyRole != KeyNone {
				return "", newValidationError("cannot update key attribute %q", attr.Name)
			}
		}
	}

	c := &exprCompiler{spec: spec, pt: pt}
	grouped := map[actionKind][]string{}
	for _, a := range actions {
		rendered, err := c.renderAction(a)
		if err != nil {
			return "", err
		}
		grouped[a.kind] = append(grouped[a.kind], rendered)
	}

	var clauses []string
	for _, clause := range clauseOrder {
		if parts := grouped[clause.kind]; len(parts) > 0 {
			clauses = append(clauses, clause.keyword+" "+strings.Join(parts, ", "))
		}
	}
	return strings.Join(clauses, " "), nil
}

func (c *exprCompiler) renderAction(a UpdateAction) (string, error) {
	target := c.pt.PathTokens(a.path)
	switch a.kind {
	case actionRemove:
		return target, nil
	case actionAdd, actionDelete:
		tok, err := c.valueToken(a.path, a.value)
		if err != nil {
			return "", err
		}
		return target + " " + tok, nil
	}

	// SET variants
	switch a.fn {
	case "if_not_exists":
		tok, err := c.valueToken(a.path, a.value)
		if err != nil {
			return "", err
		}
		return target + " = if_not_exists(" + target + ", " + tok + ")", nil
	case "list_append":
		items, ok := a.value.([]any)
		if !ok {
			return "", newValidationError("append to %q requires a list of items", a.path)
		}
		itemsTok, err := c.valueToken(a.path, items)
		if err != nil {
			return "", err
		}
		emptyTok, err := c.valueToken(a.path, []any{})
		if err != nil {
			return "", err
		}
		return target + " = list_append(if_not_exists(" + target + ", " + emptyTok + "), " + itemsTok + ")", nil
	default:
		tok, err := c.valueToken(a.path, a.value)
		if err != nil {
			return "", err
		}
		return target + " = " + tok, nil
	}
}
