package dynatable

import (
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func compile(t *testing.T, spec *ModelSpec, cond *Condition) (string, *PlaceholderTable) {
	t.Helper()
	pt := NewPlaceholderTable()
	expr, err := CompileCondition(spec, cond, pt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return expr, pt
}

func TestCompileConditionTree(t *testing.T) {
	spec := userSpec(t)
	expr, pt := compile(t, spec, And(
		Equal("name", "ada"),
		Or(
			Greater("age", 30),
			Not(Exists("active")),
		),
	))
	want := "(#n0 = :v0) AND ((#n1 > :v1) OR (NOT (attribute_exists(#n2))))"
	if expr != want {
		t.Fatalf("expression:\n got %q\nwant %q", expr, want)
	}
	names := pt.Names()
	if names["#n0"] != "name" || names["#n1"] != "age" || names["#n2"] != "active" {
		t.Fatalf("names: %v", names)
	}
	values := pt.Values()
	if v := values[":v1"].(*types.AttributeValueMemberN); v.Value != "30" {
		t.Fatalf("age literal: %#v", values[":v1"])
	}
}

func TestCompileDeterministic(t *testing.T) {
	spec := userSpec(t)
	cond := And(Equal("name", "ada"), Between("age", 10, 20), Contains("tags", "ops"))
	expr1, pt1 := compile(t, spec, cond)
	expr2, pt2 := compile(t, spec, cond)
	if expr1 != expr2 {
		t.Fatalf("expressions differ: %q vs %q", expr1, expr2)
	}
	if !reflect.DeepEqual(pt1.Names(), pt2.Names()) || !reflect.DeepEqual(pt1.Values(), pt2.Values()) {
		t.Fatal("placeholder tables differ between identical compilations")
	}
}

func TestCompileDeduplicatesTokens(t *testing.T) {
	spec := userSpec(t)
	expr, pt := compile(t, spec, Or(Equal("name", "ada"), Equal("name", "ada")))
	want := "(#n0 = :v0) OR (#n0 = :v0)"
	if expr != want {
		t.Fatalf("expression: %q", expr)
	}
	names, values := pt.Len()
	if names != 1 || values != 1 {
		t.Fatalf("tokens issued: %d names, %d values", names, values)
	}
}

func TestCompileNestedPath(t *testing.T) {
	spec := userSpec(t)
	expr, pt := compile(t, spec, Equal("profile.address.city", "london"))
	want := "#n0.#n1.#n2 = :v0"
	if expr != want {
		t.Fatalf("expression: %q", expr)
	}
	if pt.Names()["#n1"] != "address" {
		t.Fatalf("names: %v", pt.Names())
	}
}

func TestCompileListSubscript(t *testing.T) {
	spec := userSpec(t)
	expr, _ := compile(t, spec, Equal("history[0]", "a"))
	if expr != "#n0[0] = :v0" {
		t.Fatalf("expression: %q", expr)
	}
}

func TestOperatorTypeChecks(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	if _, err := CompileCondition(spec, BeginsWith("age", "3"), pt); !IsValidation(err) {
		t.Fatalf("begins_with on N accepted: %v", err)
	}
	if _, err := CompileCondition(spec, Contains("active", true), pt); !IsValidation(err) {
		t.Fatalf("contains on BOOL accepted: %v", err)
	}
	if _, err := CompileCondition(spec, Less("profile", 1), pt); !IsValidation(err) {
		t.Fatalf("ordering on M accepted: %v", err)
	}
	if _, err := CompileCondition(spec, And(Equal("name", "a")), pt); !IsValidation(err) {
		t.Fatalf("single-child AND accepted: %v", err)
	}
}

func TestCompileInOperator(t *testing.T) {
	spec := userSpec(t)
	expr, pt := compile(t, spec, In("name", "a", "b", "c"))
	if expr != "#n0 IN (:v0, :v1, :v2)" {
		t.Fatalf("expression: %q", expr)
	}
	if len(pt.Values()) != 3 {
		t.Fatalf("values: %v", pt.Values())
	}
}

// ─── Key conditions ──────────────────────────────────────────────────────────

func TestCompileKeyCondition(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	expr, err := CompileKeyCondition(spec, "", "user#1", BeginsWith("sk", "order#"), pt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "#n0 = :v0 AND begins_with(#n1, :v1)"
	if expr != want {
		t.Fatalf("expression:\n got %q\nwant %q", expr, want)
	}
}

func TestCompileKeyConditionIndex(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	expr, err := CompileKeyCondition(spec, "by-name", "ada", Between("age", 20, 40), pt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if expr != "#n0 = :v0 AND #n1 BETWEEN :v1 AND :v2" {
		t.Fatalf("expression: %q", expr)
	}
}

func TestKeyConditionRejections(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	if _, err := CompileKeyCondition(spec, "", "u", Contains("sk", "x"), pt); !IsValidation(err) {
		t.Fatalf("contains allowed in key condition: %v", err)
	}
	if _, err := CompileKeyCondition(spec, "", "u", Equal("name", "x"), pt); !IsValidation(err) {
		t.Fatalf("non-range-key predicate accepted: %v", err)
	}
	if _, err := CompileKeyCondition(spec, "", "u", And(Equal("sk", "a"), Equal("sk", "b")), pt); !IsValidation(err) {
		t.Fatalf("combined range predicate accepted: %v", err)
	}
	if _, err := CompileKeyCondition(spec, "nope", "u", nil, pt); !IsValidation(err) {
		t.Fatalf("unknown index accepted: %v", err)
	}
}

// ─── Update expressions ──────────────────────────────────────────────────────

func TestCompileUpdateClauseOrder(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	expr, err := CompileUpdate(spec, []UpdateAction{
		Add("age", 1),
		Set("name", "grace"),
		Remove("active"),
		DeleteFrom("tags", StringSet{"ops"}),
	}, pt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "SET #n1 = :v1 REMOVE #n2 ADD #n0 :v0 DELETE #n3 :v2"
	if expr != want {
		t.Fatalf("expression:\n got %q\nwant %q", expr, want)
	}
}

func TestCompileUpdateSetRemoveConflict(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	_, err := CompileUpdate(spec, []UpdateAction{Set("name", "x"), Remove("name")}, pt)
	if !IsValidation(err) {
		t.Fatalf("SET and REMOVE on one path accepted: %v", err)
	}
}

func TestCompileUpdateKeyAttributeRejected(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	_, err := CompileUpdate(spec, []UpdateAction{Set("pk", "other")}, pt)
	if !IsValidation(err) {
		t.Fatalf("key attribute update accepted: %v", err)
	}
}

func TestCompileUpdateFunctions(t *testing.T) {
	spec := userSpec(t)
	pt := NewPlaceholderTable()
	expr, err := CompileUpdate(spec, []UpdateAction{
		SetIfNotExists("name", "anon"),
		Append("history", []any{"event"}),
	}, pt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "SET #n0 = if_not_exists(#n0, :v0), #n1 = list_append(if_not_exists(#n1, :v2), :v1)"
	if expr != want {
		t.Fatalf("expression:\n got %q\nwant %q", expr, want)
	}
}
