package dynatable

import (
	"testing"
	"time"

	"github.com/dynatable/dynatable-go/ddbmock"
)

var _ Client = (*ddbmock.Client)(nil)

func userSpec(t *testing.T) *ModelSpec {
	t.Helper()
	spec, err := NewModelSpec("User",
		[]AttributeSpec{
			{Name: "pk", Type: TypeString, KeyRole: KeyHash},
			{Name: "sk", Type: TypeString, KeyRole: KeyRange},
			{Name: "name", Type: TypeString},
			{Name: "age", Type: TypeNumber},
			{Name: "active", Type: TypeBool},
			{Name: "tags", Type: TypeStringSet},
			{Name: "scores", Type: TypeNumberSet},
			{Name: "profile", Type: TypeMap},
			{Name: "history", Type: TypeList},
		},
		IndexSpec{Name: "by-name", HashKey: "name", RangeKey: "age", Projection: Projection{Kind: "ALL"}},
	)
	if err != nil {
		t.Fatalf("building model: %v", err)
	}
	return spec
}

func testTable(t *testing.T, mock *ddbmock.Client) *Table {
	t.Helper()
	mock.T = t
	tbl, err := NewTable(TableParams{
		Name:   "users",
		Client: mock,
		Logger: NopLogger(),
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Microsecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  2,
			Jitter:      0,
		},
	})
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	return tbl
}
