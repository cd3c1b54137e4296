package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name         string
		owningSchema string
		ref          string
		want         ParsedReference
		ok           bool
	}{
		{
			name:         "three part keeps its own schema",
			owningSchema: "public",
			ref:          "billing.invoices.id",
			want:         ParsedReference{Schema: "billing", Table: "invoices", Column: "id"},
			ok:           true,
		},
		{
			name:         "two part inherits owning schema",
			owningSchema: "public",
			ref:          "users.id",
			want:         ParsedReference{Schema: "public", Table: "users", Column: "id"},
			ok:           true,
		},
		{
			name:         "single component ignored",
			owningSchema: "public",
			ref:          "users",
			ok:           false,
		},
		{
			name:         "empty ignored",
			owningSchema: "public",
			ref:          "",
			ok:           false,
		},
		{
			name:         "empty component ignored",
			owningSchema: "public",
			ref:          ".id",
			ok:           false,
		},
		{
			name:         "surrounding whitespace trimmed",
			owningSchema: "sales",
			ref:          "  orders.order_id  ",
			want:         ParsedReference{Schema: "sales", Table: "orders", Column: "order_id"},
			ok:           true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReference(tt.owningSchema, tt.ref)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTableAndColumnIDs(t *testing.T) {
	assert.Equal(t, "conn1.public.users", TableID("conn1", "public", "users"))
	assert.Equal(t, "conn1.public.users.id", ColumnID("conn1", "public", "users", "id"))
}

func TestNamespaceCommunities(t *testing.T) {
	tables := []models.Table{
		{SchemaName: "sales", Name: "orders"},
		{SchemaName: "public", Name: "users"},
		{SchemaName: "sales", Name: "invoices"},
		{SchemaName: "billing", Name: "payments"},
	}

	got := NamespaceCommunities(tables)

	// Ranks follow alphabetical namespace order regardless of input order.
	assert.Equal(t, 0, got["billing.payments"])
	assert.Equal(t, 1, got["public.users"])
	assert.Equal(t, 2, got["sales.orders"])
	assert.Equal(t, 2, got["sales.invoices"])

	// Stable across calls and input permutations.
	reversed := []models.Table{tables[3], tables[2], tables[1], tables[0]}
	assert.Equal(t, got, NamespaceCommunities(reversed))
}

func TestNamespaceCommunitiesEmpty(t *testing.T) {
	assert.Empty(t, NamespaceCommunities(nil))
}
