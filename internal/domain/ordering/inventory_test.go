package ordering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
)

func intPtr(v int) *int { return &v }

func TestInventoryItem_ReorderQuantity(t *testing.T) {
	cases := []struct {
		name string
		item ordering.InventoryItem
		want int
	}{
		{
			name: "manual override wins over everything",
			item: ordering.InventoryItem{Quantity: 5, MinimumStock: 10, ReorderPoint: 50,
				MaximumStock: intPtr(100), ManualReorderQuantity: intPtr(7)},
			want: 7,
		},
		{
			name: "manual zero suppresses reordering",
			item: ordering.InventoryItem{Quantity: 0, MinimumStock: 10, ManualReorderQuantity: intPtr(0)},
			want: 0,
		},
		{
			name: "maximum stock target",
			item: ordering.InventoryItem{Quantity: 30, ReservedQuantity: 10, MaximumStock: intPtr(100)},
			want: 80,
		},
		{
			name: "maximum already satisfied",
			item: ordering.InventoryItem{Quantity: 120, MaximumStock: intPtr(100)},
			want: 0,
		},
		{
			name: "twice the reorder point",
			item: ordering.InventoryItem{Quantity: 8, ReorderPoint: 10},
			want: 12,
		},
		{
			name: "minimum stock fallback",
			item: ordering.InventoryItem{Quantity: 5, MinimumStock: 10},
			want: 25,
		},
		{
			name: "reserved stock reduces availability",
			item: ordering.InventoryItem{Quantity: 10, ReservedQuantity: 5, MinimumStock: 10},
			want: 25,
		},
		{
			name: "nothing configured",
			item: ordering.InventoryItem{Quantity: 3},
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.item.ReorderQuantity())
		})
	}
}

func TestInventoryItem_AdjustedReorder(t *testing.T) {
	// The S5 shape: 3·10 − 5 = 25 suggested, 15 already inbound.
	item := ordering.InventoryItem{Quantity: 5, MinimumStock: 10}

	assert.Equal(t, 25, item.ReorderQuantity())
	assert.Equal(t, 10, item.AdjustedReorder(15))
	assert.Equal(t, 0, item.AdjustedReorder(40), "netting never goes negative")
}

func TestInventoryItem_BelowMinimum(t *testing.T) {
	assert.True(t, (&ordering.InventoryItem{Quantity: 5, MinimumStock: 10}).BelowMinimum())
	assert.False(t, (&ordering.InventoryItem{Quantity: 15, MinimumStock: 10}).BelowMinimum())
	assert.True(t, (&ordering.InventoryItem{Quantity: 15, ReservedQuantity: 8, MinimumStock: 10}).BelowMinimum())
}

func TestInventoryItem_Validate(t *testing.T) {
	ok := ordering.InventoryItem{Quantity: 5, ReservedQuantity: 2, MinimumStock: 1}
	assert.NoError(t, ok.Validate())

	bad := ordering.InventoryItem{Quantity: 2, ReservedQuantity: 5}
	assert.Error(t, bad.Validate())

	neg := ordering.InventoryItem{Quantity: -1}
	assert.Error(t, neg.Validate())
}
