package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(products map[int64]CostView) ProductLookup {
	return func(id int64) (CostView, bool) {
		p, ok := products[id]
		return p, ok
	}
}

func TestResolveMaterialCost_LeafReturnsStoredCost(t *testing.T) {
	res := ResolveMaterialCost(CostView{ID: 1, CostPrice: 42.5}, lookupFrom(nil))
	assert.Equal(t, 42.5, res.Total)
	assert.Empty(t, res.MissingComponents)
}

func TestResolveMaterialCost_TwoComponents(t *testing.T) {
	products := map[int64]CostView{
		2: {ID: 2, CostPrice: 5},
		3: {ID: 3, CostPrice: 3},
	}
	kit := CostView{
		ID:          1,
		IsComposite: true,
		Components: []Component{
			{ProductID: 2, Quantity: 2},
			{ProductID: 3, Quantity: 1},
		},
	}

	res := ResolveMaterialCost(kit, lookupFrom(products))
	assert.InDelta(t, 13.0, res.Total, 1e-9)
}

func TestResolveMaterialCost_OrderIndependent(t *testing.T) {
	products := map[int64]CostView{
		2: {ID: 2, CostPrice: 7.25},
		3: {ID: 3, CostPrice: 1.1},
		4: {ID: 4, CostPrice: 19.9},
	}
	forward := CostView{ID: 1, IsComposite: true, Components: []Component{
		{ProductID: 2, Quantity: 3},
		{ProductID: 3, Quantity: 5},
		{ProductID: 4, Quantity: 1},
	}}
	reversed := CostView{ID: 1, IsComposite: true, Components: []Component{
		{ProductID: 4, Quantity: 1},
		{ProductID: 3, Quantity: 5},
		{ProductID: 2, Quantity: 3},
	}}

	a := ResolveMaterialCost(forward, lookupFrom(products))
	b := ResolveMaterialCost(reversed, lookupFrom(products))
	assert.InDelta(t, a.Total, b.Total, 1e-9)
}

func TestResolveMaterialCost_MissingComponentContributesZero(t *testing.T) {
	products := map[int64]CostView{
		2: {ID: 2, CostPrice: 5},
		// product 3 was deleted from the catalog
	}
	kit := CostView{ID: 1, IsComposite: true, Components: []Component{
		{ProductID: 2, Quantity: 2},
		{ProductID: 3, Quantity: 4},
	}}

	res := ResolveMaterialCost(kit, lookupFrom(products))
	assert.InDelta(t, 10.0, res.Total, 1e-9)
	assert.Equal(t, []int64{3}, res.MissingComponents)
}

func TestResolveMaterialCost_NestedKit(t *testing.T) {
	inner := CostView{ID: 2, IsComposite: true, Components: []Component{
		{ProductID: 3, Quantity: 2},
	}}
	products := map[int64]CostView{
		2: inner,
		3: {ID: 3, CostPrice: 4},
	}
	outer := CostView{ID: 1, IsComposite: true, Components: []Component{
		{ProductID: 2, Quantity: 3},
	}}

	// inner kit costs 2*4=8, outer uses 3 of them.
	res := ResolveMaterialCost(outer, lookupFrom(products))
	assert.InDelta(t, 24.0, res.Total, 1e-9)
	assert.False(t, res.CycleDetected)
}

func TestResolveMaterialCost_CycleTerminates(t *testing.T) {
	a := CostView{ID: 1, CostPrice: 9, IsComposite: true, Components: []Component{
		{ProductID: 2, Quantity: 1},
	}}
	b := CostView{ID: 2, CostPrice: 6, IsComposite: true, Components: []Component{
		{ProductID: 1, Quantity: 1},
	}}
	products := map[int64]CostView{1: a, 2: b}

	res := ResolveMaterialCost(a, lookupFrom(products))
	assert.True(t, res.CycleDetected)
	// b refers back to a, so a is priced at its stored cost inside b.
	assert.InDelta(t, 9.0, res.Total, 1e-9)
}
