package pricing

// maxCompositionDepth bounds the rollup of nested kits. Catalog data
// deeper than this is almost certainly malformed.
const maxCompositionDepth = 8

// CostView is the slice of a product the resolver needs.
type CostView struct {
	ID          int64
	Name        string
	CostPrice   float64
	IsComposite bool
	Components  []Component
}

// Component is one composition line: Quantity units of the referenced
// product per unit of the parent.
type Component struct {
	ProductID int64
	Quantity  float64
}

// ProductLookup resolves a product by id. ok=false means the product no
// longer exists; the resolver prices it at zero instead of failing.
type ProductLookup func(id int64) (CostView, bool)

// CostResult is the outcome of a material cost rollup.
type CostResult struct {
	Total float64
	// MissingComponents lists component ids that no longer exist and
	// contributed zero cost.
	MissingComponents []int64
	// CycleDetected is set when the composition refers back to an
	// ancestor. The offending component is priced at its stored cost
	// instead of recursing.
	CycleDetected bool
}

// ResolveMaterialCost computes the effective material cost of a
// product. Leaf products return their stored cost price. Composite
// products sum component costs, recursing through nested kits with a
// visited set so a miswired composition can never loop.
func ResolveMaterialCost(p CostView, lookup ProductLookup) CostResult {
	res := CostResult{}
	visited := map[int64]bool{p.ID: true}
	res.Total = resolveCost(p, lookup, visited, 0, &res)
	return res
}

func resolveCost(p CostView, lookup ProductLookup, visited map[int64]bool, depth int, res *CostResult) float64 {
	if !p.IsComposite || len(p.Components) == 0 {
		return sanitize(p.CostPrice)
	}

	total := 0.0
	for _, comp := range p.Components {
		child, ok := lookup(comp.ProductID)
		if !ok {
			res.MissingComponents = append(res.MissingComponents, comp.ProductID)
			continue
		}

		unitCost := sanitize(child.CostPrice)
		if child.IsComposite {
			if visited[child.ID] {
				res.CycleDetected = true
			} else if depth+1 < maxCompositionDepth {
				visited[child.ID] = true
				unitCost = resolveCost(child, lookup, visited, depth+1, res)
				delete(visited, child.ID)
			}
		}

		total += unitCost * sanitize(comp.Quantity)
	}
	return total
}
