package broadcast

import (
	"context"

	"Inventory/internal/inventory"
)

// Fanout hands one broadcast to several publishers in order.
type Fanout []inventory.Publisher

func (f Fanout) Publish(ctx context.Context, products inventory.Collection) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, products)
		}
	}
}
