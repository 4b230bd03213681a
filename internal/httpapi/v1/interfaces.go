package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/books"
)

// Reader abstracts the list reads handlers serve directly, without a
// service in between.
type Reader interface {
	// Containers returns a market's purchase containers, lines populated,
	// ordered chronologically.
	Containers(ctx context.Context, marketID uuid.UUID) ([]books.PurchaseContainer, error)
	// Sales returns a market's sales, lines populated, ordered by (Date, Seq).
	Sales(ctx context.Context, marketID uuid.UUID) ([]books.Sale, error)
	Sale(ctx context.Context, marketID, id uuid.UUID) (books.Sale, error)
	// AllocationsForSale returns the persisted cost allocations of one sale.
	AllocationsForSale(ctx context.Context, marketID, saleID uuid.UUID) ([]books.Allocation, error)
	// Entries returns a market's safe entries in replay order.
	Entries(ctx context.Context, marketID uuid.UUID) ([]books.SafeEntry, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
