// Package ledger owns the two mutable aggregates of the store: product stock
// (in base units) and customer credit balances. Every write is a guarded
// compare-and-set on the row's version, taken under a row lock where the
// database supports one, and leaves an append-only history row behind.
package ledger

import (
	"gorm.io/gorm/clause"
)

// maxCASAttempts bounds the optimistic retry when a version guard misses.
const maxCASAttempts = 5

// Ref describes why a balance moved.
type Ref struct {
	Kind   string
	SaleID *uint
	Method string
	Note   string
}

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}
