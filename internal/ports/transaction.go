package ports

import (
	"context"

	"reqtx/internal/domain/transaction"
)

// Session is the database capability the request filter begins transactions on.
type Session interface {
	BeginTransaction(ctx context.Context, level transaction.IsolationLevel) (Transaction, error)
}

// Transaction is one open database transaction.
//
// Commit and Rollback are only valid while the handle is Active. Dispose
// releases the handle; disposing an Active handle rolls it back first.
// Dispose is idempotent.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Dispose() error
	IsActive() bool
	State() transaction.State
	IsolationLevel() transaction.IsolationLevel
	// Handle exposes the driver-level transaction (for example *gorm.DB).
	Handle() Tx
}
