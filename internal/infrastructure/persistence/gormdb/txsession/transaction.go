package txsession

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"reqtx/internal/domain/transaction"
	"reqtx/internal/errs"
	"reqtx/internal/ports"
)

// Transaction is a gorm transaction with an explicit lifecycle state. It is
// owned by one request and not safe for concurrent use.
type Transaction struct {
	db    *gorm.DB
	level transaction.IsolationLevel
	state transaction.State
}

var _ ports.Transaction = (*Transaction)(nil)

func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.requireActive(); err != nil {
		return err
	}

	// database/sql releases the connection whether or not the commit succeeds.
	if err := t.db.WithContext(ctx).Commit().Error; err != nil {
		t.state = transaction.Disposed
		return errs.Wrap(err, "commit gorm transaction")
	}
	t.state = transaction.Committed
	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if err := t.requireActive(); err != nil {
		return err
	}

	if err := t.db.WithContext(ctx).Rollback().Error; err != nil {
		t.state = transaction.Disposed
		return errs.Wrap(err, "rollback gorm transaction")
	}
	t.state = transaction.RolledBack
	return nil
}

// Dispose releases the transaction, rolling it back if it is still active.
func (t *Transaction) Dispose() error {
	switch t.state {
	case transaction.Disposed:
		return nil
	case transaction.Active:
		err := t.db.Rollback().Error
		t.state = transaction.Disposed
		return errs.Wrap(err, "rollback gorm transaction on dispose")
	default:
		t.state = transaction.Disposed
		return nil
	}
}

func (t *Transaction) IsActive() bool {
	return t.state == transaction.Active
}

func (t *Transaction) State() transaction.State {
	return t.state
}

func (t *Transaction) IsolationLevel() transaction.IsolationLevel {
	return t.level
}

// Handle returns the *gorm.DB bound to the transaction.
func (t *Transaction) Handle() ports.Tx {
	return t.db
}

func (t *Transaction) requireActive() error {
	if t.state != transaction.Active {
		return fmt.Errorf("%w: %s", transaction.ErrNotActive, t.state)
	}
	return nil
}
