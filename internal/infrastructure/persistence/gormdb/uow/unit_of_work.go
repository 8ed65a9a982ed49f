package uow

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"reqtx/internal/ports"
	"reqtx/internal/reqctx"
)

// UnitOfWork implements ports.UnitOfWork with gorm.
//
// Inside a request guarded by the transaction filter, WithTx joins the
// request transaction and leaves commit/rollback to the filter. Everywhere
// else it opens and finishes its own transaction.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errors.New("unit of work function is required")
	}

	if ports.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	if items, ok := reqctx.FromContext(ctx); ok {
		if tx, ok := reqctx.Get[ports.Transaction](items); ok && tx.IsActive() {
			gormTx, ok := tx.Handle().(*gorm.DB)
			if !ok || gormTx == nil {
				return fmt.Errorf("invalid request transaction handle: %T", tx.Handle())
			}
			return fn(ports.WithTxContext(ctx, gormTx))
		}
	}

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}
