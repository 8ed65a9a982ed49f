package txsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"reqtx/internal/domain/transaction"
	"reqtx/internal/errs"
	"reqtx/internal/ports"
)

// Session begins request transactions on a gorm connection pool.
type Session struct {
	db *gorm.DB
}

var _ ports.Session = (*Session)(nil)

func NewSession(db *gorm.DB) *Session {
	return &Session{db: db}
}

func (s *Session) BeginTransaction(ctx context.Context, level transaction.IsolationLevel) (ports.Transaction, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", transaction.ErrInvalidIsolationLevel, int(level))
	}

	if !Supports(s.db.Dialector.Name(), level) {
		return nil, fmt.Errorf("%w: %s is not supported by %s", transaction.ErrInvalidIsolationLevel, level, s.db.Dialector.Name())
	}

	tx := s.db.WithContext(ctx).Begin(txOptions(s.db, level)...)
	if tx.Error != nil {
		return nil, errs.Wrap(tx.Error, "begin gorm transaction")
	}

	return &Transaction{
		db:    tx,
		level: level,
		state: transaction.Active,
	}, nil
}

// Supports reports whether a database dialect accepts level. PostgreSQL has
// no snapshot level; SQLite ignores levels altogether.
func Supports(dialect string, level transaction.IsolationLevel) bool {
	return !(level == transaction.Snapshot && dialect == "postgres")
}

// SQLite transactions are always serializable, so the level is not passed on.
func txOptions(db *gorm.DB, level transaction.IsolationLevel) []*sql.TxOptions {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return nil
	}
	if level == transaction.Unspecified {
		return nil
	}
	return []*sql.TxOptions{{Isolation: level.SQL()}}
}
