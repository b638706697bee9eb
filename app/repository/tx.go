package repository

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
)

const defaultTxAttempts = 3

type TxFunc func(ctx context.Context, stores Stores) error

// Store owns the connection pool and hands out transaction-scoped repositories.
type Store struct {
	db       *sql.DB
	attempts int
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, attempts: defaultTxAttempts}
}

// WithAttempts sets how many times a transaction is tried on deadlock or lock wait timeout.
func (s *Store) WithAttempts(attempts int) *Store {
	if attempts > 0 {
		s.attempts = attempts
	}
	return s
}

func (s *Store) Stores() Stores {
	return NewStores(s.db)
}

// Transact runs fn inside a READ COMMITTED transaction. Deadlocks and lock wait
// timeouts restart fn from scratch, so fn must not keep state between attempts.
func (s *Store) Transact(ctx context.Context, fn TxFunc) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.transactOnce(ctx, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		logrus.WithError(err).WithField("attempt", attempt).Warn("transaction_retry")
	}
	return err
}

func (s *Store) transactOnce(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, NewStores(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
