package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"library-backend/internal/logger"
	"library-backend/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options bounds how long a transaction may wait.
type Options struct {
	// LockTimeout is applied with SET LOCAL lock_timeout; zero leaves the server default.
	LockTimeout time.Duration
	// TxTimeout caps the whole transaction; zero means no extra deadline.
	TxTimeout time.Duration
}

type Store struct {
	db   *sql.DB
	opts Options
	repository.BookRepository
	repository.LoanRepository
	repository.NotificationRepository
	repository.UserRepository
}

func NewStore(db *sql.DB, opts Options) *Store {
	return &Store{
		db:                     db,
		opts:                   opts,
		BookRepository:         NewBookRepository(db),
		LoanRepository:         NewLoanRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		UserRepository:         NewUserRepository(db),
	}
}

func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Books:         s.BookRepository,
		Loans:         s.LoanRepository,
		Notifications: s.NotificationRepository,
		Users:         s.UserRepository,
	}
}

func reposFor(tx DBTX) repository.Repos {
	return repository.Repos{
		Books:         NewBookRepository(tx),
		Loans:         NewLoanRepository(tx),
		Notifications: NewNotificationRepository(tx),
		Users:         NewUserRepository(tx),
	}
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken with FOR UPDATE
// serialize writers; lock waits past LockTimeout surface as domain Busy errors.
func (s *Store) RunInTx(ctx context.Context, fn repository.TxFunc) (err error) {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translateError(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			logger.Error("Transaction rolled back after panic", "panic", p)
			panic(p)
		}
	}()

	if s.opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return translateError(err, "set lock timeout")
		}
	}

	if err := fn(ctx, reposFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Rollback failed", "error", rbErr)
		}
		return translateError(err, "transaction")
	}

	if err := tx.Commit(); err != nil {
		return translateError(err, "commit")
	}
	return nil
}
