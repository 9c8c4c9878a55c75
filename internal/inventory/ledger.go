// Package inventory keeps a book's copy counters consistent. A Ledger is bound to the
// repositories of one transaction and must not outlive it.
package inventory

import (
	"context"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"
)

type Ledger struct {
	books repository.BookRepository
	loans repository.LoanRepository
}

func NewLedger(books repository.BookRepository, loans repository.LoanRepository) *Ledger {
	return &Ledger{books: books, loans: loans}
}

// Reserve moves one copy from available to on-rent.
func (l *Ledger) Reserve(ctx context.Context, bookID int32) (*domain.Book, error) {
	book, err := l.books.LockByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.CopiesAvailable <= 0 {
		return nil, domain.InvariantViolation("book %d has no available copy to reserve", bookID)
	}
	book.CopiesAvailable--
	book.CopiesOnRent++
	if err := l.write(ctx, book); err != nil {
		return nil, err
	}
	logger.Debug("Copy reserved", "bookID", bookID, "available", book.CopiesAvailable, "onRent", book.CopiesOnRent)
	return book, nil
}

// Release moves one copy from on-rent back to available and clears the availability estimate.
func (l *Ledger) Release(ctx context.Context, bookID int32) (*domain.Book, error) {
	book, err := l.books.LockByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.CopiesOnRent <= 0 {
		return nil, domain.InvariantViolation("book %d has no copy on rent to release", bookID)
	}
	book.CopiesAvailable++
	book.CopiesOnRent--
	book.NextAvailableOn = nil
	if err := l.write(ctx, book); err != nil {
		return nil, err
	}
	logger.Debug("Copy released", "bookID", bookID, "available", book.CopiesAvailable, "onRent", book.CopiesOnRent)
	return book, nil
}

func (l *Ledger) write(ctx context.Context, book *domain.Book) error {
	if err := book.CheckCounters(); err != nil {
		return err
	}
	return l.books.UpdateCounters(ctx, book)
}

// NextAvailableEstimate is the earliest due date among the book's open loans, or nil.
func (l *Ledger) NextAvailableEstimate(ctx context.Context, bookID int32) (*time.Time, error) {
	return l.loans.EarliestOpenDueDate(ctx, bookID)
}

// Availability is the number of copies a new request can still claim: available copies
// minus requests already waiting for approval. The caller must hold the book's row lock.
func (l *Ledger) Availability(ctx context.Context, book *domain.Book) (int32, error) {
	holds, err := l.loans.CountPendingHolds(ctx, book.ID)
	if err != nil {
		return 0, err
	}
	if free := book.CopiesAvailable - holds; free > 0 {
		return free, nil
	}
	return 0, nil
}
