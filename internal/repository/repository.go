package repository

import (
	"context"
	"time"

	"library-backend/internal/domain"
)

// BookRepository is the catalog side of the store. Counter writes go through the inventory ledger.
type BookRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Book, error)
	GetByTitle(ctx context.Context, title string) (*domain.Book, error)
	// LockByID reads the book and holds its row lock until the transaction ends.
	LockByID(ctx context.Context, id int32) (*domain.Book, error)
	UpdateCounters(ctx context.Context, book *domain.Book) error
	SetNextAvailable(ctx context.Context, id int32, on *time.Time) error
	FindAuthorsByPenName(ctx context.Context, penNames []string) (map[string]domain.Author, error)
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id int32) (*domain.Loan, error)
	LockByID(ctx context.Context, id int32) (*domain.Loan, error)
	Update(ctx context.Context, loan *domain.Loan) error
	HasOpenLoan(ctx context.Context, borrowerID, bookID int32) (bool, error)
	CountPendingHolds(ctx context.Context, bookID int32) (int32, error)
	EarliestOpenDueDate(ctx context.Context, bookID int32) (*time.Time, error)
	List(ctx context.Context, filter domain.LoanFilter) ([]domain.Loan, int32, error)

	// Overdue sweep
	TryLockSweep(ctx context.Context) (bool, error)
	ListOpenForUpdate(ctx context.Context) ([]domain.Loan, error)
	UpdateAssessment(ctx context.Context, id int32, overdue bool, fine int32, at time.Time) error
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	GetByID(ctx context.Context, id int32) (*domain.Notification, error)
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
}

// UserRepository is the user directory: identities and roles are managed elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	ListIDsByRole(ctx context.Context, role domain.UserRole) ([]int32, error)
}

// Repos is the set of repositories bound to one store handle or transaction.
type Repos struct {
	Books         BookRepository
	Loans         LoanRepository
	Notifications NotificationRepository
	Users         UserRepository
}

// TxFunc runs inside a transaction; returning an error rolls it back.
type TxFunc func(ctx context.Context, repos Repos) error

// Store is implemented by the postgres and memory backends.
type Store interface {
	// RunInTx commits when fn returns nil and rolls back otherwise, including on panic.
	RunInTx(ctx context.Context, fn TxFunc) error
	// Repos returns repositories outside any transaction, for reads.
	Repos() Repos
}
