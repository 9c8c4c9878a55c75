package service

import (
	"context"
	"errors"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/repository"
)

type LoanService interface {
	RequestLoan(ctx context.Context, borrowerID int32, bookTitle string) (*domain.LoanRequestResult, error)
	ApproveLoan(ctx context.Context, librarianID, loanID int32, dueDate *time.Time) (*domain.Loan, error)
	CancelLoan(ctx context.Context, memberID, loanID int32) (*domain.Loan, error)
	LibrarianCancelLoan(ctx context.Context, librarianID, loanID int32) (*domain.Loan, error)
	RequestReturn(ctx context.Context, memberID, loanID int32) (*domain.Loan, error)
	AcceptReturn(ctx context.Context, librarianID, loanID int32) (*domain.Loan, error)
	GetLoan(ctx context.Context, userID, loanID int32) (*domain.Loan, error)
	ListLoans(ctx context.Context, userID int32, filter domain.LoanFilter) ([]domain.Loan, int32, error)
}

type OverdueService interface {
	// SweepOverdue is the librarian-triggered sweep.
	SweepOverdue(ctx context.Context, librarianID int32) (*domain.SweepResult, error)
	// Sweep runs without a caller identity, for the scheduler.
	Sweep(ctx context.Context) (*domain.SweepResult, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) (*domain.Notification, error)
}

// LoanPolicy holds the lending terms applied to new loans and the overdue fine.
type LoanPolicy struct {
	PeriodDays int
	Amount     int32
	FinePerDay int32
}

func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{PeriodDays: 15, Amount: 50, FinePerDay: 10}
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// requireRole loads userID from the directory and checks its role.
func requireRole(ctx context.Context, users repository.UserRepository, userID int32, role domain.UserRole) (*domain.User, error) {
	u, err := lookupUser(ctx, users, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, domain.Forbidden("This action requires the %s role.", role)
	}
	return u, nil
}

func lookupUser(ctx context.Context, users repository.UserRepository, userID int32) (*domain.User, error) {
	u, err := users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Forbidden("User %d is not recognized.", userID)
	}
	return u, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
