package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/inventory"
	"library-backend/internal/logger"
	"library-backend/internal/metrics"
	"library-backend/internal/notify"
	"library-backend/internal/repository"
)

const dateLayout = "2006-01-02"

type loanService struct {
	store      repository.Store
	dispatcher *notify.Dispatcher
	policy     LoanPolicy
	clock      Clock
	retry      []RetryOption
}

func NewLoanService(
	store repository.Store,
	dispatcher *notify.Dispatcher,
	policy LoanPolicy,
	clock Clock,
	retry ...RetryOption,
) LoanService {
	return &loanService{
		store:      store,
		dispatcher: dispatcher,
		policy:     policy,
		clock:      clock,
		retry:      retry,
	}
}

type txWork func(ctx context.Context, repos repository.Repos, sink notify.Sink) error

// mutate runs work in one transaction, retrying while the store is busy. Notifications
// recorded by the last attempt are delivered only after it commits.
func (s *loanService) mutate(ctx context.Context, op string, work txWork) error {
	start := time.Now()
	var rec *notify.Recorder
	opts := append([]RetryOption{WithOperation(op)}, s.retry...)
	err := RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			rec = notify.NewRecorder(repos.Notifications, s.clock.Now)
			return work(ctx, repos, rec)
		})
	}, opts...)
	metrics.RecordLoanTransition(op, outcome(err))
	if err != nil {
		logger.Warn("Loan operation failed", "operation", op, "kind", domain.KindOf(err), "error", err, "duration", time.Since(start))
		return err
	}
	s.dispatcher.Dispatch(ctx, rec.Created())
	return nil
}

func (s *loanService) RequestLoan(ctx context.Context, borrowerID int32, bookTitle string) (*domain.LoanRequestResult, error) {
	logger.EnterMethod("loanService.RequestLoan", "borrowerID", borrowerID, "title", bookTitle)
	title := strings.TrimSpace(bookTitle)
	if title == "" {
		return nil, domain.InvalidArgument("book_title is required")
	}

	var result *domain.LoanRequestResult
	err := s.mutate(ctx, "request_loan", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		result = nil
		if _, err := requireRole(ctx, repos.Users, borrowerID, domain.UserRoleMember); err != nil {
			return err
		}
		found, err := repos.Books.GetByTitle(ctx, title)
		if err != nil {
			return err
		}
		book, err := repos.Books.LockByID(ctx, found.ID)
		if err != nil {
			return err
		}

		open, err := repos.Loans.HasOpenLoan(ctx, borrowerID, book.ID)
		if err != nil {
			return err
		}
		if open {
			return domain.Conflict("You have already loaned this book.")
		}

		ledger := inventory.NewLedger(repos.Books, repos.Loans)
		free, err := ledger.Availability(ctx, book)
		if err != nil {
			return err
		}
		if free == 0 {
			result, err = s.noCopies(ctx, repos, ledger, book)
			return err
		}

		now := s.clock.Now()
		issued := domain.Date(now)
		loan := &domain.Loan{
			BorrowerID: borrowerID,
			BookID:     book.ID,
			IssueDate:  issued,
			DueDate:    issued.AddDate(0, 0, s.policy.PeriodDays),
			LoanAmount: s.policy.Amount,
			Status:     domain.LoanStatusRequested,
			CreatedOn:  now,
			UpdatedOn:  now,
		}
		if err := repos.Loans.Create(ctx, loan); err != nil {
			return err
		}

		librarians, err := repos.Users.ListIDsByRole(ctx, domain.UserRoleLibrarian)
		if err != nil {
			return err
		}
		deliveries := []notify.Delivery{{
			UserID: borrowerID,
			Message: notify.Message{
				Type:   domain.NotificationLoanRequested,
				Title:  "Loan Requested",
				Body:   fmt.Sprintf("Loan Requested: Loan ID %d for Book '%s'. Waiting for librarian to approve.", loan.ID, book.Title),
				LoanID: loan.ID,
			},
		}}
		deliveries = append(deliveries, notify.To(librarians, notify.Message{
			Type:   domain.NotificationLoanRequested,
			Title:  "Loan Approval Request",
			Body:   fmt.Sprintf("Approval request for loan ID %d has been made by User ID : %d. Please review.", loan.ID, borrowerID),
			LoanID: loan.ID,
		})...)
		if err := notify.NotifyEach(ctx, sink, deliveries); err != nil {
			return err
		}

		result = &domain.LoanRequestResult{
			Loan:    loan,
			Message: fmt.Sprintf("Loan request created with ID: %d", loan.ID),
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.RequestLoan", err)
		return nil, err
	}
	logger.ExitMethod("loanService.RequestLoan", "message", result.Message)
	return result, nil
}

// noCopies records the availability estimate for a book that cannot take another request.
func (s *loanService) noCopies(ctx context.Context, repos repository.Repos, ledger *inventory.Ledger, book *domain.Book) (*domain.LoanRequestResult, error) {
	next, err := ledger.NextAvailableEstimate(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if err := repos.Books.SetNextAvailable(ctx, book.ID, next); err != nil {
		return nil, err
	}
	if next == nil {
		return &domain.LoanRequestResult{
			Message: "Currently there are no copies of this book available with the library.",
		}, nil
	}
	return &domain.LoanRequestResult{
		NextAvailableOn: next,
		Message:         fmt.Sprintf("No copies available. Next available date: %s", next.Format(dateLayout)),
	}, nil
}

func (s *loanService) ApproveLoan(ctx context.Context, librarianID, loanID int32, dueDate *time.Time) (*domain.Loan, error) {
	logger.EnterMethod("loanService.ApproveLoan", "librarianID", librarianID, "loanID", loanID)
	var loan *domain.Loan
	err := s.mutate(ctx, "approve_loan", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		if _, err := requireRole(ctx, repos.Users, librarianID, domain.UserRoleLibrarian); err != nil {
			return err
		}
		var err error
		if loan, err = repos.Loans.LockByID(ctx, loanID); err != nil {
			return err
		}
		if _, err := loan.Apply(domain.LoanEventApprove); err != nil {
			return err
		}
		if dueDate != nil {
			due := domain.Date(*dueDate)
			if due.Before(loan.IssueDate) {
				return domain.InvalidArgument("Due date cannot be before the issue date.")
			}
			loan.DueDate = due
		}
		if _, err := inventory.NewLedger(repos.Books, repos.Loans).Reserve(ctx, loan.BookID); err != nil {
			return err
		}

		now := s.clock.Now()
		loan.ApprovedAt = &now
		loan.UpdatedOn = now
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return sink.Notify(ctx, loan.BorrowerID, notify.Message{
			Type:   domain.NotificationLoanApproved,
			Title:  "Loan Approved",
			Body:   fmt.Sprintf("Your loan request for book ID %d has been approved. Please make sure you return the book by %s to avoid fine.", loan.BookID, loan.DueDate.Format(dateLayout)),
			LoanID: loan.ID,
		})
	})
	return s.finish("loanService.ApproveLoan", loan, err)
}

func (s *loanService) CancelLoan(ctx context.Context, memberID, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.CancelLoan", "memberID", memberID, "loanID", loanID)
	var loan *domain.Loan
	err := s.mutate(ctx, "cancel_loan", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		if _, err := requireRole(ctx, repos.Users, memberID, domain.UserRoleMember); err != nil {
			return err
		}
		var err error
		if loan, err = repos.Loans.LockByID(ctx, loanID); err != nil {
			return err
		}
		if loan.BorrowerID != memberID {
			return domain.Forbidden("You are not authorized to cancel this loan.")
		}
		if _, err := loan.Apply(domain.LoanEventMemberCancel); err != nil {
			return err
		}
		loan.UpdatedOn = s.clock.Now()
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return s.notifyWithLibrarians(ctx, repos, sink, loan, domain.NotificationCancelRequested,
			"Loan Cancellation Requested",
			fmt.Sprintf("Loan cancellation requested for Loan ID %d.", loan.ID),
			fmt.Sprintf("Cancellation request for loan ID %d has been made by User ID : %d. Please review.", loan.ID, memberID))
	})
	return s.finish("loanService.CancelLoan", loan, err)
}

func (s *loanService) LibrarianCancelLoan(ctx context.Context, librarianID, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.LibrarianCancelLoan", "librarianID", librarianID, "loanID", loanID)
	var loan *domain.Loan
	err := s.mutate(ctx, "librarian_cancel_loan", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		if _, err := requireRole(ctx, repos.Users, librarianID, domain.UserRoleLibrarian); err != nil {
			return err
		}
		var err error
		if loan, err = repos.Loans.LockByID(ctx, loanID); err != nil {
			return err
		}
		from, err := loan.Apply(domain.LoanEventLibrarianCancel)
		if err != nil {
			return err
		}
		// An approved loan holds a copy; canceling it gives the copy back.
		if from.HoldsCopy() {
			if _, err := inventory.NewLedger(repos.Books, repos.Loans).Release(ctx, loan.BookID); err != nil {
				return err
			}
		}
		loan.UpdatedOn = s.clock.Now()
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return sink.Notify(ctx, loan.BorrowerID, notify.Message{
			Type:   domain.NotificationLoanCanceled,
			Title:  "Loan Canceled",
			Body:   fmt.Sprintf("Your loan request for book ID %d has been canceled.", loan.BookID),
			LoanID: loan.ID,
		})
	})
	return s.finish("loanService.LibrarianCancelLoan", loan, err)
}

func (s *loanService) RequestReturn(ctx context.Context, memberID, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.RequestReturn", "memberID", memberID, "loanID", loanID)
	var loan *domain.Loan
	err := s.mutate(ctx, "request_return", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		if _, err := requireRole(ctx, repos.Users, memberID, domain.UserRoleMember); err != nil {
			return err
		}
		var err error
		if loan, err = repos.Loans.LockByID(ctx, loanID); err != nil {
			return err
		}
		if loan.BorrowerID != memberID {
			return domain.Forbidden("You are not authorized to return this book.")
		}
		if _, err := loan.Apply(domain.LoanEventRequestReturn); err != nil {
			return err
		}
		loan.UpdatedOn = s.clock.Now()
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return s.notifyWithLibrarians(ctx, repos, sink, loan, domain.NotificationReturnRequested,
			"Book Return Requested",
			fmt.Sprintf("Book return requested for Loan ID %d.", loan.ID),
			fmt.Sprintf("Return request for loan ID %d has been made by User ID : %d. Please review.", loan.ID, memberID))
	})
	return s.finish("loanService.RequestReturn", loan, err)
}

func (s *loanService) AcceptReturn(ctx context.Context, librarianID, loanID int32) (*domain.Loan, error) {
	logger.EnterMethod("loanService.AcceptReturn", "librarianID", librarianID, "loanID", loanID)
	var loan *domain.Loan
	err := s.mutate(ctx, "accept_return", func(ctx context.Context, repos repository.Repos, sink notify.Sink) error {
		if _, err := requireRole(ctx, repos.Users, librarianID, domain.UserRoleLibrarian); err != nil {
			return err
		}
		var err error
		if loan, err = repos.Loans.LockByID(ctx, loanID); err != nil {
			return err
		}
		if _, err := loan.Apply(domain.LoanEventAcceptReturn); err != nil {
			return err
		}
		if _, err := inventory.NewLedger(repos.Books, repos.Loans).Release(ctx, loan.BookID); err != nil {
			return err
		}

		now := s.clock.Now()
		// Fine is frozen at the amount owed on the return date.
		loan.AssessOverdue(domain.Date(now), s.policy.FinePerDay)
		loan.UpdatedOn = now
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return err
		}
		return sink.Notify(ctx, loan.BorrowerID, notify.Message{
			Type:   domain.NotificationReturnAccepted,
			Title:  "Book Returned",
			Body:   fmt.Sprintf("Book ID %d has been returned successfully.", loan.BookID),
			LoanID: loan.ID,
		})
	})
	return s.finish("loanService.AcceptReturn", loan, err)
}

// GetLoan returns a loan to its borrower or to any librarian.
func (s *loanService) GetLoan(ctx context.Context, userID, loanID int32) (*domain.Loan, error) {
	repos := s.store.Repos()
	user, err := lookupUser(ctx, repos.Users, userID)
	if err != nil {
		return nil, err
	}
	loan, err := repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.UserRoleLibrarian && loan.BorrowerID != userID {
		return nil, domain.Forbidden("You are not authorized to view this loan.")
	}
	return loan, nil
}

// ListLoans pages through loans. Members only ever see their own.
func (s *loanService) ListLoans(ctx context.Context, userID int32, filter domain.LoanFilter) ([]domain.Loan, int32, error) {
	repos := s.store.Repos()
	user, err := lookupUser(ctx, repos.Users, userID)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.InvalidArgument("Unknown loan status %q.", filter.Status)
	}
	if user.Role != domain.UserRoleLibrarian {
		filter.BorrowerID = userID
	}
	filter.Page, filter.PageSize = domain.NormalizePage(filter.Page, filter.PageSize)
	return repos.Loans.List(ctx, filter)
}

func (s *loanService) notifyWithLibrarians(
	ctx context.Context,
	repos repository.Repos,
	sink notify.Sink,
	loan *domain.Loan,
	kind domain.NotificationType,
	title, toBorrower, toLibrarians string,
) error {
	librarians, err := repos.Users.ListIDsByRole(ctx, domain.UserRoleLibrarian)
	if err != nil {
		return err
	}
	deliveries := []notify.Delivery{{
		UserID:  loan.BorrowerID,
		Message: notify.Message{Type: kind, Title: title, Body: toBorrower, LoanID: loan.ID},
	}}
	deliveries = append(deliveries, notify.To(librarians, notify.Message{
		Type:   kind,
		Title:  title,
		Body:   toLibrarians,
		LoanID: loan.ID,
	})...)
	return notify.NotifyEach(ctx, sink, deliveries)
}

func (s *loanService) finish(method string, loan *domain.Loan, err error) (*domain.Loan, error) {
	if err != nil {
		logger.ExitMethodWithError(method, err)
		return nil, err
	}
	logger.ExitMethod(method, "loanID", loan.ID, "status", loan.Status)
	return loan, nil
}
