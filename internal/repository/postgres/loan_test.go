package postgres_test

import (
	"context"
	"testing"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loanCols = []string{"id", "borrower_id", "book_id", "issue_date", "due_date", "loan_amount", "fine", "overdue", "status", "approved_at", "created_on", "updated_on"}

func TestLoanRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		loan := &domain.Loan{
			BorrowerID: 3,
			BookID:     2,
			IssueDate:  now,
			DueDate:    now.AddDate(0, 0, 15),
			LoanAmount: 50,
			Status:     domain.LoanStatusRequested,
			CreatedOn:  now,
			UpdatedOn:  now,
		}

		mock.ExpectQuery("INSERT INTO loans").
			WithArgs(loan.BorrowerID, loan.BookID, loan.IssueDate, loan.DueDate, loan.LoanAmount, loan.Fine, loan.Overdue, loan.Status, loan.CreatedOn, loan.UpdatedOn).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := repo.Create(ctx, loan)
		assert.NoError(t, err)
		assert.Equal(t, int32(1), loan.ID)
	})

	t.Run("Duplicate open loan", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO loans").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, &domain.Loan{BorrowerID: 3, BookID: 2, Status: domain.LoanStatusRequested})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_LockByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(loanCols).
			AddRow(1, 3, 2, now, now.AddDate(0, 0, 15), 50, 0, false, "APPROVED", now, now, now)
		mock.ExpectQuery("SELECT (.+) FROM loans WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(1)).
			WillReturnRows(rows)

		loan, err := repo.LockByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusApproved, loan.Status)
		assert.NotNil(t, loan.ApprovedAt)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM loans WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(9)).
			WillReturnRows(sqlmock.NewRows(loanCols))

		loan, err := repo.LockByID(ctx, 9)
		assert.Nil(t, loan)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Lock timeout is busy", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM loans WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(1)).
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})

		_, err := repo.LockByID(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrBusy)
	})
}

func TestLoanRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	now := time.Now()
	loan := &domain.Loan{ID: 4, DueDate: now, Status: domain.LoanStatusApproved, ApprovedAt: &now, UpdatedOn: now}

	mock.ExpectExec("UPDATE loans SET").
		WithArgs(loan.DueDate, loan.Fine, loan.Overdue, loan.Status, sqlmock.AnyArg(), loan.UpdatedOn, loan.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Update(context.Background(), loan))

	mock.ExpectExec("UPDATE loans SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), loan), domain.ErrNotFound)
}

func TestLoanRepository_AvailabilityQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	ctx := context.Background()

	t.Run("HasOpenLoan", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int32(3), int32(2)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.HasOpenLoan(ctx, 3, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("CountPendingHolds", func(t *testing.T) {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM loans WHERE book_id = \\$1").
			WithArgs(int32(2)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		n, err := repo.CountPendingHolds(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(2), n)
	})

	t.Run("EarliestOpenDueDate", func(t *testing.T) {
		due := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT MIN\\(due_date\\) FROM loans").
			WithArgs(int32(2)).
			WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(due))

		got, err := repo.EarliestOpenDueDate(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Equal(due))
	})

	t.Run("EarliestOpenDueDate none", func(t *testing.T) {
		mock.ExpectQuery("SELECT MIN\\(due_date\\) FROM loans").
			WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

		got, err := repo.EarliestOpenDueDate(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "loans" WHERE (.+)"borrower_id" = \$1(.+)"status" NOT IN`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT id, borrower_id, (.+) FROM "loans" WHERE (.+) ORDER BY "created_on" DESC, "id" DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows(loanCols).
			AddRow(7, 3, 2, now, now, 50, 0, false, "REQUESTED", nil, now, now))

	loans, total, err := repo.List(context.Background(), domain.LoanFilter{BorrowerID: 3, OpenOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	require.Len(t, loans, 1)
	assert.Equal(t, int32(7), loans[0].ID)
	assert.Nil(t, loans[0].ApprovedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_Sweep(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewLoanRepository(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))
	locked, err := repo.TryLockSweep(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	mock.ExpectQuery("SELECT (.+) FROM loans WHERE status NOT IN (.+) ORDER BY id FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(loanCols).
			AddRow(1, 3, 2, now, now, 50, 0, false, "APPROVED", now, now, now).
			AddRow(2, 4, 2, now, now, 50, 0, false, "REQUESTED", nil, now, now))
	loans, err := repo.ListOpenForUpdate(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 2)

	mock.ExpectExec("UPDATE loans SET overdue = \\$1, fine = \\$2").
		WithArgs(true, int32(40), now, int32(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateAssessment(ctx, 1, true, 40, now))

	assert.NoError(t, mock.ExpectationsWereMet())
}
