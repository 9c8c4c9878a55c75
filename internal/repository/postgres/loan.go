package postgres

import (
	"context"
	"database/sql"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

const (
	dialectPostgres = "postgres"

	loanColumns = `id, borrower_id, book_id, issue_date, due_date, loan_amount, fine, overdue, status, approved_at, created_on, updated_on`

	openLoanCondition = `status NOT IN ('RETURNED', 'CANCELED')`

	// sweepLockKey identifies the overdue sweep in pg_try_advisory_xact_lock.
	sweepLockKey int64 = 0x6c6f616e7377
)

var closedStatuses = []any{string(domain.LoanStatusReturned), string(domain.LoanStatusCanceled)}

type loanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) repository.LoanRepository {
	return &loanRepository{db: db}
}

func scanLoan(row interface{ Scan(...any) error }) (*domain.Loan, error) {
	l := &domain.Loan{}
	var approvedAt sql.NullTime
	var status string
	err := row.Scan(&l.ID, &l.BorrowerID, &l.BookID, &l.IssueDate, &l.DueDate, &l.LoanAmount, &l.Fine, &l.Overdue, &status, &approvedAt, &l.CreatedOn, &l.UpdatedOn)
	if err != nil {
		return nil, err
	}
	l.Status = domain.LoanStatus(status)
	if approvedAt.Valid {
		t := approvedAt.Time
		l.ApprovedAt = &t
	}
	return l, nil
}

func scanLoans(rows *sql.Rows) ([]domain.Loan, error) {
	defer rows.Close()
	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	query := `INSERT INTO loans (borrower_id, book_id, issue_date, due_date, loan_amount, fine, overdue, status, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	logger.DatabaseCall("INSERT", "loans", "borrowerID", l.BorrowerID, "bookID", l.BookID)
	err := r.db.QueryRowContext(ctx, query, l.BorrowerID, l.BookID, l.IssueDate, l.DueDate, l.LoanAmount, l.Fine, l.Overdue, l.Status, l.CreatedOn, l.UpdatedOn).Scan(&l.ID)
	logger.DatabaseResult("INSERT", 1, err, "loanID", l.ID)
	if isUniqueViolation(err) {
		return domain.Conflict("You have already loaned this book.")
	}
	return translateError(err, "create loan")
}

func (r *loanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "get loan", func() error { return domain.NotFound("Loan not found.") })
	}
	return l, nil
}

func (r *loanRepository) LockByID(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "lock loan", func() error { return domain.NotFound("Loan not found.") })
	}
	return l, nil
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	query := `UPDATE loans SET due_date = $1, fine = $2, overdue = $3, status = $4, approved_at = $5, updated_on = $6 WHERE id = $7`
	logger.DatabaseCall("UPDATE", "loans", "loanID", l.ID, "status", l.Status)
	res, err := r.db.ExecContext(ctx, query, l.DueDate, l.Fine, l.Overdue, l.Status, l.ApprovedAt, l.UpdatedOn, l.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "loanID", l.ID)
		return translateError(err, "update loan")
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "loanID", l.ID)
	if n == 0 {
		return domain.NotFound("Loan not found.")
	}
	return nil
}

func (r *loanRepository) HasOpenLoan(ctx context.Context, borrowerID, bookID int32) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM loans WHERE borrower_id = $1 AND book_id = $2 AND ` + openLoanCondition + `)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, borrowerID, bookID).Scan(&exists); err != nil {
		return false, translateError(err, "check open loan")
	}
	return exists, nil
}

func (r *loanRepository) CountPendingHolds(ctx context.Context, bookID int32) (int32, error) {
	query := `SELECT count(*) FROM loans WHERE book_id = $1 AND status IN ('REQUESTED', 'CANCEL_REQUESTED')`
	var n int32
	if err := r.db.QueryRowContext(ctx, query, bookID).Scan(&n); err != nil {
		return 0, translateError(err, "count pending holds")
	}
	return n, nil
}

func (r *loanRepository) EarliestOpenDueDate(ctx context.Context, bookID int32) (*time.Time, error) {
	query := `SELECT MIN(due_date) FROM loans WHERE book_id = $1 AND ` + openLoanCondition
	var due sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, bookID).Scan(&due); err != nil {
		return nil, translateError(err, "earliest due date")
	}
	if !due.Valid {
		return nil, nil
	}
	t := due.Time
	return &t, nil
}

func (r *loanRepository) List(ctx context.Context, f domain.LoanFilter) ([]domain.Loan, int32, error) {
	ds := goqu.Dialect(dialectPostgres).From("loans")
	if f.BorrowerID != 0 {
		ds = ds.Where(goqu.C("borrower_id").Eq(f.BorrowerID))
	}
	if f.BookID != 0 {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.OpenOnly {
		ds = ds.Where(goqu.C("status").NotIn(closedStatuses...))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&count); err != nil {
		return nil, 0, translateError(err, "count loans")
	}

	page, pageSize := domain.NormalizePage(f.Page, f.PageSize)
	listSQL, args, err := ds.Select(goqu.L(loanColumns)).
		Order(goqu.C("created_on").Desc(), goqu.C("id").Desc()).
		Limit(uint(pageSize)).
		Offset(uint((page - 1) * pageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	logger.DatabaseCall("SELECT", "loans", "query", listSQL)
	rows, err := r.db.QueryContext(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, translateError(err, "list loans")
	}
	loans, err := scanLoans(rows)
	if err != nil {
		return nil, 0, err
	}
	return loans, count, nil
}

func (r *loanRepository) TryLockSweep(ctx context.Context) (bool, error) {
	var locked bool
	if err := r.db.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, sweepLockKey).Scan(&locked); err != nil {
		return false, translateError(err, "sweep lock")
	}
	return locked, nil
}

func (r *loanRepository) ListOpenForUpdate(ctx context.Context) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` + openLoanCondition + ` ORDER BY id FOR UPDATE`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err, "list open loans")
	}
	return scanLoans(rows)
}

func (r *loanRepository) UpdateAssessment(ctx context.Context, id int32, overdue bool, fine int32, at time.Time) error {
	query := `UPDATE loans SET overdue = $1, fine = $2, updated_on = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, overdue, fine, at, id)
	return translateError(err, "update assessment")
}
