package postgres

import (
	"context"
	"database/sql"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"

	"github.com/lib/pq"
)

const bookColumns = `id, title, COALESCE(genre, ''), total_copies, copies_available, copies_on_rent, next_available_on`

type bookRepository struct {
	db DBTX
}

func NewBookRepository(db DBTX) repository.BookRepository {
	return &bookRepository{db: db}
}

func scanBook(row interface{ Scan(...any) error }) (*domain.Book, error) {
	b := &domain.Book{}
	var next sql.NullTime
	if err := row.Scan(&b.ID, &b.Title, &b.Genre, &b.TotalCopies, &b.CopiesAvailable, &b.CopiesOnRent, &next); err != nil {
		return nil, err
	}
	if next.Valid {
		t := next.Time
		b.NextAvailableOn = &t
	}
	return b, nil
}

func (r *bookRepository) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	b, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "get book", func() error { return domain.NotFound("Book %d not found.", id) })
	}
	return b, nil
}

func (r *bookRepository) GetByTitle(ctx context.Context, title string) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE title = $1 ORDER BY id LIMIT 1`
	b, err := scanBook(r.db.QueryRowContext(ctx, query, title))
	if err != nil {
		return nil, notFoundOr(err, "get book by title", func() error { return domain.NotFound("Book '%s' not found.", title) })
	}
	return b, nil
}

func (r *bookRepository) LockByID(ctx context.Context, id int32) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "books", "bookID", id)
	b, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	logger.DatabaseResult("SELECT FOR UPDATE", 1, err, "bookID", id)
	if err != nil {
		return nil, notFoundOr(err, "lock book", func() error { return domain.NotFound("Book %d not found.", id) })
	}
	return b, nil
}

func (r *bookRepository) UpdateCounters(ctx context.Context, b *domain.Book) error {
	query := `UPDATE books SET copies_available = $1, copies_on_rent = $2, next_available_on = $3 WHERE id = $4`
	logger.DatabaseCall("UPDATE", "books", "bookID", b.ID, "available", b.CopiesAvailable, "onRent", b.CopiesOnRent)
	res, err := r.db.ExecContext(ctx, query, b.CopiesAvailable, b.CopiesOnRent, b.NextAvailableOn, b.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookID", b.ID)
		return translateError(err, "update book counters")
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "bookID", b.ID)
	if n == 0 {
		return domain.NotFound("Book %d not found.", b.ID)
	}
	return nil
}

func (r *bookRepository) SetNextAvailable(ctx context.Context, id int32, on *time.Time) error {
	query := `UPDATE books SET next_available_on = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, on, id)
	return translateError(err, "set next available")
}

func (r *bookRepository) FindAuthorsByPenName(ctx context.Context, penNames []string) (map[string]domain.Author, error) {
	found := make(map[string]domain.Author)
	if len(penNames) == 0 {
		return found, nil
	}
	query := `SELECT id, pen_name, COALESCE(email, '') FROM authors WHERE pen_name = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(penNames))
	if err != nil {
		return nil, translateError(err, "find authors")
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.PenName, &a.Email); err != nil {
			return nil, err
		}
		found[a.PenName] = a
	}
	return found, rows.Err()
}
