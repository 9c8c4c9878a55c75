package memory

import (
	"context"
	"sort"
	"time"

	"library-backend/internal/domain"
)

type bookRepository struct{ access access }

func (r *bookRepository) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	var out *domain.Book
	err := r.access(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return domain.NotFound("Book %d not found.", id)
		}
		out = copyBook(b)
		return nil
	})
	return out, err
}

func (r *bookRepository) GetByTitle(ctx context.Context, title string) (*domain.Book, error) {
	var out *domain.Book
	err := r.access(ctx, func(st *state) error {
		for _, b := range st.books {
			if b.Title == title && (out == nil || b.ID < out.ID) {
				out = copyBook(b)
			}
		}
		if out == nil {
			return domain.NotFound("Book '%s' not found.", title)
		}
		return nil
	})
	return out, err
}

// LockByID is GetByID: a transaction already holds the whole store.
func (r *bookRepository) LockByID(ctx context.Context, id int32) (*domain.Book, error) {
	return r.GetByID(ctx, id)
}

func (r *bookRepository) UpdateCounters(ctx context.Context, b *domain.Book) error {
	return r.access(ctx, func(st *state) error {
		cur, ok := st.books[b.ID]
		if !ok {
			return domain.NotFound("Book %d not found.", b.ID)
		}
		next := copyBook(cur)
		next.CopiesAvailable, next.CopiesOnRent = b.CopiesAvailable, b.CopiesOnRent
		next.NextAvailableOn = copyBook(b).NextAvailableOn
		if err := next.CheckCounters(); err != nil {
			return err
		}
		st.books[b.ID] = next
		return nil
	})
}

func (r *bookRepository) SetNextAvailable(ctx context.Context, id int32, on *time.Time) error {
	return r.access(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return domain.NotFound("Book %d not found.", id)
		}
		if on == nil {
			b.NextAvailableOn = nil
		} else {
			t := *on
			b.NextAvailableOn = &t
		}
		return nil
	})
}

func (r *bookRepository) FindAuthorsByPenName(ctx context.Context, penNames []string) (map[string]domain.Author, error) {
	found := make(map[string]domain.Author)
	err := r.access(ctx, func(st *state) error {
		want := make(map[string]bool, len(penNames))
		for _, n := range penNames {
			want[n] = true
		}
		for _, a := range st.authors {
			if want[a.PenName] {
				found[a.PenName] = *a
			}
		}
		return nil
	})
	return found, err
}

type loanRepository struct{ access access }

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	return r.access(ctx, func(st *state) error {
		for _, existing := range st.loans {
			if existing.BorrowerID == l.BorrowerID && existing.BookID == l.BookID && existing.Status.IsOpen() {
				return domain.Conflict("You have already loaned this book.")
			}
		}
		st.nextLoanID++
		l.ID = st.nextLoanID
		st.loans[l.ID] = copyLoan(l)
		return nil
	})
}

func (r *loanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	var out *domain.Loan
	err := r.access(ctx, func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.NotFound("Loan not found.")
		}
		out = copyLoan(l)
		return nil
	})
	return out, err
}

func (r *loanRepository) LockByID(ctx context.Context, id int32) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	return r.access(ctx, func(st *state) error {
		cur, ok := st.loans[l.ID]
		if !ok {
			return domain.NotFound("Loan not found.")
		}
		next := copyLoan(l)
		next.BorrowerID, next.BookID, next.IssueDate, next.CreatedOn = cur.BorrowerID, cur.BookID, cur.IssueDate, cur.CreatedOn
		next.LoanAmount = cur.LoanAmount
		st.loans[l.ID] = next
		return nil
	})
}

func (r *loanRepository) HasOpenLoan(ctx context.Context, borrowerID, bookID int32) (bool, error) {
	var found bool
	err := r.access(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.BorrowerID == borrowerID && l.BookID == bookID && l.Status.IsOpen() {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *loanRepository) CountPendingHolds(ctx context.Context, bookID int32) (int32, error) {
	var n int32
	err := r.access(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.BookID == bookID && l.Status.IsPendingHold() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *loanRepository) EarliestOpenDueDate(ctx context.Context, bookID int32) (*time.Time, error) {
	var earliest *time.Time
	err := r.access(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.BookID != bookID || !l.Status.IsOpen() {
				continue
			}
			if earliest == nil || l.DueDate.Before(*earliest) {
				d := l.DueDate
				earliest = &d
			}
		}
		return nil
	})
	return earliest, err
}

func (r *loanRepository) List(ctx context.Context, f domain.LoanFilter) ([]domain.Loan, int32, error) {
	var matched []domain.Loan
	err := r.access(ctx, func(st *state) error {
		for _, l := range st.loans {
			if f.BorrowerID != 0 && l.BorrowerID != f.BorrowerID {
				continue
			}
			if f.BookID != 0 && l.BookID != f.BookID {
				continue
			}
			if f.Status != "" && l.Status != f.Status {
				continue
			}
			if f.OpenOnly && !l.Status.IsOpen() {
				continue
			}
			matched = append(matched, *copyLoan(l))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedOn.Equal(matched[j].CreatedOn) {
			return matched[i].CreatedOn.After(matched[j].CreatedOn)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int32(len(matched))
	page, pageSize := domain.NormalizePage(f.Page, f.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// TryLockSweep always succeeds: the store lock is already exclusive.
func (r *loanRepository) TryLockSweep(ctx context.Context) (bool, error) {
	return true, nil
}

func (r *loanRepository) ListOpenForUpdate(ctx context.Context) ([]domain.Loan, error) {
	var open []domain.Loan
	err := r.access(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.Status.IsOpen() {
				open = append(open, *copyLoan(l))
			}
		}
		return nil
	})
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, err
}

func (r *loanRepository) UpdateAssessment(ctx context.Context, id int32, overdue bool, fine int32, at time.Time) error {
	return r.access(ctx, func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.NotFound("Loan not found.")
		}
		l.Overdue, l.Fine, l.UpdatedOn = overdue, fine, at
		return nil
	})
}

type notificationRepository struct{ access access }

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.access(ctx, func(st *state) error {
		st.nextNoteID++
		n.ID = st.nextNoteID
		st.notes[n.ID] = copyNotification(n)
		return nil
	})
}

func (r *notificationRepository) GetByID(ctx context.Context, id int32) (*domain.Notification, error) {
	var out *domain.Notification
	err := r.access(ctx, func(st *state) error {
		n, ok := st.notes[id]
		if !ok {
			return domain.NotFound("Notification not found")
		}
		out = copyNotification(n)
		return nil
	})
	return out, err
}

func (r *notificationRepository) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	var mine []domain.Notification
	err := r.access(ctx, func(st *state) error {
		for _, n := range st.notes {
			if n.UserID == userID {
				mine = append(mine, *copyNotification(n))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].CreatedOn.Equal(mine[j].CreatedOn) {
			return mine[i].CreatedOn.Before(mine[j].CreatedOn)
		}
		return mine[i].ID < mine[j].ID
	})

	total := int32(len(mine))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	return r.access(ctx, func(st *state) error {
		n, ok := st.notes[id]
		if !ok || n.UserID != userID {
			return domain.NotFound("Notification not found")
		}
		n.IsRead = true
		return nil
	})
}

type userRepository struct{ access access }

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	var out *domain.User
	err := r.access(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.NotFound("User %d not found", id)
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *userRepository) ListIDsByRole(ctx context.Context, role domain.UserRole) ([]int32, error) {
	var ids []int32
	err := r.access(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Role == role {
				ids = append(ids, u.ID)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}
