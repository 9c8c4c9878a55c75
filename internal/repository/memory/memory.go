// Package memory is an in-process store with the same transactional contract as the
// postgres store. Transactions are serialized and applied by swapping in a working copy.
package memory

import (
	"context"
	"errors"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"
)

type state struct {
	books   map[int32]*domain.Book
	authors map[int32]*domain.Author
	loans   map[int32]*domain.Loan
	notes   map[int32]*domain.Notification
	users   map[int32]*domain.User
	// bookAuthors holds author IDs per book ID.
	bookAuthors map[int32][]int32
	nextLoanID  int32
	nextNoteID  int32
}

func newState() *state {
	return &state{
		books:   make(map[int32]*domain.Book),
		authors: make(map[int32]*domain.Author),
		loans:   make(map[int32]*domain.Loan),
		notes:   make(map[int32]*domain.Notification),
		users:   make(map[int32]*domain.User),

		bookAuthors: make(map[int32][]int32),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextLoanID, c.nextNoteID = s.nextLoanID, s.nextNoteID
	for id, b := range s.books {
		c.books[id] = copyBook(b)
	}
	for id, a := range s.authors {
		cp := *a
		c.authors[id] = &cp
	}
	for id, ids := range s.bookAuthors {
		c.bookAuthors[id] = append([]int32(nil), ids...)
	}
	for id, l := range s.loans {
		c.loans[id] = copyLoan(l)
	}
	for id, n := range s.notes {
		c.notes[id] = copyNotification(n)
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	return c
}

func copyBook(b *domain.Book) *domain.Book {
	cp := *b
	if b.NextAvailableOn != nil {
		t := *b.NextAvailableOn
		cp.NextAvailableOn = &t
	}
	return &cp
}

func copyLoan(l *domain.Loan) *domain.Loan {
	cp := *l
	if l.ApprovedAt != nil {
		t := *l.ApprovedAt
		cp.ApprovedAt = &t
	}
	return &cp
}

func copyNotification(n *domain.Notification) *domain.Notification {
	cp := *n
	if n.Attributes != nil {
		cp.Attributes = make(map[string]string, len(n.Attributes))
		for k, v := range n.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

// access runs fn against a state. Store-level access takes the store lock; inside a
// transaction fn runs directly on the working copy.
type access func(ctx context.Context, fn func(*state) error) error

type Store struct {
	sem       chan struct{}
	committed *state
	// lockTimeout bounds how long a caller waits for the store.
	lockTimeout time.Duration
}

// NewStore returns an empty store. lockTimeout <= 0 means wait until ctx is done.
func NewStore(lockTimeout time.Duration) *Store {
	return &Store{
		sem:         make(chan struct{}, 1),
		committed:   newState(),
		lockTimeout: lockTimeout,
	}
}

func (s *Store) acquire(ctx context.Context) error {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Busy(ctx.Err(), "The library is busy, please retry")
		}
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.sem }

func (s *Store) locked(ctx context.Context, fn func(*state) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(s.committed)
}

func reposOver(a access) repository.Repos {
	return repository.Repos{
		Books:         &bookRepository{access: a},
		Loans:         &loanRepository{access: a},
		Notifications: &notificationRepository{access: a},
		Users:         &userRepository{access: a},
	}
}

func (s *Store) Repos() repository.Repos {
	return reposOver(s.locked)
}

func (s *Store) RunInTx(ctx context.Context, fn repository.TxFunc) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	work := s.committed.clone()
	direct := func(_ context.Context, f func(*state) error) error { return f(work) }

	if err := fn(ctx, reposOver(direct)); err != nil {
		logger.Debug("Memory transaction rolled back", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Busy(err, "The library is busy, please retry")
	}
	s.committed = work
	return nil
}

// Seed helpers load reference data outside any transaction.

func (s *Store) AddUser(ctx context.Context, u domain.User) error {
	return s.locked(ctx, func(st *state) error {
		st.users[u.ID] = &u
		return nil
	})
}

func (s *Store) AddBook(ctx context.Context, b domain.Book) error {
	if err := b.CheckCounters(); err != nil {
		return err
	}
	return s.locked(ctx, func(st *state) error {
		st.books[b.ID] = copyBook(&b)
		return nil
	})
}

func (s *Store) AddAuthor(ctx context.Context, a domain.Author) error {
	return s.locked(ctx, func(st *state) error {
		st.authors[a.ID] = &a
		return nil
	})
}

// AddLoan stores l as-is, assigning an ID when l.ID is zero.
// LinkAuthors records authorIDs as the authors of a book.
func (s *Store) LinkAuthors(ctx context.Context, bookID int32, authorIDs []int32) error {
	return s.locked(ctx, func(st *state) error {
		if _, ok := st.books[bookID]; !ok {
			return domain.NotFound("Book %d not found.", bookID)
		}
		for _, id := range authorIDs {
			if _, ok := st.authors[id]; !ok {
				return domain.NotFound("Author %d not found.", id)
			}
		}
		st.bookAuthors[bookID] = append([]int32(nil), authorIDs...)
		return nil
	})
}

func (s *Store) AddLoan(ctx context.Context, l domain.Loan) (int32, error) {
	var id int32
	err := s.locked(ctx, func(st *state) error {
		if l.ID == 0 {
			st.nextLoanID++
			l.ID = st.nextLoanID
		} else if l.ID > st.nextLoanID {
			st.nextLoanID = l.ID
		}
		st.loans[l.ID] = copyLoan(&l)
		id = l.ID
		return nil
	})
	return id, err
}
