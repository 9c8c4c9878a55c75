package memory

import (
	"context"
	"testing"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := NewStore(50 * time.Millisecond)
	require.NoError(t, s.AddBook(ctx, domain.Book{ID: 1, Title: "Dune", TotalCopies: 2, CopiesAvailable: 2}))
	require.NoError(t, s.AddUser(ctx, domain.User{ID: 10, FirstName: "Mia", Role: domain.UserRoleMember}))
	require.NoError(t, s.AddUser(ctx, domain.User{ID: 20, FirstName: "Lee", Role: domain.UserRoleLibrarian}))
	require.NoError(t, s.AddAuthor(ctx, domain.Author{ID: 1, PenName: "Frank Herbert"}))
	return s
}

func TestStore_RunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return repos.Loans.Create(ctx, &domain.Loan{BorrowerID: 10, BookID: 1, Status: domain.LoanStatusRequested})
		})
		require.NoError(t, err)

		loan, err := s.Repos().Loans.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusRequested, loan.Status)
	})

	t.Run("Rollback discards writes", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			if err := repos.Loans.Create(ctx, &domain.Loan{BorrowerID: 10, BookID: 1, Status: domain.LoanStatusRequested}); err != nil {
				return err
			}
			return domain.Conflict("stop")
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, err = s.Repos().Loans.GetByID(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Waiting past the lock timeout is busy", func(t *testing.T) {
		s := seeded(t)
		entered := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_ = s.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
				close(entered)
				<-done
				return nil
			})
		}()
		<-entered

		err := s.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error { return nil })
		close(done)
		assert.ErrorIs(t, err, domain.ErrBusy)
	})

	t.Run("Counter updates are checked", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return repos.Books.UpdateCounters(ctx, &domain.Book{ID: 1, CopiesAvailable: 2, CopiesOnRent: 1})
		})
		assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	})
}

func TestLoanRepository_Queries(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	due := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.AddLoan(ctx, domain.Loan{BorrowerID: 10, BookID: 1, DueDate: due, Status: domain.LoanStatusApproved})
	require.NoError(t, err)
	_, err = s.AddLoan(ctx, domain.Loan{BorrowerID: 11, BookID: 1, DueDate: due.AddDate(0, 0, 3), Status: domain.LoanStatusRequested})
	require.NoError(t, err)
	_, err = s.AddLoan(ctx, domain.Loan{BorrowerID: 12, BookID: 1, DueDate: due.AddDate(0, 0, -10), Status: domain.LoanStatusReturned})
	require.NoError(t, err)

	loans := s.Repos().Loans

	earliest, err := loans.EarliestOpenDueDate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, earliest.Equal(due))

	holds, err := loans.CountPendingHolds(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), holds)

	open, err := loans.HasOpenLoan(ctx, 10, 1)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = loans.HasOpenLoan(ctx, 12, 1)
	require.NoError(t, err)
	assert.False(t, open)

	list, total, err := loans.List(ctx, domain.LoanFilter{BookID: 1, OpenOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	assert.Len(t, list, 2)

	err = loans.Create(ctx, &domain.Loan{BorrowerID: 10, BookID: 1, Status: domain.LoanStatusRequested})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestBookRepository_FindAuthorsByPenName(t *testing.T) {
	s := seeded(t)
	found, err := s.Repos().Books.FindAuthorsByPenName(context.Background(), []string{"Frank Herbert", "Nobody"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, int32(1), found["Frank Herbert"].ID)
}

func TestNotificationRepository_OwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	notes := s.Repos().Notifications

	n := &domain.Notification{UserID: 10, Title: "t", Message: "m", CreatedOn: time.Now()}
	require.NoError(t, notes.Create(ctx, n))

	assert.ErrorIs(t, notes.MarkAsRead(ctx, n.ID, 20), domain.ErrNotFound)
	require.NoError(t, notes.MarkAsRead(ctx, n.ID, 10))

	list, total, err := notes.List(ctx, 10, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.True(t, list[0].IsRead)
}

func TestLoanRepository_ListClampsPageSize(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	for i := int32(0); i < 30; i++ {
		_, err := s.AddLoan(ctx, domain.Loan{BorrowerID: 100 + i, BookID: 1, Status: domain.LoanStatusReturned})
		require.NoError(t, err)
	}

	list, total, err := s.Repos().Loans.List(ctx, domain.LoanFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int32(30), total)
	assert.Len(t, list, 30)

	list, _, err = s.Repos().Loans.List(ctx, domain.LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, list, int(domain.DefaultPageSize))
}

func TestNotificationRepository_ListOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	notes := s.Repos().Notifications
	base := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{base.Add(2 * time.Hour), base, base.Add(time.Hour), base} {
		require.NoError(t, notes.Create(ctx, &domain.Notification{UserID: 10, Title: "t", Message: "m", CreatedOn: at}))
	}

	list, total, err := notes.List(ctx, 10, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(4), total)
	require.Len(t, list, 4)
	assert.Equal(t, []int32{2, 4, 3, 1}, []int32{list[0].ID, list[1].ID, list[2].ID, list[3].ID})

	page, _, err := notes.List(ctx, 10, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int32(3), page[0].ID)
}
