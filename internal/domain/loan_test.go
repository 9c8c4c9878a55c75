package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLoanStatus_Next(t *testing.T) {
	cases := []struct {
		from  LoanStatus
		event LoanEvent
		to    LoanStatus
		ok    bool
	}{
		{LoanStatusRequested, LoanEventApprove, LoanStatusApproved, true},
		{LoanStatusApproved, LoanEventApprove, LoanStatusApproved, false},
		{LoanStatusCancelRequested, LoanEventApprove, LoanStatusCancelRequested, false},
		{LoanStatusRequested, LoanEventMemberCancel, LoanStatusCancelRequested, true},
		{LoanStatusApproved, LoanEventMemberCancel, LoanStatusApproved, false},
		{LoanStatusCancelRequested, LoanEventMemberCancel, LoanStatusCancelRequested, false},
		{LoanStatusRequested, LoanEventLibrarianCancel, LoanStatusCanceled, true},
		{LoanStatusCancelRequested, LoanEventLibrarianCancel, LoanStatusCanceled, true},
		{LoanStatusApproved, LoanEventLibrarianCancel, LoanStatusCanceled, true},
		{LoanStatusReturnRequested, LoanEventLibrarianCancel, LoanStatusCanceled, true},
		{LoanStatusCanceled, LoanEventLibrarianCancel, LoanStatusCanceled, false},
		{LoanStatusReturned, LoanEventLibrarianCancel, LoanStatusReturned, false},
		{LoanStatusApproved, LoanEventRequestReturn, LoanStatusReturnRequested, true},
		{LoanStatusRequested, LoanEventRequestReturn, LoanStatusRequested, false},
		{LoanStatusReturnRequested, LoanEventRequestReturn, LoanStatusReturnRequested, false},
		{LoanStatusApproved, LoanEventAcceptReturn, LoanStatusReturned, true},
		{LoanStatusReturnRequested, LoanEventAcceptReturn, LoanStatusReturned, true},
		{LoanStatusRequested, LoanEventAcceptReturn, LoanStatusRequested, false},
		{LoanStatusReturned, LoanEventAcceptReturn, LoanStatusReturned, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			got, err := tc.from.Next(tc.event)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConflict))
			}
			assert.Equal(t, tc.to, got)
		})
	}
}

func TestLoanStatus_TerminalStatesAcceptNothing(t *testing.T) {
	events := []LoanEvent{LoanEventApprove, LoanEventMemberCancel, LoanEventLibrarianCancel, LoanEventRequestReturn, LoanEventAcceptReturn}
	for _, s := range []LoanStatus{LoanStatusReturned, LoanStatusCanceled} {
		for _, e := range events {
			_, err := s.Next(e)
			assert.ErrorIs(t, err, ErrConflict, "%s/%s", s, e)
		}
	}
}

func TestLoanStatus_Views(t *testing.T) {
	assert.True(t, LoanStatusRequested.IsOpen())
	assert.True(t, LoanStatusReturnRequested.IsOpen())
	assert.False(t, LoanStatusReturned.IsOpen())
	assert.False(t, LoanStatusCanceled.IsOpen())

	assert.True(t, LoanStatusRequested.IsPendingHold())
	assert.True(t, LoanStatusCancelRequested.IsPendingHold())
	assert.False(t, LoanStatusApproved.IsPendingHold())

	assert.True(t, LoanStatusApproved.HoldsCopy())
	assert.True(t, LoanStatusReturnRequested.HoldsCopy())
	assert.False(t, LoanStatusRequested.HoldsCopy())
}

func TestLoan_Apply(t *testing.T) {
	l := &Loan{Status: LoanStatusApproved}

	from, err := l.Apply(LoanEventApprove)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, LoanStatusApproved, from)
	assert.Equal(t, LoanStatusApproved, l.Status)
	assert.Equal(t, "Loan is already approved", MessageOf(err))

	from, err = l.Apply(LoanEventRequestReturn)
	require.NoError(t, err)
	assert.Equal(t, LoanStatusApproved, from)
	assert.Equal(t, LoanStatusReturnRequested, l.Status)
}

func TestLoan_AssessOverdue(t *testing.T) {
	t.Run("Past due", func(t *testing.T) {
		l := &Loan{DueDate: date("2024-08-16")}
		changed := l.AssessOverdue(date("2024-08-20"), 10)
		assert.True(t, changed)
		assert.True(t, l.Overdue)
		assert.Equal(t, int32(40), l.Fine)
	})

	t.Run("Due today", func(t *testing.T) {
		l := &Loan{DueDate: date("2024-08-20"), Overdue: true, Fine: 10}
		changed := l.AssessOverdue(date("2024-08-20").Add(23*time.Hour), 10)
		assert.True(t, changed)
		assert.False(t, l.Overdue)
		assert.Equal(t, int32(0), l.Fine)
	})

	t.Run("Idempotent", func(t *testing.T) {
		l := &Loan{DueDate: date("2024-08-16")}
		l.AssessOverdue(date("2024-08-20"), 10)
		assert.False(t, l.AssessOverdue(date("2024-08-20"), 10))
		assert.Equal(t, int32(40), l.Fine)
	})
}

func TestBook_CheckCounters(t *testing.T) {
	assert.NoError(t, (&Book{TotalCopies: 3, CopiesAvailable: 2, CopiesOnRent: 1}).CheckCounters())
	assert.ErrorIs(t, (&Book{TotalCopies: 3, CopiesAvailable: 3, CopiesOnRent: 1}).CheckCounters(), ErrInvariantViolation)
	assert.ErrorIs(t, (&Book{TotalCopies: 0, CopiesAvailable: 1, CopiesOnRent: -1}).CheckCounters(), ErrInvariantViolation)
}

func TestError_Kinds(t *testing.T) {
	err := NotFound("loan %d not found", 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "loan 7 not found", MessageOf(err))

	busy := Busy(errors.New("lock timeout"), "store busy")
	assert.ErrorIs(t, busy, ErrBusy)
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal server error", MessageOf(errors.New("boom")))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name             string
		page, size       int32
		wantPage, wantSz int32
	}{
		{"Defaults", 0, 0, 1, DefaultPageSize},
		{"Negative", -3, -1, 1, DefaultPageSize},
		{"Kept", 4, 50, 4, 50},
		{"Clamped to max", 2, 500, 2, MaxPageSize},
		{"At max", 1, MaxPageSize, 1, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := NormalizePage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSz, size)
		})
	}
}
