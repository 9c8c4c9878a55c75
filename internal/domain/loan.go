package domain

import "time"

type LoanStatus string

const (
	LoanStatusRequested       LoanStatus = "REQUESTED"
	LoanStatusApproved        LoanStatus = "APPROVED"
	LoanStatusCancelRequested LoanStatus = "CANCEL_REQUESTED"
	LoanStatusReturnRequested LoanStatus = "RETURN_REQUESTED"
	LoanStatusReturned        LoanStatus = "RETURNED"
	LoanStatusCanceled        LoanStatus = "CANCELED"
)

// LoanEvent names a transition of the loan lifecycle.
type LoanEvent string

const (
	LoanEventApprove         LoanEvent = "APPROVE"
	LoanEventMemberCancel    LoanEvent = "MEMBER_CANCEL"
	LoanEventLibrarianCancel LoanEvent = "LIBRARIAN_CANCEL"
	LoanEventRequestReturn   LoanEvent = "REQUEST_RETURN"
	LoanEventAcceptReturn    LoanEvent = "ACCEPT_RETURN"
)

type transition struct {
	from []LoanStatus
	to   LoanStatus
}

var loanTransitions = map[LoanEvent]transition{
	LoanEventApprove:      {from: []LoanStatus{LoanStatusRequested}, to: LoanStatusApproved},
	LoanEventMemberCancel: {from: []LoanStatus{LoanStatusRequested}, to: LoanStatusCancelRequested},
	LoanEventLibrarianCancel: {
		from: []LoanStatus{LoanStatusRequested, LoanStatusCancelRequested, LoanStatusApproved, LoanStatusReturnRequested},
		to:   LoanStatusCanceled,
	},
	LoanEventRequestReturn: {from: []LoanStatus{LoanStatusApproved}, to: LoanStatusReturnRequested},
	LoanEventAcceptReturn:  {from: []LoanStatus{LoanStatusApproved, LoanStatusReturnRequested}, to: LoanStatusReturned},
}

// IsTerminal reports whether a loan in this status is closed history.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusReturned || s == LoanStatusCanceled
}

// IsOpen is the negation of IsTerminal: the loan still counts against the book.
func (s LoanStatus) IsOpen() bool { return !s.IsTerminal() }

// IsPendingHold reports whether the loan reserves a copy that has not been handed out yet.
func (s LoanStatus) IsPendingHold() bool {
	return s == LoanStatusRequested || s == LoanStatusCancelRequested
}

// HoldsCopy reports whether a copy has been moved to on-rent for this loan.
func (s LoanStatus) HoldsCopy() bool {
	return s == LoanStatusApproved || s == LoanStatusReturnRequested
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusRequested, LoanStatusApproved, LoanStatusCancelRequested,
		LoanStatusReturnRequested, LoanStatusReturned, LoanStatusCanceled:
		return true
	}
	return false
}

// Next returns the status reached by applying event to s, or a Conflict error.
func (s LoanStatus) Next(event LoanEvent) (LoanStatus, error) {
	t, ok := loanTransitions[event]
	if !ok {
		return s, InvalidArgument("unknown loan event %q", event)
	}
	for _, from := range t.from {
		if from == s {
			return t.to, nil
		}
	}
	return s, Conflict("%s", conflictMessage(s, event))
}

func conflictMessage(s LoanStatus, event LoanEvent) string {
	switch s {
	case LoanStatusReturned:
		return "Loan is already returned"
	case LoanStatusCanceled:
		return "Loan is already canceled"
	}
	switch event {
	case LoanEventApprove:
		if s == LoanStatusCancelRequested {
			return "Loan cancellation has been requested"
		}
		return "Loan is already approved"
	case LoanEventMemberCancel:
		if s == LoanStatusCancelRequested {
			return "Loan cancellation already requested"
		}
		return "Loan already approved. Cannot cancel"
	case LoanEventRequestReturn:
		if s == LoanStatusReturnRequested {
			return "Return already requested"
		}
		return "Loan is not approved yet"
	case LoanEventAcceptReturn:
		return "Loan is not approved yet"
	}
	return "invalid loan transition from " + string(s)
}

type Loan struct {
	ID         int32      `json:"id"`
	BorrowerID int32      `json:"borrower_id"`
	BookID     int32      `json:"book_id"`
	IssueDate  time.Time  `json:"issue_date"`
	DueDate    time.Time  `json:"due_date"`
	LoanAmount int32      `json:"loan_amount"`
	Fine       int32      `json:"fine"`
	Overdue    bool       `json:"overdue"`
	Status     LoanStatus `json:"status"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedOn  time.Time  `json:"created_on"`
	UpdatedOn  time.Time  `json:"updated_on"`
}

// Apply moves the loan along event, leaving it untouched on Conflict.
func (l *Loan) Apply(event LoanEvent) (from LoanStatus, err error) {
	from = l.Status
	to, err := l.Status.Next(event)
	if err != nil {
		return from, err
	}
	l.Status = to
	return from, nil
}

// AssessOverdue recomputes Overdue and Fine as of today. It reports whether either changed.
func (l *Loan) AssessOverdue(today time.Time, finePerDay int32) bool {
	overdue, fine := false, int32(0)
	if days := DaysBetween(l.DueDate, today); days > 0 {
		overdue, fine = true, int32(days)*finePerDay
	}
	changed := overdue != l.Overdue || fine != l.Fine
	l.Overdue, l.Fine = overdue, fine
	return changed
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the number of calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// LoanFilter narrows ListLoans. Zero values mean "any".
type LoanFilter struct {
	BorrowerID int32
	BookID     int32
	Status     LoanStatus
	OpenOnly   bool
	Page       int32
	PageSize   int32
}

// LoanRequestResult is what RequestLoan returns: either a new loan or an availability estimate.
type LoanRequestResult struct {
	Loan            *Loan      `json:"loan,omitempty"`
	NextAvailableOn *time.Time `json:"next_available_on,omitempty"`
	Message         string     `json:"message"`
}

// SweepResult summarizes one overdue sweep.
type SweepResult struct {
	Scanned int       `json:"scanned"`
	Updated int       `json:"updated"`
	Overdue int       `json:"overdue"`
	AsOf    time.Time `json:"as_of"`
}
