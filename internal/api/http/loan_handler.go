package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/service"

	"github.com/gorilla/mux"
)

type LoanHandler struct {
	loans   service.LoanService
	overdue service.OverdueService
}

func NewLoanHandler(loans service.LoanService, overdue service.OverdueService) *LoanHandler {
	return &LoanHandler{loans: loans, overdue: overdue}
}

type createLoanRequest struct {
	BookTitle string `json:"book_title"`
}

type approveLoanRequest struct {
	DueDate string `json:"due_date,omitempty"` // YYYY-MM-DD
}

type loanResponse struct {
	Message         string       `json:"message"`
	Loan            *domain.Loan `json:"loan,omitempty"`
	NextAvailableOn string       `json:"next_available_on,omitempty"`
}

type loanListResponse struct {
	Loans    []domain.Loan `json:"loans"`
	Total    int32         `json:"total"`
	Page     int32         `json:"page"`
	PageSize int32         `json:"page_size"`
}

type sweepResponse struct {
	Scanned int    `json:"scanned"`
	Updated int    `json:"updated"`
	Overdue int    `json:"overdue"`
	AsOf    string `json:"as_of"`
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req createLoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.loans.RequestLoan(r.Context(), userID, req.BookTitle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := loanResponse{Message: res.Message, Loan: res.Loan}
	if res.NextAvailableOn != nil {
		body.NextAvailableOn = res.NextAvailableOn.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *LoanHandler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.CancelLoan, "Cancellation request sent to librarians.")
}

func (h *LoanHandler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.RequestReturn, "Book return requested.")
}

func (h *LoanHandler) LibrarianCancelLoan(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.LibrarianCancelLoan, "Loan canceled successfully.")
}

func (h *LoanHandler) AcceptReturn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.AcceptReturn, "Book returned successfully.")
}

func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveLoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var due *time.Time
	if req.DueDate != "" {
		d, err := time.Parse(time.DateOnly, req.DueDate)
		if err != nil {
			writeError(w, r, domain.InvalidArgument("due_date must be formatted as YYYY-MM-DD"))
			return
		}
		due = &d
	}

	loan, err := h.loans.ApproveLoan(r.Context(), userID, loanID, due)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse{Message: "Loan approved successfully.", Loan: loan})
}

// transitionFunc is a loan operation keyed by caller and loan ID.
type transitionFunc func(ctx context.Context, userID, loanID int32) (*domain.Loan, error)

func (h *LoanHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, message string) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := fn(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse{Message: message, Loan: loan})
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := h.loans.GetLoan(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.LoanFilter{
		Status:   domain.LoanStatus(q.Get("status")),
		OpenOnly: q.Get("open") == "true",
	}
	var err error
	if filter.BorrowerID, err = queryInt32(q.Get("borrower_id")); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.BookID, err = queryInt32(q.Get("book_id")); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Page, err = queryInt32(q.Get("page")); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.PageSize, err = queryInt32(q.Get("page_size")); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page, filter.PageSize = domain.NormalizePage(filter.Page, filter.PageSize)

	loans, total, err := h.loans.ListLoans(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []domain.Loan{}
	}
	writeJSON(w, http.StatusOK, loanListResponse{Loans: loans, Total: total, Page: filter.Page, PageSize: filter.PageSize})
}

func (h *LoanHandler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := h.overdue.SweepOverdue(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		Scanned: res.Scanned,
		Updated: res.Updated,
		Overdue: res.Overdue,
		AsOf:    res.AsOf.Format(time.DateOnly),
	})
}

func caller(w http.ResponseWriter, r *http.Request) (int32, bool) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return 0, false
	}
	return userID, true
}

func pathID(r *http.Request) (int32, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.InvalidArgument("invalid id %q", mux.Vars(r)["id"])
	}
	return int32(id), nil
}

func queryInt32(raw string) (int32, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, domain.InvalidArgument("invalid integer %q", raw)
	}
	return int32(v), nil
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}
