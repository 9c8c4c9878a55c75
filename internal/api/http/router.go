package http

import (
	"context"
	"net/http"

	"library-backend/internal/security"
	"library-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Loans         service.LoanService
	Overdue       service.OverdueService
	Notifications service.NotificationService
	Tokens        security.TokenManager
	Health        HealthCheck
}

// NewRouter registers every API route behind request ID, metrics, recovery and auth middleware.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestID, instrument, recoverer, NewAuthMiddleware(d.Tokens).Handler)

	router.HandleFunc("/healthz", healthHandler(d.Health)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	loans := NewLoanHandler(d.Loans, d.Overdue)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/loans", loans.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", loans.ListLoans).Methods("GET")
	api.HandleFunc("/loans/{id}", loans.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{id}/cancel", loans.CancelLoan).Methods("POST")
	api.HandleFunc("/loans/{id}/return", loans.RequestReturn).Methods("POST")

	api.HandleFunc("/librarian/loans/sweep-overdue", loans.SweepOverdue).Methods("POST")
	api.HandleFunc("/librarian/loans/{id}/approve", loans.ApproveLoan).Methods("POST")
	api.HandleFunc("/librarian/loans/{id}/cancel", loans.LibrarianCancelLoan).Methods("POST")
	api.HandleFunc("/librarian/loans/{id}/return", loans.AcceptReturn).Methods("POST")

	notes := NewNotificationHandler(d.Notifications)
	api.HandleFunc("/notifications", notes.List).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", notes.MarkRead).Methods("PUT")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return router
}

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeProblem(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
