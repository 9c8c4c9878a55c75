package jobs

import (
	"context"

	"library-backend/internal/logger"
)

// SweepOverdueLoans flags loans past their due date and recomputes their fines.
func (jr *JobRunner) SweepOverdueLoans() {
	jr.runWithRecovery("SweepOverdueLoans", func(ctx context.Context) error {
		res, err := jr.services.Overdue.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("Overdue sweep finished",
			"asOf", res.AsOf.Format("2006-01-02"),
			"scanned", res.Scanned,
			"updated", res.Updated,
			"overdue", res.Overdue)
		return nil
	})
}
