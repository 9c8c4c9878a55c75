package service

import (
	"context"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/metrics"
	"library-backend/internal/repository"

	"golang.org/x/sync/singleflight"
)

const (
	sweepKey = "overdue-sweep"
	// sweepTimeout bounds a shared sweep, which outlives any single caller's context.
	sweepTimeout = 5 * time.Minute
)

type overdueService struct {
	store  repository.Store
	policy LoanPolicy
	clock  Clock
	group  singleflight.Group
}

func NewOverdueService(store repository.Store, policy LoanPolicy, clock Clock) OverdueService {
	return &overdueService{store: store, policy: policy, clock: clock}
}

func (s *overdueService) SweepOverdue(ctx context.Context, librarianID int32) (*domain.SweepResult, error) {
	if _, err := requireRole(ctx, s.store.Repos().Users, librarianID, domain.UserRoleLibrarian); err != nil {
		return nil, err
	}
	return s.Sweep(ctx)
}

// Sweep marks overdue loans and recomputes their fines. Callers arriving while a sweep is
// in flight in this process share its result; a sweep held by another process yields Busy.
// A caller that gives up stops waiting without aborting the sweep for the others.
func (s *overdueService) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	ch := s.group.DoChan(sweepKey, func() (any, error) {
		sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
		defer cancel()
		return s.sweep(sweepCtx)
	})

	select {
	case <-ctx.Done():
		logger.Debug("Stopped waiting for overdue sweep", "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*domain.SweepResult)
		if res.Shared {
			logger.Debug("Joined in-flight overdue sweep", "asOf", result.AsOf)
		}
		return &result, nil
	}
}

func (s *overdueService) sweep(ctx context.Context) (*domain.SweepResult, error) {
	logger.EnterMethod("overdueService.sweep")
	start := time.Now()
	now := s.clock.Now()
	today := domain.Date(now)

	var result domain.SweepResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		result = domain.SweepResult{AsOf: today}

		acquired, err := repos.Loans.TryLockSweep(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			return domain.Busy(nil, "An overdue sweep is already running.")
		}

		loans, err := repos.Loans.ListOpenForUpdate(ctx)
		if err != nil {
			return err
		}
		for i := range loans {
			loan := &loans[i]
			result.Scanned++
			if loan.AssessOverdue(today, s.policy.FinePerDay) {
				if err := repos.Loans.UpdateAssessment(ctx, loan.ID, loan.Overdue, loan.Fine, now); err != nil {
					return err
				}
				result.Updated++
			}
			if loan.Overdue {
				result.Overdue++
			}
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("overdueService.sweep", err)
		return nil, err
	}

	metrics.RecordSweep(result.Scanned, result.Updated, result.Overdue, time.Since(start))
	logger.ExitMethod("overdueService.sweep",
		"scanned", result.Scanned,
		"updated", result.Updated,
		"overdue", result.Overdue,
		"duration", time.Since(start))
	return &result, nil
}
