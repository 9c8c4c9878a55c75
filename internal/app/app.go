// Package app wires configuration into stores, notification channels and services.
// Both binaries build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"library-backend/internal/config"
	"library-backend/internal/logger"
	"library-backend/internal/notify"
	"library-backend/internal/repository"
	"library-backend/internal/repository/memory"
	"library-backend/internal/repository/postgres"
	"library-backend/internal/service"

	_ "github.com/lib/pq"
)

type App struct {
	Store         repository.Store
	Loans         service.LoanService
	Overdue       service.OverdueService
	Notifications service.NotificationService
	// Health pings the backing store.
	Health func(ctx context.Context) error
	// Dispatcher delivers committed notifications in the background until Close.
	Dispatcher *notify.Dispatcher

	closers []func()
}

// Build opens the configured store and constructs every service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	dispatcher, err := a.newDispatcher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = dispatcher

	policy := service.LoanPolicy{
		PeriodDays: cfg.Loan.PeriodDays,
		Amount:     cfg.Loan.Amount,
		FinePerDay: cfg.Loan.FinePerDay,
	}
	clock := service.SystemClock{}
	a.Loans = service.NewLoanService(a.Store, dispatcher, policy, clock,
		service.WithMaxAttempts(cfg.Retry.MaxAttempts),
		service.WithBaseDelay(cfg.Retry.BaseDelay()),
	)
	a.Overdue = service.NewOverdueService(a.Store, policy, clock)
	a.Notifications = service.NewNotificationService(a.Store)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Type {
	case "memory":
		store := memory.NewStore(cfg.Database.LockTimeout())
		if cfg.Store.SeedFile != "" {
			if err := memory.LoadSeed(ctx, store, cfg.Store.SeedFile); err != nil {
				return err
			}
		}
		logger.Info("Using in-memory store", "seed_file", cfg.Store.SeedFile)
		a.Store = store
		a.Health = func(context.Context) error { return nil }
		return nil

	case "postgres":
		logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		if cfg.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("Database connection established", "host", cfg.Database.Host, "database", cfg.Database.Database)

		a.Store = postgres.NewStore(db, postgres.Options{
			LockTimeout: cfg.Database.LockTimeout(),
			TxTimeout:   cfg.Database.TxTimeout(),
		})
		a.Health = db.PingContext
		return nil
	}
	return fmt.Errorf("unknown store type: %q", cfg.Store.Type)
}

// newDispatcher enables a delivery channel for every configured integration. The log
// channel is always on.
func (a *App) newDispatcher(cfg *config.Config) (*notify.Dispatcher, error) {
	deliverers := []notify.Deliverer{notify.LogDeliverer{}}

	sg := cfg.Notification.SendGrid
	if sg.APIKey != "" {
		deliverers = append(deliverers, notify.NewEmailDeliverer(sg.APIKey, sg.FromEmail, sg.FromName, a.Store.Repos().Users))
		logger.Info("Email notifications enabled", "from", sg.FromEmail)
	}

	mq := cfg.Notification.AMQP
	if mq.URL != "" {
		pub, err := notify.NewAMQPPublisher(mq.URL, mq.Exchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		deliverers = append(deliverers, notify.NewEventDeliverer(pub))
		logger.Info("AMQP notifications enabled", "exchange", mq.Exchange)
	}

	n := cfg.Notification
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Workers:    n.Workers,
		QueueSize:  n.QueueSize,
		MaxRetries: n.MaxRetries,
		Timeout:    n.DeliveryTimeout(),
		RetryDelay: n.RetryDelay(),
	}, deliverers...)
	dispatcher.Start()

	// Drain queued deliveries before the channels they use are closed.
	drain := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		_ = dispatcher.Stop(ctx)
	})
	return dispatcher, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
