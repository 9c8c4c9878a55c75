package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/metrics"
)

// ErrQueueFull is reported when a delivery cannot be queued.
var ErrQueueFull = errors.New("notification queue is full")

// Deliverer pushes a committed notification to one external channel.
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, n domain.Notification) error
}

type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// RetryDelay is scaled by attempt² before a failed delivery is queued again.
	RetryDelay time.Duration
}

// deliveryJob is one notification bound for one channel.
type deliveryJob struct {
	note      domain.Notification
	channel   Deliverer
	requestID string
	retries   int
}

// Dispatcher queues committed notifications and delivers them from a pool of workers,
// so callers never wait on an external channel. Failures are logged and counted.
type Dispatcher struct {
	cfg        DispatcherConfig
	deliverers []Deliverer
	jobs       chan deliveryJob

	mu      sync.RWMutex
	started bool
	closed  bool
	workers sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, deliverers ...Deliverer) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Dispatcher{
		cfg:        cfg,
		deliverers: deliverers,
		jobs:       make(chan deliveryJob, cfg.QueueSize),
	}
}

// Start launches the delivery workers. Jobs queued before Start wait for them.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.workers.Add(1)
		go d.worker(i)
	}
	logger.Info("Notification dispatcher started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
}

// Stop refuses new jobs, lets the workers drain the queue and waits for them until ctx
// is done. Retries still waiting on their backoff are dropped.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Notification dispatcher stopped before the queue drained", "pending", len(d.jobs))
		return ctx.Err()
	}
}

// Dispatch queues every notification for every channel and returns at once.
func (d *Dispatcher) Dispatch(ctx context.Context, notes []domain.Notification) {
	if d == nil || len(d.deliverers) == 0 || len(notes) == 0 {
		return
	}
	requestID := logger.RequestID(ctx)
	for _, n := range notes {
		for _, del := range d.deliverers {
			d.enqueue(deliveryJob{note: n, channel: del, requestID: requestID})
		}
	}
}

func (d *Dispatcher) enqueue(job deliveryJob) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Warn("Notification dropped, dispatcher stopped",
			"channel", job.channel.Channel(), "notificationID", job.note.ID)
		metrics.RecordNotificationDropped(job.channel.Channel())
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		logger.Warn("Notification dropped", "channel", job.channel.Channel(),
			"notificationID", job.note.ID, "userID", job.note.UserID, "error", ErrQueueFull)
		metrics.RecordNotificationDropped(job.channel.Channel())
		return false
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.workers.Done()
	logger.Debug("Notification worker started", "worker", id)
	for job := range d.jobs {
		d.process(job)
	}
	logger.Debug("Notification worker stopping", "worker", id)
}

func (d *Dispatcher) process(job deliveryJob) {
	ctx := logger.WithRequestID(context.Background(), job.requestID)
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	channel := job.channel.Channel()
	err := job.channel.Deliver(ctx, job.note)
	metrics.RecordNotificationDelivery(channel, err)
	if err == nil {
		return
	}

	if job.retries >= d.cfg.MaxRetries {
		logger.ErrorContext(ctx, "Notification delivery failed",
			"channel", channel,
			"notificationID", job.note.ID,
			"userID", job.note.UserID,
			"attempts", job.retries+1,
			"error", err)
		return
	}
	job.retries++
	backoff := time.Duration(job.retries*job.retries) * d.cfg.RetryDelay
	logger.WarnContext(ctx, "Retrying notification delivery",
		"channel", channel,
		"notificationID", job.note.ID,
		"attempt", job.retries,
		"backoff", backoff,
		"error", err)
	time.AfterFunc(backoff, func() { d.enqueue(job) })
}

// LogDeliverer writes notifications to the application log.
type LogDeliverer struct{}

func (LogDeliverer) Channel() string { return "log" }

func (LogDeliverer) Deliver(ctx context.Context, n domain.Notification) error {
	logger.InfoContext(ctx, "Notification", "userID", n.UserID, "type", n.Type(), "message", n.Message)
	return nil
}
