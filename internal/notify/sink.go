// Package notify records loan notifications inside a transaction and delivers them
// to external channels once the transaction has committed.
package notify

import (
	"context"
	"strconv"
	"time"

	"library-backend/internal/domain"
	"library-backend/internal/repository"
)

type Message struct {
	Type   domain.NotificationType
	Title  string
	Body   string
	LoanID int32
}

// Sink receives one call per recipient per loan event.
type Sink interface {
	Notify(ctx context.Context, userID int32, msg Message) error
}

// Delivery pairs a recipient with the message meant for them.
type Delivery struct {
	UserID  int32
	Message Message
}

// NotifyEach calls sink.Notify for every delivery, skipping users already notified for
// this event so each recipient gets exactly one message.
func NotifyEach(ctx context.Context, sink Sink, deliveries []Delivery) error {
	seen := make(map[int32]bool, len(deliveries))
	for _, d := range deliveries {
		if seen[d.UserID] {
			continue
		}
		seen[d.UserID] = true
		if err := sink.Notify(ctx, d.UserID, d.Message); err != nil {
			return err
		}
	}
	return nil
}

// To builds deliveries of one message for several users.
func To(userIDs []int32, msg Message) []Delivery {
	out := make([]Delivery, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, Delivery{UserID: id, Message: msg})
	}
	return out
}

// Recorder is a Sink that writes notification rows through a transaction's repository
// and keeps them for delivery after commit.
type Recorder struct {
	repo    repository.NotificationRepository
	now     func() time.Time
	created []domain.Notification
}

func NewRecorder(repo repository.NotificationRepository, now func() time.Time) *Recorder {
	return &Recorder{repo: repo, now: now}
}

func (r *Recorder) Notify(ctx context.Context, userID int32, msg Message) error {
	n := &domain.Notification{
		UserID:  userID,
		Title:   msg.Title,
		Message: msg.Body,
		Attributes: map[string]string{
			"type":    string(msg.Type),
			"loan_id": strconv.Itoa(int(msg.LoanID)),
		},
		CreatedOn: r.now(),
	}
	if err := r.repo.Create(ctx, n); err != nil {
		return err
	}
	r.created = append(r.created, *n)
	return nil
}

// Created returns the notifications written so far.
func (r *Recorder) Created() []domain.Notification {
	return r.created
}
