package domain

import "time"

type NotificationType string

const (
	NotificationLoanRequested   NotificationType = "LOAN_REQUESTED"
	NotificationLoanApproved    NotificationType = "LOAN_APPROVED"
	NotificationCancelRequested NotificationType = "LOAN_CANCEL_REQUESTED"
	NotificationLoanCanceled    NotificationType = "LOAN_CANCELED"
	NotificationReturnRequested NotificationType = "LOAN_RETURN_REQUESTED"
	NotificationReturnAccepted  NotificationType = "LOAN_RETURN_ACCEPTED"
)

type Notification struct {
	ID         int32             `json:"id"`
	UserID     int32             `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedOn  time.Time         `json:"created_on"`
}

// Type returns the notification type stored in its attributes.
func (n *Notification) Type() NotificationType {
	return NotificationType(n.Attributes["type"])
}
