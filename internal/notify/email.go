package notify

import (
	"context"
	"fmt"
	"html"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridClient is the part of *sendgrid.Client we use.
type SendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailDeliverer mails each notification to its recipient through SendGrid.
type EmailDeliverer struct {
	client    SendGridClient
	users     repository.UserRepository
	fromEmail string
	fromName  string
}

func NewEmailDeliverer(apiKey, fromEmail, fromName string, users repository.UserRepository) *EmailDeliverer {
	return NewEmailDelivererWithClient(sendgrid.NewSendClient(apiKey), fromEmail, fromName, users)
}

func NewEmailDelivererWithClient(client SendGridClient, fromEmail, fromName string, users repository.UserRepository) *EmailDeliverer {
	return &EmailDeliverer{client: client, users: users, fromEmail: fromEmail, fromName: fromName}
}

func (e *EmailDeliverer) Channel() string { return "email" }

func (e *EmailDeliverer) Deliver(ctx context.Context, n domain.Notification) error {
	user, err := e.users.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if user.Email == "" {
		return nil
	}

	from := mail.NewEmail(e.fromName, e.fromEmail)
	to := mail.NewEmail(user.Name(), user.Email)
	htmlContent := fmt.Sprintf("<html><body><p>%s</p></body></html>", html.EscapeString(n.Message))
	message := mail.NewSingleEmail(from, n.Title, to, n.Message, htmlContent)

	logger.ExternalServiceCall("sendgrid", "send", "notificationID", n.ID, "userID", n.UserID)
	response, err := e.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "notificationID", n.ID)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
