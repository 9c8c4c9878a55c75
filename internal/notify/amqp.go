package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"library-backend/internal/domain"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher sends a JSON payload to an exchange under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewAMQPPublisher dials url and declares exchange as a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NotificationEvent is the message body published for each notification.
type NotificationEvent struct {
	NotificationID int32     `json:"notification_id"`
	UserID         int32     `json:"user_id"`
	Type           string    `json:"type"`
	LoanID         int32     `json:"loan_id,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedOn      time.Time `json:"created_on"`
}

// EventDeliverer publishes notifications as events, e.g. for push or chat integrations.
type EventDeliverer struct {
	pub Publisher
}

func NewEventDeliverer(pub Publisher) *EventDeliverer {
	return &EventDeliverer{pub: pub}
}

func (e *EventDeliverer) Channel() string { return "amqp" }

func (e *EventDeliverer) Deliver(ctx context.Context, n domain.Notification) error {
	loanID, _ := strconv.Atoi(n.Attributes["loan_id"])
	event := NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type()),
		LoanID:         int32(loanID),
		Title:          n.Title,
		Message:        n.Message,
		CreatedOn:      n.CreatedOn,
	}
	return e.pub.Publish(ctx, RoutingKey(n.Type()), event)
}

// RoutingKey maps LOAN_RETURN_ACCEPTED to notification.loan.return_accepted.
func RoutingKey(t domain.NotificationType) string {
	name := strings.ToLower(strings.TrimPrefix(string(t), "LOAN_"))
	return "notification.loan." + name
}
