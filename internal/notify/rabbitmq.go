package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is the fire-and-forget "money moved" notification. Delivery is
// best-effort: the ledger never fails a committed posting over a publish
// error.
type Event struct {
	Name          string    `json:"event"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	AccountNumber string    `json:"account_number"`
	BranchID      uuid.UUID `json:"branch_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
	Currency      string    `json:"currency"`
	BalanceAfter  int64     `json:"balance_after"`
	ProcessedAt   time.Time `json:"processed_at"`
}

const (
	EventProcessed = "processed"
	EventReversed  = "reversed"
)

type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish routes by event name and branch so branch consoles can bind to
// their own traffic only.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	key := fmt.Sprintf("transaction.%s.%s", event.Name, event.BranchID)
	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		MessageId:   event.TransactionID.String(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("Close: channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("Close: connection: %w", err)
	}
	return nil
}
