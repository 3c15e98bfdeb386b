// Package events публикует события изменения entitlement в RabbitMQ.
//
// События потребляет конвейер уведомлений приложения (письма об активации
// и отключении premium). Публикация всегда best-effort: сбой брокера
// логируется, но никогда не влияет на результат операции, породившей событие.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Exchange и ключ маршрутизации событий entitlement.
const (
	ExchangeName = "entitlements"
	RoutingKey   = "entitlement.changed"
	queueName    = "entitlements.changed"
)

// EntitlementChanged событие изменения прав пользователя.
type EntitlementChanged struct {
	UserID     string    `json:"userId"`
	Action     string    `json:"action"` // admin_grant, admin_revoke, webhook_premium
	IsPremium  bool      `json:"isPremium"`
	Tier       string    `json:"tier,omitempty"`
	ProSource  string    `json:"proSource,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Connect подключается к RabbitMQ с повторными попытками.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "events.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel открывает канал и объявляет exchange и очередь событий.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "events.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := ch.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, queueName, err)
	}

	if err := ch.QueueBind(
		queueName,
		RoutingKey,
		ExchangeName,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, queueName, err)
	}

	return ch, nil
}

// Publisher публикует события entitlement в объявленный exchange.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создаёт Publisher поверх настроенного канала.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishChange публикует событие изменения entitlement.
func (p *Publisher) PublishChange(ev EntitlementChanged) error {
	const op = "events.PublishChange"
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
