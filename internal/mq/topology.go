package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeSessions Exchange = "botflow.sessions"
	ExchangeDLQ      Exchange = "botflow.dlq"
)

// Queues — имена очередей.
const (
	QueueSessionsHandoff Queue = "sessions.handoff"
	QueueDLQSessions     Queue = "dlq.sessions"
)

// Routing keys.
const (
	RoutingKeyHandoff     RoutingKey = "handoff"
	RoutingKeyDLQSessions RoutingKey = "sessions"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание exchanges, queues и bindings.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeSessions, "direct"},
		{ExchangeDLQ, "direct"},
	}

	// Отклонённые без requeue сообщения handoff уходят в DLQ.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQSessions),
	}
	queues := []queueDecl{
		{QueueSessionsHandoff, dlqArgs},
		{QueueDLQSessions, nil},
	}

	bindings := []bindingDecl{
		{QueueSessionsHandoff, RoutingKeyHandoff, ExchangeSessions},
		{QueueDLQSessions, RoutingKeyDLQSessions, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Botflow RabbitMQ Topology:

    botflow.sessions (direct)
    └── sessions.handoff [routing: handoff]
            Consumer: botflow-handoff
            DLQ: dlq.sessions

    botflow.dlq (direct)
    └── dlq.sessions [routing: sessions]
            Manual processing
  `
}
