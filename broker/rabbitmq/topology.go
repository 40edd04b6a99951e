package rabbitmq

import (
	"context"

	driver "github.com/rabbitmq/amqp091-go"
)

// exchangeHandle declares, deletes and binds a single named exchange,
// grounded on session.go's addExchange/addBinding.
type exchangeHandle struct {
	name string
	ch   *driver.Channel
}

func (e *exchangeHandle) Declare(_ context.Context, kind string, durable, autoDelete, internal bool, args map[string]any) error {
	return e.ch.ExchangeDeclare(e.name, kind, durable, autoDelete, internal, false, driver.Table(args))
}

func (e *exchangeHandle) Delete(_ context.Context) error {
	return e.ch.ExchangeDelete(e.name, false, false)
}

func (e *exchangeHandle) Bind(_ context.Context, queue, routingKey string, args map[string]any) error {
	return e.ch.QueueBind(queue, routingKey, e.name, false, driver.Table(args))
}

func (e *exchangeHandle) Unbind(_ context.Context, queue, routingKey string, args map[string]any) error {
	return e.ch.QueueUnbind(queue, routingKey, e.name, driver.Table(args))
}

// queueHandle declares and deletes a single named queue, grounded on
// session.go's addQueue.
type queueHandle struct {
	name string
	ch   *driver.Channel
}

func (q *queueHandle) Declare(_ context.Context, durable, autoDelete, exclusive bool, args map[string]any) error {
	_, err := q.ch.QueueDeclare(q.name, durable, autoDelete, exclusive, false, driver.Table(args))
	return err
}

func (q *queueHandle) Delete(_ context.Context) error {
	_, err := q.ch.QueueDelete(q.name, false, false, false)
	return err
}
