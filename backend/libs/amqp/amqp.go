package amqp

import (
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel bundles a broker connection with one channel and a declared topic exchange.
type Channel struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Channel, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp: url is empty")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("amqp: exchange is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange: %w", err)
	}

	return &Channel{conn: conn, ch: ch, exchange: exchange}, nil
}

// Exchange returns the declared exchange name.
func (c *Channel) Exchange() string {
	return c.exchange
}

// Raw exposes the underlying channel for publishing.
func (c *Channel) Raw() *amqp.Channel {
	return c.ch
}

// Close releases the channel and the connection.
func (c *Channel) Close() error {
	chErr := c.ch.Close()
	connErr := c.conn.Close()
	return errors.Join(chErr, connErr)
}
