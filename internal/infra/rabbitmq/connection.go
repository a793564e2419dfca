package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection wraps an AMQP connection with startup dial retries, so the
// service tolerates the broker coming up after it does.
type Connection struct {
	URL  string
	Conn *amqp.Connection
}

const (
	dialAttempts = 30
	dialBackoff  = 2 * time.Second
)

// Connect establishes a connection to RabbitMQ with retries.
func Connect(url string) (*Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return &Connection{URL: url, Conn: conn}, nil
		}
		time.Sleep(dialBackoff)
	}

	return nil, fmt.Errorf("could not connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

// Channel opens a new AMQP channel.
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.Conn.Channel()
}

// Close closes the connection.
func (c *Connection) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}
