// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"github.com/tarancss/capi/lib/msg"
)

// exchange the gateway publishes events to.
const exchange = "ge"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.Broker, error) {
	r := Amqp{}

	var err error
	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, fmt.Errorf("amqp: cannot dial %s: %w", uri, err)
	}

	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, nil
}

// Setup obtains an amqp channel and declares the "ge" ("gateway events") topic exchange the gateway publishes to.
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp: cannot open channel: %w", err)
	}
	defer channel.Close()

	if err = channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: cannot declare exchange: %w", err)
	}

	return nil
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}

		r.ch = nil

		log.Printf("amqp.Channel closed!")
	}

	return r.conn.Close()
}

// SendEvent publishes a gateway event to the "ge" exchange with routing key "gateway.<type>".
func (r *Amqp) SendEvent(e msg.Event) error {
	var err error

	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return fmt.Errorf("amqp: cannot open channel: %w", err)
		}
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("amqp: cannot encode event: %w", err)
	}

	err = r.ch.Publish(exchange, "gateway."+e.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("amqp: cannot publish event: %w", err)
	}

	return nil
}
