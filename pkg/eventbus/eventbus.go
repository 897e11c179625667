// Package eventbus fans opportunity events out to other systems over AMQP.
// Publishing is best effort: the database event log stays authoritative.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "donormatch.events"

// Publisher sends v under routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
	Close() error
}

// OpportunityEvent is the message body for opportunity.* routing keys.
type OpportunityEvent struct {
	ID             string    `json:"id"`
	DonorID        string    `json:"donorId"`
	OpportunityKey string    `json:"opportunityKey"`
	Type           string    `json:"type"`
	State          string    `json:"state"`
	Stage          string    `json:"stage"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RoutingKey returns "opportunity.<type>".
func (e OpportunityEvent) RoutingKey() string {
	return "opportunity." + e.Type
}

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

type amqpConn interface {
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (amqpConn, amqpChannel, error)

// AMQPPublisher publishes persistent JSON messages to a topic exchange. A
// channel closed by the broker is replaced on the next Publish.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     dialFunc

	mu     sync.Mutex
	conn   amqpConn
	ch     amqpChannel
	closed bool
}

// NewAMQPPublisher dials url and declares exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, dialAMQP)
}

func newAMQPPublisher(url, exchange string, dial dialFunc) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &AMQPPublisher{url: url, exchange: exchange, dial: dial}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(url string) (amqpConn, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) connectLocked() error {
	conn, ch, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// channelLocked returns the open channel, redialing when the broker closed
// it or the connection.
func (p *AMQPPublisher) channelLocked() (amqpChannel, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.dropLocked()
	if err := p.connectLocked(); err != nil {
		return nil, fmt.Errorf("reconnect amqp: %w", err)
	}
	return p.ch, nil
}

func (p *AMQPPublisher) dropLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends v. Channels are not safe for concurrent use, hence the lock.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, v any) error {
	msg, err := newPublishing(v, time.Now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked()
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	if err := ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		if ch.IsClosed() {
			p.dropLocked()
		}
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn == nil || p.conn.IsClosed() {
		p.conn, p.ch = nil, nil
		return nil
	}
	// Closing the connection closes its channels.
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func newPublishing(v any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// RecordingPublisher keeps published messages in memory for tests.
type RecordingPublisher struct {
	mu       sync.Mutex
	Messages []Recorded
}

// Recorded is one captured message.
type Recorded struct {
	RoutingKey string
	Body       []byte
}

func (r *RecordingPublisher) Publish(_ context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.Messages = append(r.Messages, Recorded{RoutingKey: routingKey, Body: body})
	r.mu.Unlock()
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Snapshot returns a copy of the captured messages.
func (r *RecordingPublisher) Snapshot() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.Messages...)
}
