// Package publish delivers extracted feature sets to downstream
// consumers over AMQP.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const reconnectDelay = 5 * time.Second

// AMQPOptions configures the publisher. The queue is declared durable
// so results survive broker restarts.
type AMQPOptions struct {
	URL   string
	Queue string
}

// AMQPPublisher publishes JSON payloads to a single durable queue and
// reconnects in the background when the broker drops the connection.
type AMQPPublisher struct {
	opts AMQPOptions

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	stop chan struct{}
	once sync.Once
}

func NewAMQPPublisher(opts AMQPOptions) (*AMQPPublisher, error) {
	if opts.URL == "" || opts.Queue == "" {
		return nil, fmt.Errorf("amqp url and queue are required")
	}
	p := &AMQPPublisher{opts: opts, stop: make(chan struct{})}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.opts.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(p.opts.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue %s: %w", p.opts.Queue, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()

	go p.watch(conn)
	log.Info().Str("module", "publish").Str("queue", p.opts.Queue).Msg("amqp connected")
	return nil
}

// watch redials after a broker-side close until Close is called.
func (p *AMQPPublisher) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-p.stop:
		return
	case err := <-closed:
		if err == nil {
			return
		}
		log.Warn().Str("module", "publish").Err(err).Msg("amqp connection lost, reconnecting")
	}

	for {
		select {
		case <-p.stop:
			return
		case <-time.After(reconnectDelay):
		}
		if err := p.connect(); err != nil {
			log.Error().Str("module", "publish").Err(err).Msg("amqp reconnect failed")
			continue
		}
		return
	}
}

// Publish sends one JSON-encoded payload to the queue. It fails fast
// while disconnected; the caller decides whether to drop or retry.
func (p *AMQPPublisher) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal features payload: %w", err)
	}

	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()
	if channel == nil {
		return fmt.Errorf("amqp not connected")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	err = channel.Publish("", p.opts.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.opts.Queue, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn != nil {
			err = p.conn.Close()
		}
	})
	return err
}
