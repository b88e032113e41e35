package broadcast

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"Inventory/internal/inventory"
)

const (
	publishTimeout = 2 * time.Second
	amqpQueueSize  = 64
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher mirrors every broadcast to a fanout exchange so that
// processes without a websocket connection can follow product changes.
//
// Publish only enqueues; one goroutine sends in order, so a stalled broker
// never holds up a write. Delivery is best effort: when the queue is full
// the update is dropped and logged, and send failures are not retried.
type AMQPPublisher struct {
	ch       amqpChannel
	conn     io.Closer
	exchange string
	log      *zap.Logger

	queue chan amqp.Publishing
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func DialAMQP(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return newAMQPPublisher(ch, conn, exchange, log), nil
}

func newAMQPPublisher(ch amqpChannel, conn io.Closer, exchange string, log *zap.Logger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &AMQPPublisher{
		ch:       ch,
		conn:     conn,
		exchange: exchange,
		log:      log,
		queue:    make(chan amqp.Publishing, amqpQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AMQPPublisher) Publish(_ context.Context, products inventory.Collection) {
	body, err := encode(EventUpdate, products)
	if err != nil {
		p.log.Error("encode amqp message failed", zap.Error(err))
		return
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Type:        EventUpdate,
		Body:        body,
	}

	select {
	case <-p.quit:
		return
	default:
	}

	select {
	case p.queue <- msg:
	default:
		p.log.Warn("amqp queue full, dropping update",
			zap.String("exchange", p.exchange), zap.String("message_id", msg.MessageId))
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)

	for {
		select {
		case msg := <-p.queue:
			p.send(msg)
		case <-p.quit:
			if n := len(p.queue); n > 0 {
				p.log.Warn("amqp publisher closed with pending updates", zap.Int("pending", n))
			}
			return
		}
	}
}

func (p *AMQPPublisher) send(msg amqp.Publishing) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, msg); err != nil {
		p.log.Warn("amqp publish failed",
			zap.String("exchange", p.exchange), zap.String("message_id", msg.MessageId), zap.Error(err))
	}
}

// Close stops the sender, waiting for an in-flight send, then closes the
// channel and connection.
func (p *AMQPPublisher) Close() error {
	p.once.Do(func() { close(p.quit) })
	<-p.done

	_ = p.ch.Close()
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
