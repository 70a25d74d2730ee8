package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
)

type Handler func(ctx context.Context, sessionID uuid.UUID) error

// Consumer pulls generation jobs and runs them on a fixed set of goroutines.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         *logger.Logger
}

func NewConsumer(url, queue string, concurrency int, log *logger.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{
		conn:        conn,
		ch:          ch,
		queue:       queue,
		concurrency: concurrency,
		log:         log.With("component", "consumer", "queue", queue),
	}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is done or the delivery channel closes. Messages the
// handler fails on are nacked without requeue and land in the DLQ.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("consumer started", "concurrency", c.concurrency)

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handle(ctx, workerID, d, h)
			}
		}(i)
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			break loop
		case d, ok := <-msgs:
			if !ok {
				runErr = errors.New("delivery channel closed")
				break loop
			}
			jobs <- d
		}
	}
	close(jobs)
	wg.Wait()
	return runErr
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery, h Handler) {
	id, err := decodeMessage(d.Body)
	if err != nil {
		c.log.Warn("bad message", "worker", workerID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := safeCall(ctx, h, id); err != nil {
		c.log.Error("job failed", "worker", workerID, "session_id", id.String(), "took", time.Since(start), "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Error("ack failed", "worker", workerID, "session_id", id.String(), "error", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		c.log.Debug("job_timing", "worker", workerID, "session_id", id.String(), "took", took)
	}
}

func safeCall(ctx context.Context, h Handler, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, id)
}
