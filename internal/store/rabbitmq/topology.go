package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the body of a generation job.
type JobMessage struct {
	SessionID string `json:"session_id"`
}

var ErrBadMessage = errors.New("bad job message")

func encodeMessage(id uuid.UUID) ([]byte, error) {
	return json.Marshal(JobMessage{SessionID: id.String()})
}

func decodeMessage(body []byte) (uuid.UUID, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	id, err := uuid.Parse(m.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: session_id %q", ErrBadMessage, m.SessionID)
	}
	return id, nil
}

func retryQueue(queue string) string { return queue + ".retry" }
func deadQueue(queue string) string  { return queue + ".dlq" }

// declareTopology declares the main queue plus its retry and dead-letter
// queues. Publisher and Consumer must agree on the arguments.
func declareTopology(ch *amqp.Channel, queue string) error {
	// DLQ
	if _, err := ch.QueueDeclare(deadQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", deadQueue(queue), err)
	}

	// retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(retryQueue(queue), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", retryQueue(queue), err)
	}

	// main queue: dead-letter to DLQ on nack(requeue=false)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadQueue(queue),
	}); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

func dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
