package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATSQueue publishes messages to a JetStream stream and consumes them through a durable consumer.
// Subjects are "<prefix>.<message type>".
type NATSQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	prefix  string
	durable string
}

// NewNATSQueue connects to url and makes sure a stream covering prefix.> exists.
func NewNATSQueue(url, prefix, durable string, opts ...nats.Option) (*NATSQueue, error) {
	if prefix == "" {
		prefix = "classroll"
	}
	if durable == "" {
		durable = "classroll-worker"
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	stream := strings.ToUpper(strings.ReplaceAll(prefix, ".", "_"))
	if _, err := js.StreamInfo(stream); errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
		}); err != nil {
			nc.Close()
			return nil, err
		}
	} else if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSQueue{conn: nc, js: js, prefix: prefix, durable: durable}, nil
}

// Publish sends msg on the subject for its type.
func (q *NATSQueue) Publish(ctx context.Context, msg Message) error {
	if q == nil {
		return errors.New("nil queue")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = q.js.Publish(q.prefix+"."+msg.Type, data, nats.Context(ctx))
	return err
}

// Consume subscribes with a durable consumer; messages are acked once handed to the reader.
func (q *NATSQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	var (
		mu     sync.RWMutex
		closed bool
	)
	sub, err := q.js.Subscribe(q.prefix+".>", func(m *nats.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			_ = m.Nak()
			return
		}
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Printf("nats %s: dropping malformed message: %v", m.Subject, err)
			_ = m.Term()
			return
		}
		select {
		case out <- msg:
			_ = m.Ack()
		case <-ctx.Done():
			_ = m.Nak()
		}
	}, nats.Durable(q.durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// Close drains the connection.
func (q *NATSQueue) Close() {
	if q == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}
