package mqtt

import (
	"log"
	"sync"
	"time"
)

// closeTimeout bounds how long Close waits for queued messages to go out.
const closeTimeout = 5 * time.Second

// Outbox is a Client whose Publish never blocks. Messages are queued in a
// drop-oldest buffer and sent to the wrapped client by one goroutine, so a
// slow or half-open broker link cannot stall the caller.
type Outbox struct {
	client Client

	mu  sync.Mutex
	buf *ringBuffer

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewOutbox starts a sender for c holding at most capacity messages.
func NewOutbox(c Client, capacity int) *Outbox {
	o := &Outbox{
		client: c,
		buf:    newRingBuffer(capacity),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

// Publish queues the message and returns immediately. Send errors are
// logged by the sender.
func (o *Outbox) Publish(topic string, qos byte, retained bool, payload []byte) error {
	o.mu.Lock()
	o.buf.push(bufferedMsg{
		topic:    topic,
		payload:  append([]byte(nil), payload...),
		qos:      qos,
		retained: retained,
	})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe passes through to the wrapped client.
func (o *Outbox) Subscribe(topic string, qos byte, handler Handler) error {
	return o.client.Subscribe(topic, qos, handler)
}

// IsConnected passes through to the wrapped client.
func (o *Outbox) IsConnected() bool {
	return o.client.IsConnected()
}

// Pending returns the number of queued messages.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}

// Dropped returns how many messages were discarded because the outbox was
// full.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.dropped
}

// Close sends what is queued, waiting at most closeTimeout, and stops the
// sender. The wrapped client stays open.
func (o *Outbox) Close() error {
	o.once.Do(func() { close(o.stop) })
	select {
	case <-o.done:
	case <-time.After(closeTimeout):
		log.Printf("mqtt: outbox close timed out with %d messages queued", o.Pending())
	}
	return nil
}

func (o *Outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.wake:
			o.flush()
		case <-o.stop:
			o.flush()
			return
		}
	}
}

func (o *Outbox) flush() {
	for {
		o.mu.Lock()
		msgs := o.buf.drainAll()
		o.mu.Unlock()
		if len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			if err := o.client.Publish(m.topic, m.qos, m.retained, m.payload); err != nil {
				log.Printf("mqtt: %v", err)
			}
		}
	}
}
