package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Options configure a RealClient.
type Options struct {
	Broker   string
	ClientID string

	// AvailabilityTopic carries "online" while connected and is the last
	// will topic. Empty disables availability reporting.
	AvailabilityTopic string

	// BufferSize bounds the messages kept while disconnected.
	BufferSize int

	// OnReconnect is called after every connection except the first.
	OnReconnect func()
}

type subscription struct {
	qos     byte
	handler Handler
}

// RealClient is a Client connected to an actual MQTT broker. Messages
// published while disconnected are buffered and replayed on reconnect.
type RealClient struct {
	client paho.Client
	opts   Options

	mu        sync.Mutex
	buf       *ringBuffer
	subs      map[string]subscription
	connected bool
	connects  int
}

// NewRealClient creates a client and starts connecting. The broker being
// unreachable is not an error: the client keeps retrying in the background
// and buffers outbound messages meanwhile.
func NewRealClient(o Options) (*RealClient, error) {
	c := &RealClient{
		opts: o,
		buf:  newRingBuffer(o.BufferSize),
		subs: make(map[string]subscription),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if o.AvailabilityTopic != "" {
		opts.SetWill(o.AvailabilityTopic, PayloadOffline, 1, true)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.connects++
	reconnect := c.connects > 1
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	pending := c.buf.drainAll()
	c.mu.Unlock()

	log.Printf("mqtt: connected to %s", c.opts.Broker)

	// Handlers may run on paho's goroutine, so publish without waiting.
	if c.opts.AvailabilityTopic != "" {
		client.Publish(c.opts.AvailabilityTopic, 1, true, PayloadOnline)
	}
	for topic, s := range subs {
		client.Subscribe(topic, s.qos, wrap(s.handler))
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		client.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	if reconnect && c.opts.OnReconnect != nil {
		go c.opts.OnReconnect()
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// Publish sends payload, or buffers it while disconnected.
func (c *RealClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	if !c.connected {
		c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.requeue(topic, qos, retained, payload)
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		c.requeue(topic, qos, retained, payload)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *RealClient) requeue(topic string, qos byte, retained bool, payload []byte) {
	c.mu.Lock()
	c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	c.mu.Unlock()
}

// Subscribe registers handler for topic and subscribes now if connected.
func (c *RealClient) Subscribe(topic string, qos byte, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	token := c.client.Subscribe(topic, qos, wrap(handler))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the connection is active.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close marks the node offline and disconnects from the broker.
func (c *RealClient) Close() error {
	if c.opts.AvailabilityTopic != "" && c.IsConnected() {
		token := c.client.Publish(c.opts.AvailabilityTopic, 1, true, PayloadOffline)
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}
}
