package publish

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err error
}

func NewMockToken(err error) *MockToken {
	return &MockToken{err: err}
}

func (t *MockToken) Wait() bool {
	return true
}

func (t *MockToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *MockToken) Error() error {
	return t.err
}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected         bool
	connectErrors     []error
	connectCalls      int
	publishError      error
	publishedMessages []MockMessage
	mu                sync.RWMutex
}

type MockMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// NewMockClient creates a new mock MQTT client
func NewMockClient() *MockClient {
	return &MockClient{publishedMessages: []MockMessage{}}
}

// SetConnected sets the connection state
func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// SetConnectErrors queues the results of successive Connect calls. Once the
// queue is drained Connect succeeds.
func (c *MockClient) SetConnectErrors(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErrors = errs
}

// SetPublishError makes every Publish fail with err
func (c *MockClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

// ConnectCalls returns how many times Connect was called
func (c *MockClient) ConnectCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectCalls
}

// GetPublishedMessages returns a copy of everything published so far
func (c *MockClient) GetPublishedMessages() []MockMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MockMessage, len(c.publishedMessages))
	copy(out, c.publishedMessages)
	return out
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++

	var err error
	if len(c.connectErrors) > 0 {
		err = c.connectErrors[0]
		c.connectErrors = c.connectErrors[1:]
	}
	if err == nil {
		c.connected = true
	}
	return NewMockToken(err)
}

func (c *MockClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	if c.publishError != nil {
		return NewMockToken(c.publishError)
	}

	var payloadBytes []byte
	switch v := payload.(type) {
	case []byte:
		payloadBytes = v
	case string:
		payloadBytes = []byte(v)
	}

	c.publishedMessages = append(c.publishedMessages, MockMessage{
		Topic:   topic,
		Payload: payloadBytes,
		QoS:     qos,
		Retain:  retained,
	})
	return NewMockToken(nil)
}

// Subscribe is not used by the publisher; it only reports the connection state.
func (c *MockClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	if !c.IsConnected() {
		return NewMockToken(mqtt.ErrNotConnected)
	}
	return NewMockToken(nil)
}

func (c *MockClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return c.Subscribe("", 0, nil)
}

func (c *MockClient) Unsubscribe(...string) mqtt.Token {
	return NewMockToken(nil)
}

func (c *MockClient) AddRoute(string, mqtt.MessageHandler) {}

// OptionsReader returns the client options (not implemented for mock)
func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
