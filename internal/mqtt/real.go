package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/espresso/internal/dispatch"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 64

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// WriteHandler applies writes received on /set topics.
type WriteHandler interface {
	HandleWrite(characteristic string, payload []byte) error
}

// Options configures a RealSurface.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string
	BufferSize int

	// OnConnect runs after every (re)connection once subscriptions are in
	// place, e.g. to republish every characteristic.
	OnConnect func()
}

// RealSurface publishes the attribute surface to an MQTT broker.
//
// Snapshots are QoS 0 and dropped while offline; they are superseded every
// tick. Configuration records, shot events and system events are QoS 1 and
// buffered while offline, then replayed in order on reconnect.
type RealSurface struct {
	client    paho.Client
	topics    Topics
	handler   WriteHandler
	onConnect func()

	mu        sync.Mutex
	buf       *outbox
	connected bool
	connects  int
}

// NewRealSurface connects to the broker. Writes received on /set topics are
// passed to handler.
func NewRealSurface(opts Options, handler WriteHandler) (*RealSurface, error) {
	s := newSurface(opts, handler)

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(s.topics.System(), string(willPayload()), 1, false).
		SetOnConnectHandler(s.handleConnect).
		SetConnectionLostHandler(s.handleConnectionLost)

	s.client = paho.NewClient(po)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying; configs and events buffer until then.
		log.Printf("mqtt: broker %s not reachable, retrying in background", opts.Broker)
		return s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func newSurface(opts Options, handler WriteHandler) *RealSurface {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &RealSurface{
		topics:    Topics{Prefix: opts.Prefix},
		handler:   handler,
		onConnect: opts.OnConnect,
		buf:       newOutbox(opts.BufferSize),
	}
}

// handleConnect replays buffered messages and subscribes to the write
// topics. paho calls it on its own goroutine.
func (s *RealSurface) handleConnect(c paho.Client) {
	s.mu.Lock()
	s.connected = true
	s.connects++
	reconnect := s.connects > 1
	pending := s.buf.drain()
	s.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	for _, m := range pending {
		s.send(c, m)
	}

	for _, name := range dispatch.Characteristics {
		if name == dispatch.SnapshotState {
			continue
		}
		token := c.Subscribe(s.topics.Set(name), 1, s.handleMessage)
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("mqtt: subscribe %s: timeout", s.topics.Set(name))
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: subscribe %s: %v", s.topics.Set(name), err)
		}
	}

	if reconnect {
		if err := s.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
	if s.onConnect != nil {
		s.onConnect()
	}
}

func (s *RealSurface) handleConnectionLost(_ paho.Client, err error) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (s *RealSurface) handleMessage(_ paho.Client, m paho.Message) {
	name, ok := s.topics.WriteCharacteristic(m.Topic())
	if !ok {
		log.Printf("mqtt: ignoring message on %s", m.Topic())
		return
	}
	if s.handler == nil {
		return
	}
	if err := s.handler.HandleWrite(name, m.Payload()); err != nil {
		log.Printf("mqtt: write %s: %v", name, err)
	}
}

// publish sends now when connected, otherwise buffers. Messages with
// buffer=false are dropped while offline.
func (s *RealSurface) publish(m bufferedMsg, buffer bool) {
	s.mu.Lock()
	if !s.connected {
		if buffer {
			s.buf.push(m)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.send(s.client, m)
}

// send does not wait for the token: notifications come from the control
// tick, which must not stall on the network.
func (s *RealSurface) send(c paho.Client, m bufferedMsg) {
	token := c.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("mqtt: publish %s: timeout", m.topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: publish %s: %v", m.topic, err)
		}
	}()
}

func (s *RealSurface) publishJSON(topic string, v any, qos byte, retained, buffer bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: encode %s: %v", topic, err)
		return
	}
	s.publish(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}, buffer)
}

// NotifySnapshot publishes the snapshot characteristic.
func (s *RealSurface) NotifySnapshot(snap espresso.Snapshot) {
	s.publishJSON(s.topics.Characteristic(dispatch.SnapshotState), snap, 0, true, false)
}

// NotifyEvent publishes a shot event.
func (s *RealSurface) NotifyEvent(e logic.Event) {
	payload, err := FormatEventPayload(e)
	if err != nil {
		log.Printf("mqtt: format event: %v", err)
		return
	}
	s.publish(bufferedMsg{topic: s.topics.Events(), payload: payload, qos: 1}, true)
}

// NotifyShotConfig publishes the shot configuration characteristic.
func (s *RealSurface) NotifyShotConfig(c registry.ShotConfig) {
	s.publishJSON(s.topics.Characteristic(dispatch.ShotConfig), c, 1, true, true)
}

// NotifyMachineConfig publishes the machine configuration characteristic.
func (s *RealSurface) NotifyMachineConfig(c registry.MachineConfig) {
	s.publishJSON(s.topics.Characteristic(dispatch.MachineConfiguration), c, 1, true, true)
}

// PublishSystem sends a system lifecycle event. While connected it waits
// for delivery so that SHUTDOWN reaches the broker before Close.
func (s *RealSurface) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	m := bufferedMsg{topic: s.topics.System(), payload: payload, qos: 1, retained: event.Retained}

	s.mu.Lock()
	if !s.connected {
		s.buf.push(m)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	token := s.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (s *RealSurface) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Buffered returns the number of messages waiting for a connection.
func (s *RealSurface) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.len()
}

// Close disconnects from the broker.
func (s *RealSurface) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}
