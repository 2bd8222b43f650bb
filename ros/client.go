// Package ros talks to a ROS graph through a rosbridge websocket server.
package ros

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"armcam/metrics"
)

const (
	// Time allowed to write a message to rosbridge.
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

var ErrClosed = errors.New("rosbridge client closed")

// Handler receives the "msg" field of every publish op on a subscribed topic.
// Handlers for one Client are invoked serially from its read loop.
type Handler func(msg json.RawMessage)

type Client struct {
	URI string

	conn *websocket.Conn
	wl   sync.Mutex

	l      sync.Mutex
	subs   map[string][]*Subscription
	nextID int

	done      chan struct{}
	err       error
	closeOnce sync.Once
	loops     sync.WaitGroup
}

// Dial connects to a rosbridge server, e.g. "ws://localhost:9090".
func Dial(ctx context.Context, uri string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("dial rosbridge %v: %w", uri, err)
	}
	c := &Client{
		URI:  uri,
		conn: conn,
		subs: make(map[string][]*Subscription),
		done: make(chan struct{}),
	}
	c.loops.Add(2)
	go c.readLoop()
	go c.pingLoop()
	log.WithField("uri", uri).Info("Connected to rosbridge")
	return c, nil
}

// Done is closed once the connection is gone, either by Close or by a
// transport failure.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is still up.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.conn.Close()
	})
}

// Close disconnects from rosbridge. Subscriptions and publishers stop working.
func (c *Client) Close() error {
	c.wl.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wl.Unlock()
	c.fail(ErrClosed)
	c.loops.Wait()
	return nil
}

func (c *Client) send(op *Op) error {
	if err := c.Err(); err != nil {
		return err
	}
	c.wl.Lock()
	defer c.wl.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(op); err != nil {
		c.fail(err)
		return fmt.Errorf("%v %v: %w", op.Op, op.Topic, err)
	}
	return nil
}

func (c *Client) newID(op, topic string) string {
	c.l.Lock()
	defer c.l.Unlock()
	c.nextID++
	return fmt.Sprintf("%s:%s:%d", op, topic, c.nextID)
}

func (c *Client) readLoop() {
	defer c.loops.Done()
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		var op Op
		if err := json.Unmarshal(b, &op); err != nil {
			log.Warnf("Ignoring malformed rosbridge message: %v", err)
			continue
		}
		switch op.Op {
		case OpPublish:
			c.dispatch(op.Topic, op.Msg)
		case OpStatus:
			c.status(&op)
		default:
			log.Debugf("Ignoring rosbridge op %q", op.Op)
		}
	}
}

func (c *Client) pingLoop() {
	defer c.loops.Done()
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *Client) dispatch(topic string, msg json.RawMessage) {
	metrics.MessagesReceived.WithLabelValues(topic).Inc()
	c.l.Lock()
	subs := append([]*Subscription(nil), c.subs[topic]...)
	c.l.Unlock()
	for _, s := range subs {
		s.handler(msg)
	}
}

func (c *Client) status(op *Op) {
	l := log.WithFields(log.Fields{"id": op.ID, "level": op.Level})
	switch op.Level {
	case "error":
		l.Errorf("rosbridge: %v", op.StatusText())
	case "warning":
		l.Warnf("rosbridge: %v", op.StatusText())
	default:
		l.Infof("rosbridge: %v", op.StatusText())
	}
}

// Advertise declares this client as a publisher of msgType on topic.
func (c *Client) Advertise(topic, msgType string, queueSize int) (*Publisher, error) {
	p := &Publisher{
		c:     c,
		id:    c.newID(OpAdvertise, topic),
		topic: topic,
	}
	err := c.send(&Op{
		Op:        OpAdvertise,
		ID:        p.id,
		Topic:     topic,
		Type:      msgType,
		QueueSize: queueSize,
	})
	if err != nil {
		return nil, err
	}
	log.WithField("topic", topic).Infof("Advertised %v", msgType)
	return p, nil
}

// Subscribe registers h for every message on topic. queueLength is the
// number of messages rosbridge keeps for this subscriber; 1 means only the
// newest message is ever sent.
func (c *Client) Subscribe(topic, msgType string, queueLength int, h Handler) (*Subscription, error) {
	s := &Subscription{
		c:       c,
		id:      c.newID(OpSubscribe, topic),
		topic:   topic,
		handler: h,
	}
	c.l.Lock()
	c.subs[topic] = append(c.subs[topic], s)
	c.l.Unlock()

	err := c.send(&Op{
		Op:          OpSubscribe,
		ID:          s.id,
		Topic:       topic,
		Type:        msgType,
		QueueLength: queueLength,
	})
	if err != nil {
		c.remove(s)
		return nil, err
	}
	log.WithField("topic", topic).Infof("Subscribed to %v", msgType)
	return s, nil
}

func (c *Client) remove(s *Subscription) bool {
	c.l.Lock()
	defer c.l.Unlock()
	subs := c.subs[s.topic]
	for i, o := range subs {
		if o == s {
			c.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			if len(c.subs[s.topic]) == 0 {
				delete(c.subs, s.topic)
			}
			return true
		}
	}
	return false
}

type Publisher struct {
	c     *Client
	id    string
	topic string
}

func (p *Publisher) Topic() string {
	return p.topic
}

// Publish sends msg, which must marshal to the advertised message type.
func (p *Publisher) Publish(msg interface{}) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %v: %w", p.topic, err)
	}
	if err := p.c.send(&Op{Op: OpPublish, ID: p.id, Topic: p.topic, Msg: b}); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(p.topic).Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.c.send(&Op{Op: OpUnadvertise, ID: p.id, Topic: p.topic})
}

type Subscription struct {
	c       *Client
	id      string
	topic   string
	handler Handler
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Close stops delivery to this subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	if !s.c.remove(s) {
		return nil
	}
	return s.c.send(&Op{Op: OpUnsubscribe, ID: s.id, Topic: s.topic})
}
