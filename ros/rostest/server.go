// Package rostest provides an in-process rosbridge server for tests.
package rostest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"armcam/ros"
)

// Server accepts rosbridge connections and records every op it receives.
type Server struct {
	// URL is the ws:// address to pass to ros.Dial.
	URL string

	srv      *httptest.Server
	upgrader websocket.Upgrader
	ops      chan ros.Op

	l     sync.Mutex
	conns []*websocket.Conn
}

func NewServer() *Server {
	s := &Server{
		ops: make(chan ros.Op, 256),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.l.Lock()
	s.conns = append(s.conns, ws)
	s.l.Unlock()
	for {
		var op ros.Op
		if err := ws.ReadJSON(&op); err != nil {
			return
		}
		s.ops <- op
	}
}

// Next returns the next op received from any client.
func (s *Server) Next(timeout time.Duration) (ros.Op, error) {
	select {
	case op := <-s.ops:
		return op, nil
	case <-time.After(timeout):
		return ros.Op{}, fmt.Errorf("no op received within %v", timeout)
	}
}

// Expect skips ops until one named name arrives.
func (s *Server) Expect(name string, timeout time.Duration) (ros.Op, error) {
	deadline := time.Now().Add(timeout)
	for {
		op, err := s.Next(time.Until(deadline))
		if err != nil {
			return op, fmt.Errorf("waiting for %q: %w", name, err)
		}
		if op.Op == name {
			return op, nil
		}
	}
}

// Publish sends msg on topic to every connected client.
func (s *Server) Publish(topic string, msg interface{}) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Send(&ros.Op{Op: ros.OpPublish, Topic: topic, Msg: b})
}

// Send writes a raw op to every connected client.
func (s *Server) Send(op *ros.Op) error {
	s.l.Lock()
	defer s.l.Unlock()
	for _, c := range s.conns {
		if err := c.WriteJSON(op); err != nil {
			return err
		}
	}
	return nil
}

// SendRaw writes b as a text frame to every connected client.
func (s *Server) SendRaw(b []byte) error {
	s.l.Lock()
	defer s.l.Unlock()
	for _, c := range s.conns {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// Drop closes all client connections without a close handshake.
func (s *Server) Drop() {
	s.l.Lock()
	defer s.l.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *Server) Close() {
	s.Drop()
	s.srv.Close()
}
