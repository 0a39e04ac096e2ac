package arenaclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type SocketState string

const (
	StateDisconnected SocketState = "disconnected"
	StateConnecting   SocketState = "connecting"
	StateConnected    SocketState = "connected"
	StateReconnecting SocketState = "reconnecting"
	StateFailed       SocketState = "failed"
)

type FrameCallback func(frame matchwire.Frame)

type StateCallback func(state SocketState)

var ErrNotConnected = errors.New("socket not connected")

// Socket is a gateway connection authenticated with a bearer token.
type Socket struct {
	wsURL string
	token string

	conn  *websocket.Conn
	connM sync.RWMutex
	state SocketState

	frameCbs []FrameCallback
	stateCbs []StateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewSocket(wsURL, token string, maxReconnectAttempts int) *Socket {
	return &Socket{
		wsURL:                wsURL,
		token:                token,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (s *Socket) OnFrame(cb FrameCallback) {
	s.cbM.Lock()
	s.frameCbs = append(s.frameCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) State() SocketState {
	s.connM.RLock()
	defer s.connM.RUnlock()
	return s.state
}

func (s *Socket) Connect(ctx context.Context) error {
	if st := s.State(); st == StateConnected || st == StateConnecting {
		return nil
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.setState(StateConnecting)
	if err := s.dial(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}
	return nil
}

func (s *Socket) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      http.Header{"Authorization": []string{"Bearer " + s.token}},
	})
	if err != nil {
		return err
	}
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
	return nil
}

// Send writes one event frame.
func (s *Socket) Send(ctx context.Context, event string, payload any) error {
	s.connM.RLock()
	conn := s.conn
	s.connM.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	return wsjson.Write(ctx, conn, matchwire.Frame{Event: event, Data: data})
}

func (s *Socket) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var frame matchwire.Frame
		if err := wsjson.Read(s.rootCtx, conn, &frame); err != nil {
			if s.isStopping() {
				return
			}
			s.drop(conn, "reconnect")
			s.scheduleReconnect()
			return
		}
		s.cbM.RLock()
		callbacks := append([]FrameCallback(nil), s.frameCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			if cb != nil {
				cb(frame)
			}
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.rootCtx.Done():
			return
		case <-t.C:
			if s.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					// closing makes listen fail, which schedules the reconnect
					_ = conn.Close(websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (s *Socket) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 {
		return
	}
	s.setState(StateReconnecting)
	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			if err := s.dial(s.rootCtx); err == nil {
				return
			}
		}
		s.setState(StateFailed)
	}()
}

func (s *Socket) current() *websocket.Conn {
	s.connM.RLock()
	defer s.connM.RUnlock()
	return s.conn
}

func (s *Socket) drop(conn *websocket.Conn, reason string) {
	s.connM.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	s.setState(StateDisconnected)
}

func (s *Socket) setState(state SocketState) {
	s.connM.Lock()
	s.state = state
	s.connM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

func (s *Socket) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if conn := s.current(); conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.setState(StateDisconnected)
		return nil
	}
}

func (s *Socket) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
