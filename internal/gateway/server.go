// Package gateway is the websocket transport for match events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/match"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Engine is the set of session operations reachable from a connection.
type Engine interface {
	MarkReady(ctx context.Context, ev match.Event) error
	SubmitMove(ctx context.Context, ev match.Event) error
	Resign(ctx context.Context, ev match.Event) error
	OfferDraw(ctx context.Context, ev match.Event) error
	AcceptDraw(ctx context.Context, ev match.Event) error
	RejectDraw(ctx context.Context, ev match.Event) error
	State(ctx context.Context, ev match.Event) error
}

type Rooms interface {
	Drop(m room.Member)
}

type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	EventTimeout   time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.EventTimeout <= 0 {
		o.EventTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 16 << 10
	}
	return o
}

type Server struct {
	verifier Verifier
	rooms    Rooms
	msgs     *msgcat.Catalog
	opts     Options
	handlers map[string]func(context.Context, match.Event) error
}

func NewServer(v Verifier, eng Engine, rooms Rooms, msgs *msgcat.Catalog, opts Options) *Server {
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	return &Server{
		verifier: v,
		rooms:    rooms,
		msgs:     msgs,
		opts:     opts.withDefaults(),
		handlers: map[string]func(context.Context, match.Event) error{
			matchwire.EventReady:      eng.MarkReady,
			matchwire.EventMove:       eng.SubmitMove,
			matchwire.EventResign:     eng.Resign,
			matchwire.EventDrawOffer:  eng.OfferDraw,
			matchwire.EventAcceptDraw: eng.AcceptDraw,
			matchwire.EventRejectDraw: eng.RejectDraw,
			matchwire.EventState:      eng.State,
		},
	}
}

// Handler serves GET /ws and GET /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func tokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return auth.BearerToken(r.Header.Get("Authorization"))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// 토큰 검증은 업그레이드 전에 수행
	identity, err := s.verifier.Verify(tokenFrom(r))
	if err != nil {
		obslog.L().Debug("gateway_auth_rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, s.msgs.Text("lobby.unauthorized", nil), http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.opts.OriginPatterns,
	})
	if err != nil {
		obslog.L().Warn("gateway_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)

	c := newClient(uuid.NewString(), identity, conn, s.opts.SendBuffer)
	s.run(r.Context(), c)
}

func (s *Server) run(parent context.Context, c *client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	obslog.L().Info("gateway_conn_open",
		zap.String("conn_id", c.id),
		zap.String("participant_id", c.identity.ID),
		zap.Bool("guest", c.identity.Guest),
	)

	go c.writePump(ctx, s.opts.WriteTimeout)
	go c.pingLoop(ctx, s.opts.PingInterval)

	status, reason := s.readLoop(ctx, c)

	s.rooms.Drop(c)
	c.close(status, reason)
	obslog.L().Info("gateway_conn_close", zap.String("conn_id", c.id), zap.String("participant_id", c.identity.ID), zap.String("reason", reason))
}

// readLoop dispatches frames one at a time, in arrival order.
func (s *Server) readLoop(ctx context.Context, c *client) (websocket.StatusCode, string) {
	for {
		typ, raw, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return websocket.StatusNormalClosure, "closed"
			}
			obslog.L().Debug("gateway_read_error", zap.String("conn_id", c.id), zap.Error(err))
			return websocket.StatusGoingAway, "read failure"
		}
		if typ != websocket.MessageText {
			s.sendError(c, "errors.bad_request", "BAD_REQUEST")
			continue
		}
		var frame matchwire.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(c, "errors.bad_request", "BAD_REQUEST")
			continue
		}
		s.dispatch(ctx, c, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, frame matchwire.Frame) {
	handler, ok := s.handlers[frame.Event]
	if !ok {
		s.sendError(c, "errors.unknown_event", "UNKNOWN_EVENT")
		return
	}
	var ref matchwire.SessionRef
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &ref); err != nil {
			s.sendError(c, "errors.bad_request", "BAD_REQUEST")
			return
		}
	}
	ev := match.Event{
		SessionID:     strings.TrimSpace(ref.SessionID),
		ParticipantID: c.identity.ID,
		Notation:      strings.TrimSpace(ref.Notation),
		Origin:        c,
	}
	ectx, cancel := context.WithTimeout(ctx, s.opts.EventTimeout)
	defer cancel()
	if err := handler(ectx, ev); err != nil {
		s.sendError(c, match.MessageKey(err), match.Code(err))
	}
}

func (s *Server) sendError(c *client, key, code string) {
	frame, err := matchwire.Encode(matchwire.EventGameError, matchwire.GameError{Message: s.msgs.Text(key, nil), Code: code})
	if err != nil {
		return
	}
	c.Send(frame)
}
