// Package httpapi is the HTTP lobby: guest tokens and match creation/joining.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/lobby"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type Tokens interface {
	Verify(token string) (auth.Identity, error)
	IssueGuest(name string) (auth.Identity, string, time.Time, error)
}

type Lobby interface {
	Create(ctx context.Context, creator auth.Identity, side lobby.ColorChoice) (*lobby.Seated, error)
	Join(ctx context.Context, id string, joiner auth.Identity) (*lobby.Seated, error)
	Get(ctx context.Context, id string) (*domain.MatchRecord, error)
}

type Server struct {
	tokens   Tokens
	lobby    Lobby
	msgs     *msgcat.Catalog
	validate *Validator
	timeout  time.Duration
}

func NewServer(tokens Tokens, l Lobby, msgs *msgcat.Catalog) *Server {
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	return &Server{tokens: tokens, lobby: l, msgs: msgs, validate: NewValidator(), timeout: 5 * time.Second}
}

// Handler routes lobby requests.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := strings.TrimRight(string(ctx.Path()), "/")
		method := string(ctx.Method())
		switch {
		case path == "/healthz" && method == fasthttp.MethodGet:
			s.ok(ctx, fasthttp.StatusOK, "lobby.ok", nil)
		case path == "/guest" && method == fasthttp.MethodPost:
			s.issueGuest(ctx)
		case path == "/matches" && method == fasthttp.MethodPost:
			s.authed(ctx, s.createMatch)
		case strings.HasPrefix(path, "/matches/"):
			rest := strings.TrimPrefix(path, "/matches/")
			if id, ok := strings.CutSuffix(rest, "/join"); ok && method == fasthttp.MethodPost && validID(id) {
				s.authed(ctx, func(ctx *fasthttp.RequestCtx, who auth.Identity) { s.joinMatch(ctx, who, id) })
				return
			}
			if method == fasthttp.MethodGet && validID(rest) {
				s.authed(ctx, func(ctx *fasthttp.RequestCtx, _ auth.Identity) { s.getMatch(ctx, rest) })
				return
			}
			s.fail(ctx, fasthttp.StatusNotFound, "lobby.not_found", nil)
		default:
			s.fail(ctx, fasthttp.StatusNotFound, "lobby.not_found", nil)
		}
	}
}

func validID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

func (s *Server) authed(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx, auth.Identity)) {
	who, err := s.tokens.Verify(auth.BearerToken(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))))
	if err != nil {
		s.fail(ctx, fasthttp.StatusUnauthorized, "lobby.unauthorized", nil)
		return
	}
	next(ctx, who)
}

func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Server) issueGuest(ctx *fasthttp.RequestCtx) {
	var req GuestRequest
	if !s.bind(ctx, &req, true) {
		return
	}
	who, token, exp, err := s.tokens.IssueGuest(req.Name)
	if err != nil {
		s.internal(ctx, "issue_guest", err)
		return
	}
	s.ok(ctx, fasthttp.StatusCreated, "lobby.guest_issued", GuestResponse{
		Token:         token,
		ParticipantID: who.ID,
		Name:          who.Name,
		ExpiresAt:     exp,
	})
}

func (s *Server) createMatch(ctx *fasthttp.RequestCtx, who auth.Identity) {
	var req CreateMatchRequest
	if !s.bind(ctx, &req, true) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	seated, err := s.lobby.Create(rctx, who, lobby.ParseColorChoice(req.Side))
	if err != nil {
		s.lobbyError(ctx, "create_match", err)
		return
	}
	s.ok(ctx, fasthttp.StatusCreated, "lobby.created", viewOf(seated.Match, seated.Seat))
}

func (s *Server) joinMatch(ctx *fasthttp.RequestCtx, who auth.Identity, id string) {
	rctx, cancel := s.requestContext()
	defer cancel()
	seated, err := s.lobby.Join(rctx, id, who)
	if err != nil {
		s.lobbyError(ctx, "join_match", err)
		return
	}
	s.ok(ctx, fasthttp.StatusOK, "lobby.joined", viewOf(seated.Match, seated.Seat))
}

func (s *Server) getMatch(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext()
	defer cancel()
	rec, err := s.lobby.Get(rctx, id)
	if err != nil {
		s.lobbyError(ctx, "get_match", err)
		return
	}
	s.ok(ctx, fasthttp.StatusOK, "lobby.found", viewOf(rec, ""))
}

// bind decodes the JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func (s *Server) bind(ctx *fasthttp.RequestCtx, dst any, optional bool) bool {
	body := ctx.PostBody()
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			s.fail(ctx, fasthttp.StatusBadRequest, "errors.bad_request", nil)
			return false
		}
	} else if !optional {
		s.fail(ctx, fasthttp.StatusBadRequest, "errors.bad_request", nil)
		return false
	}
	if fields := s.validate.Fields(dst); len(fields) > 0 {
		s.fail(ctx, fasthttp.StatusBadRequest, "errors.bad_request", fields)
		return false
	}
	return true
}

func (s *Server) lobbyError(ctx *fasthttp.RequestCtx, op string, err error) {
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		s.fail(ctx, fasthttp.StatusNotFound, "lobby.not_found", nil)
	case errors.Is(err, lobby.ErrFull):
		s.fail(ctx, fasthttp.StatusConflict, "lobby.full", nil)
	case errors.Is(err, lobby.ErrAlreadyJoined):
		s.fail(ctx, fasthttp.StatusConflict, "lobby.already_in_game", nil)
	case errors.Is(err, lobby.ErrKindMismatch):
		s.fail(ctx, fasthttp.StatusForbidden, "lobby.kind_mismatch", nil)
	case errors.Is(err, lobby.ErrInvalidArgs):
		s.fail(ctx, fasthttp.StatusBadRequest, "errors.bad_request", nil)
	default:
		s.internal(ctx, op, err)
	}
}

func (s *Server) internal(ctx *fasthttp.RequestCtx, op string, err error) {
	obslog.L().Error("http_"+op+"_error", zap.Error(err))
	s.fail(ctx, fasthttp.StatusInternalServerError, "errors.upstream", nil)
}

func (s *Server) ok(ctx *fasthttp.RequestCtx, status int, key string, data any) {
	writeJSON(ctx, status, envelope{Status: "success", Message: s.msgs.Text(key, nil), Data: data})
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, status int, key string, fields map[string]string) {
	writeJSON(ctx, status, envelope{Status: "error", Message: s.msgs.Text(key, nil), Errors: fields})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v envelope) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}
