package match

import (
	"errors"
)

var (
	ErrSessionNotFound      = errors.New("session expired or not found")
	ErrNotAParticipant      = errors.New("not a participant in this session")
	ErrNotActive            = errors.New("session is not active")
	ErrOutOfTurn            = errors.New("out of turn")
	ErrIllegalMove          = errors.New("illegal move")
	ErrMalformedPosition    = errors.New("malformed position")
	ErrNoPendingOffer       = errors.New("no pending draw offer")
	ErrCannotRejectOwnOffer = errors.New("cannot reject own draw offer")
	ErrCannotAcceptOwnOffer = errors.New("cannot accept own draw offer")
	ErrSeatTaken            = errors.New("seat already taken")
	ErrAlreadySeated        = errors.New("participant already holds this seat")
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindUnauthorized Kind = "Unauthorized"
	KindInvalidState Kind = "InvalidState"
	KindIllegalInput Kind = "IllegalInput"
	KindUpstream     Kind = "Upstream"
)

type classified struct {
	err  error
	kind Kind
	code string
	key  string
}

var taxonomy = []classified{
	{ErrSessionNotFound, KindNotFound, "SESSION_NOT_FOUND", "errors.session_not_found"},
	{ErrNoPendingOffer, KindNotFound, "NO_PENDING_OFFER", "errors.no_pending_offer"},
	{ErrNotAParticipant, KindUnauthorized, "NOT_A_PARTICIPANT", "errors.not_a_participant"},
	{ErrNotActive, KindInvalidState, "NOT_ACTIVE", "errors.not_active"},
	{ErrOutOfTurn, KindInvalidState, "OUT_OF_TURN", "errors.out_of_turn"},
	{ErrCannotRejectOwnOffer, KindInvalidState, "CANNOT_REJECT_OWN_OFFER", "errors.cannot_reject_own_offer"},
	{ErrCannotAcceptOwnOffer, KindInvalidState, "CANNOT_ACCEPT_OWN_OFFER", "errors.cannot_accept_own_offer"},
	{ErrSeatTaken, KindInvalidState, "SEAT_TAKEN", "lobby.full"},
	{ErrAlreadySeated, KindInvalidState, "ALREADY_SEATED", "lobby.already_in_game"},
	{ErrIllegalMove, KindIllegalInput, "ILLEGAL_MOVE", "errors.illegal_move"},
	{ErrMalformedPosition, KindIllegalInput, "MALFORMED_POSITION", "errors.malformed_position"},
}

func lookup(err error) (classified, bool) {
	for _, c := range taxonomy {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return classified{}, false
}

// KindOf maps err onto the taxonomy; anything unrecognised is Upstream.
func KindOf(err error) Kind {
	if c, ok := lookup(err); ok {
		return c.kind
	}
	return KindUpstream
}

// Code is the structured error code sent alongside gameError messages.
func Code(err error) string {
	if c, ok := lookup(err); ok {
		return c.code
	}
	return "UPSTREAM"
}

// MessageKey is the catalog key for the user-facing text of err.
func MessageKey(err error) string {
	if c, ok := lookup(err); ok {
		return c.key
	}
	return "errors.upstream"
}

// Recoverable reports whether err only rejects the single event.
func Recoverable(err error) bool { return KindOf(err) != KindUpstream }
