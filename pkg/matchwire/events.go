// Package matchwire defines the websocket frames exchanged with match clients.
package matchwire

import "encoding/json"

// Inbound events.
const (
	EventReady      = "ready"
	EventMove       = "move"
	EventResign     = "resign"
	EventDrawOffer  = "drawOffer"
	EventAcceptDraw = "acceptDraw"
	EventRejectDraw = "rejectDraw"
	EventState      = "state"
)

// Outbound events. EventReady and EventState are reused as replies.
const (
	EventMatchStarted = "matchStarted"
	EventMoveApplied  = "moveApplied"
	EventMatchEnded   = "matchEnded"
	EventResigned     = "resigned"
	EventDrawOffered  = "drawOffered"
	EventDrawAccepted = "drawAccepted"
	EventDrawRejected = "drawRejected"
	EventGameError    = "gameError"
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into a frame ready to write.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(event string, payload any) []byte {
	b, err := Encode(event, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode splits a raw frame and unmarshals its data into out when non-nil.
func Decode(raw []byte, out any) (string, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", err
	}
	if out != nil && len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, out); err != nil {
			return f.Event, err
		}
	}
	return f.Event, nil
}
