package matchwire

// SessionRef is the inbound payload of every event; Notation is set for moves.
type SessionRef struct {
	SessionID string `json:"sessionId"`
	Notation  string `json:"notation,omitempty"`
}

type Message struct {
	Message string `json:"message"`
}

type MatchStarted struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	White     string `json:"white"`
	Black     string `json:"black"`
	Position  string `json:"position"`
}

type MoveApplied struct {
	Notation   string `json:"notation"`
	SAN        string `json:"san"`
	UCI        string `json:"uci"`
	Position   string `json:"position"`
	SideToMove string `json:"sideToMove"`
	InCheck    bool   `json:"inCheck"`
	By         string `json:"by"`
}

type MatchEnded struct {
	Message  string         `json:"message"`
	Result   string         `json:"result"`
	WinnerID string         `json:"winnerId,omitempty"`
	Ratings  map[string]int `json:"ratings,omitempty"`
}

type Resigned struct {
	Message       string `json:"message"`
	ByParticipant string `json:"byParticipant"`
	NewRating     *int   `json:"newRating,omitempty"`
}

type GameError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// State is a read-only snapshot for reconnecting clients.
type State struct {
	SessionID   string   `json:"sessionId"`
	Phase       string   `json:"phase"`
	Position    string   `json:"position"`
	SideToMove  string   `json:"sideToMove"`
	White       string   `json:"white,omitempty"`
	Black       string   `json:"black,omitempty"`
	WhiteReady  bool     `json:"whiteReady"`
	BlackReady  bool     `json:"blackReady"`
	Moves       []string `json:"moves"`
	DrawOfferBy string   `json:"drawOfferBy,omitempty"`
	Result      string   `json:"result,omitempty"`
	WinnerID    string   `json:"winnerId,omitempty"`
}
