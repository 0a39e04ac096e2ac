package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
)

// Memory is a development and test twin of Postgres.
type Memory struct {
	mu            sync.RWMutex
	matches       map[string]*domain.MatchRecord
	users         map[string]*domain.User
	defaultRating int

	// finalizeHook, when set, runs before Finalize and may fail it.
	finalizeHook func(Final) error
	finalized    int
}

func NewMemory(defaultRating int) *Memory {
	if defaultRating <= 0 {
		defaultRating = DefaultRating
	}
	return &Memory{
		matches:       make(map[string]*domain.MatchRecord),
		users:         make(map[string]*domain.User),
		defaultRating: defaultRating,
	}
}

// FailFinalize installs a hook that can reject Finalize calls.
func (m *Memory) FailFinalize(hook func(Final) error) {
	m.mu.Lock()
	m.finalizeHook = hook
	m.mu.Unlock()
}

// FinalizeWrites counts Finalize calls that changed a row.
func (m *Memory) FinalizeWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalized
}

func (m *Memory) CreateMatch(_ context.Context, rec *domain.MatchRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("nil match payload")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matches[rec.ID]; exists {
		return ErrDuplicateMatch
	}
	c := copyMatch(rec)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.matches[rec.ID] = c
	return nil
}

func (m *Memory) AssignSeat(_ context.Context, matchID string, seat domain.Seat, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	slot := &rec.BlackID
	if seat == domain.White {
		slot = &rec.WhiteID
	}
	if *slot != "" && *slot != participantID {
		return ErrSeatTaken
	}
	*slot = participantID
	return nil
}

func (m *Memory) GetMatch(_ context.Context, id string) (*domain.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.matches[id]
	if !ok {
		return nil, nil
	}
	return copyMatch(rec), nil
}

func (m *Memory) SaveProgress(_ context.Context, matchID, fen string, movesSAN, movesUCI []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[matchID]
	if !ok || rec.Finished() {
		return nil
	}
	rec.FEN = fen
	rec.MovesSAN = append([]string(nil), movesSAN...)
	rec.MovesUCI = append([]string(nil), movesUCI...)
	return nil
}

func (m *Memory) Finalize(_ context.Context, f Final) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeHook != nil {
		if err := m.finalizeHook(f); err != nil {
			return Outcome{}, err
		}
	}
	if rec, ok := m.matches[f.MatchID]; ok && rec.Finished() {
		return Outcome{Applied: false, Match: copyMatch(rec), Ratings: m.ratingsLocked(rec)}, nil
	}

	// validate rating rows before touching anything so the write stays all-or-nothing
	if rc := f.Ratings; rc != nil {
		for _, id := range []string{rc.WinnerID, rc.LoserID} {
			if _, ok := m.users[id]; !ok {
				return Outcome{}, fmt.Errorf("adjust rating %s: %w", id, ErrNotFound)
			}
		}
	}

	ended := f.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	rec, ok := m.matches[f.MatchID]
	if !ok {
		rec = &domain.MatchRecord{ID: f.MatchID, Kind: f.Kind, CreatedAt: f.StartedAt}
		m.matches[f.MatchID] = rec
	}
	rec.WhiteID, rec.BlackID = f.WhiteID, f.BlackID
	rec.FEN = f.FEN
	rec.MovesSAN = append([]string(nil), f.MovesSAN...)
	rec.MovesUCI = append([]string(nil), f.MovesUCI...)
	rec.Result = f.Result
	rec.WinnerID = f.WinnerID
	rec.PGN = BuildPGN(f)
	rec.EndedAt = ended

	ratings := map[string]int{}
	if rc := f.Ratings; rc != nil {
		w, l := m.users[rc.WinnerID], m.users[rc.LoserID]
		w.Rating = domain.ClampRating(w.Rating, rc.Gain, rc.Min, rc.Max)
		l.Rating = domain.ClampRating(l.Rating, -rc.Loss, rc.Min, rc.Max)
		w.UpdatedAt, l.UpdatedAt = ended, ended
		ratings[w.ID], ratings[l.ID] = w.Rating, l.Rating
	}
	m.finalized++
	return Outcome{Applied: true, Match: copyMatch(rec), Ratings: ratings}, nil
}

func (m *Memory) ratingsLocked(rec *domain.MatchRecord) map[string]int {
	out := map[string]int{}
	if rec.Kind != domain.KindRated {
		return out
	}
	for _, id := range []string{rec.WhiteID, rec.BlackID} {
		if u, ok := m.users[id]; ok {
			out[id] = u.Rating
		}
	}
	return out
}

func (m *Memory) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) EnsureUser(_ context.Context, id, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		username = id
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		now := time.Now()
		u = &domain.User{ID: id, Username: username, Rating: m.defaultRating, CreatedAt: now, UpdatedAt: now}
		m.users[id] = u
	}
	c := *u
	return &c, nil
}

// SetRating overwrites a user's rating. Used to seed fixtures.
func (m *Memory) SetRating(id string, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Rating = rating
	}
}

func copyMatch(rec *domain.MatchRecord) *domain.MatchRecord {
	c := *rec
	c.MovesSAN = append([]string(nil), rec.MovesSAN...)
	c.MovesUCI = append([]string(nil), rec.MovesUCI...)
	return &c
}
