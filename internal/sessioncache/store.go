// Package sessioncache holds the live session record and its draw offer while
// a match is in flight.
package sessioncache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultDrawTTL    = 30 * time.Second
)

var (
	ErrExists          = errors.New("session already exists")
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

// DrawOffer is the pending proposal for a session. Absence means no offer.
type DrawOffer struct {
	OfferedBy string    `json:"offered_by"`
	OfferedAt time.Time `json:"offered_at"`
}

// Store is the session cache contract.
// Get and GetDrawOffer return (nil, nil) when the entry is missing or expired.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Save writes s if the cached version still equals s.Version, then bumps
	// s.Version and refreshes the expiry.
	Save(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	// IDs lists every cached session id, in no particular order.
	IDs(ctx context.Context) ([]string, error)

	SetDrawOffer(ctx context.Context, id string, offer DrawOffer) error
	GetDrawOffer(ctx context.Context, id string) (*DrawOffer, error)
	DeleteDrawOffer(ctx context.Context, id string) error
}

const sessionPrefix = "match:session:"

func sessionKey(id string) string { return sessionPrefix + strings.TrimSpace(id) }
func drawKey(id string) string    { return "match:draw:" + strings.TrimSpace(id) }

func ttlOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
