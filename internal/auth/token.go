// Package auth issues and verifies participant identity tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/park285/Cheese-Arena/internal/domain"
)

const (
	issuer      = "cheese-arena"
	guestPrefix = "guest-"
)

var (
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
	ErrInvalidToken         = errors.New("invalid token")
	ErrMissingSecret        = errors.New("jwt secret is empty")
)

// Identity is a verified participant.
type Identity struct {
	ID    string
	Name  string
	Guest bool
}

// Kind is the only session kind this identity may sit in.
func (i Identity) Kind() domain.Kind {
	if i.Guest {
		return domain.KindGuest
	}
	return domain.KindRated
}

// DisplayName falls back to the id when no name was issued.
func (i Identity) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return i.ID
}

type claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Guest bool   `json:"guest,omitempty"`
}

// Tokens signs and parses HS256 access tokens.
type Tokens struct {
	secret   []byte
	userTTL  time.Duration
	guestTTL time.Duration
	now      func() time.Time
}

func NewTokens(secret string, userTTL, guestTTL time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if userTTL <= 0 {
		userTTL = 24 * time.Hour
	}
	if guestTTL <= 0 {
		guestTTL = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), userTTL: userTTL, guestTTL: guestTTL, now: time.Now}, nil
}

// Issue signs a token for subject. Guest subjects must carry the guest prefix.
func (t *Tokens) Issue(subject, name string, guest bool) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	if guest != strings.HasPrefix(subject, guestPrefix) {
		return "", time.Time{}, errors.New("guest flag and subject prefix disagree")
	}
	ttl := t.userTTL
	if guest {
		ttl = t.guestTTL
	}
	now := t.now()
	exp := now.Add(ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Name:  strings.TrimSpace(name),
		Guest: guest,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueGuest mints a fresh guest identity and its token.
func (t *Tokens) IssueGuest(name string) (Identity, string, time.Time, error) {
	id := guestPrefix + uuid.NewString()
	if strings.TrimSpace(name) == "" {
		name = "Guest-" + id[len(guestPrefix):len(guestPrefix)+6]
	}
	tok, exp, err := t.Issue(id, name, true)
	if err != nil {
		return Identity{}, "", time.Time{}, err
	}
	return Identity{ID: id, Name: strings.TrimSpace(name), Guest: true}, tok, exp, nil
}

// Verify parses token and returns the identity it carries.
func (t *Tokens) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	if c.Guest != strings.HasPrefix(c.Subject, guestPrefix) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: c.Subject, Name: c.Name, Guest: c.Guest}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
