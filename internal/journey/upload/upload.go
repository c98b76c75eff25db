// Package upload issues and verifies signed, expiring document upload
// locations. The engine never stores file bytes; it only learns a storage id
// once the applicant attaches a location it was issued.
package upload

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"onboarding/pkg/platform/sentinel"
)

const audience = "onboarding-uploads"

// ErrInvalidToken covers tokens that are malformed, badly signed, or issued
// to someone else.
var ErrInvalidToken = errors.New("invalid upload token")

// Location is a single-document write location handed to the applicant.
type Location struct {
	URL       string    `json:"upload_url"`
	StorageID uuid.UUID `json:"storage_id"`
	Token     string    `json:"upload_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	StorageID string `json:"storage_id"`
	jwt.RegisteredClaims
}

// Signer mints and checks upload tokens with an HMAC key.
type Signer struct {
	key     []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Signer)

// WithClock overrides the signer's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

func NewSigner(key, baseURL string, ttl time.Duration, opts ...Option) (*Signer, error) {
	if key == "" {
		return nil, errors.New("upload signing key is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("upload base url: %w", err)
	}
	s := &Signer{key: []byte(key), baseURL: baseURL, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate issues a new location for userID.
func (s *Signer) Generate(userID uuid.UUID) (Location, error) {
	now := s.now()
	storageID := uuid.New()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		StorageID: storageID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  []string{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}).SignedString(s.key)
	if err != nil {
		return Location{}, fmt.Errorf("sign upload token: %w", err)
	}

	u, err := url.JoinPath(s.baseURL, storageID.String())
	if err != nil {
		return Location{}, fmt.Errorf("build upload url: %w", err)
	}
	return Location{URL: u, StorageID: storageID, Token: token, ExpiresAt: expiresAt}, nil
}

// Verify returns the storage id the token was issued for. Expired tokens
// yield sentinel.ErrExpired; anything else wrong yields ErrInvalidToken.
func (s *Signer) Verify(token string, userID uuid.UUID) (uuid.UUID, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.key, nil
	},
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, sentinel.ErrExpired
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject != userID.String() {
		return uuid.Nil, ErrInvalidToken
	}
	storageID, err := uuid.Parse(c.StorageID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: storage id", ErrInvalidToken)
	}
	return storageID, nil
}
