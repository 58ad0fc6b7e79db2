package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrCapReached = errors.New("ad-free cap reached")
)

// Store is the minimal persistence contract: one absolute expiry per user,
// read and atomically extended. The service never writes a client-computed
// absolute value.
type Store interface {
	GetAdFreeUntil(ctx context.Context, userID int64) (*time.Time, error)
	ExtendAdFree(ctx context.Context, userID int64, delta time.Duration, now time.Time) (time.Time, error)
}

type Config struct {
	GrantDuration time.Duration
	MaxDuration   time.Duration
}

type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Status is derived session state, recomputed from the stored expiry on
// every call. SecondsLeft is floored so the UI never shows more time than
// actually remains.
type Status struct {
	UserID      int64
	AdFree      bool
	AdFreeUntil *time.Time
	SecondsLeft int64
	CanWatchAds bool
}

func NewService(store Store, cfg Config) *Service {
	if cfg.GrantDuration <= 0 {
		cfg.GrantDuration = 30 * time.Minute
	}
	if cfg.MaxDuration < cfg.GrantDuration {
		cfg.MaxDuration = 3 * time.Hour
	}

	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *Service) GrantSeconds() int64 {
	return int64(s.cfg.GrantDuration / time.Second)
}

func (s *Service) MaxSeconds() int64 {
	return int64(s.cfg.MaxDuration / time.Second)
}

func (s *Service) Status(ctx context.Context, userID int64) (Status, error) {
	if userID <= 0 {
		return Status{}, ErrValidation
	}
	if s.store == nil {
		return Status{}, fmt.Errorf("entitlement store is nil")
	}

	until, err := s.store.GetAdFreeUntil(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("read ad-free expiry: %w", err)
	}

	return s.statusAt(userID, until, s.now().UTC()), nil
}

// Grant extends the entitlement by one grant duration, additively from
// whichever baseline is later: now or the current expiry. Exactly one
// persisted write per successful call; the cap check may act on a stale
// read, which is acceptable because the extend itself is atomic.
func (s *Service) Grant(ctx context.Context, userID int64) (Status, error) {
	if userID <= 0 {
		return Status{}, ErrValidation
	}
	if s.store == nil {
		return Status{}, fmt.Errorf("entitlement store is nil")
	}

	now := s.now().UTC()
	until, err := s.store.GetAdFreeUntil(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("read ad-free expiry: %w", err)
	}
	if !s.statusAt(userID, until, now).CanWatchAds {
		return Status{}, ErrCapReached
	}

	newUntil, err := s.store.ExtendAdFree(ctx, userID, s.cfg.GrantDuration, now)
	if err != nil {
		return Status{}, fmt.Errorf("extend ad-free entitlement: %w", err)
	}

	return s.statusAt(userID, &newUntil, now), nil
}

// statusAt derives everything from the absolute expiry. The cap comparison
// is exclusive: a user sitting exactly at the cap may not watch another ad.
func (s *Service) statusAt(userID int64, until *time.Time, now time.Time) Status {
	st := Status{UserID: userID, AdFreeUntil: until}

	if until != nil && until.After(now) {
		st.AdFree = true
		st.SecondsLeft = int64(until.Sub(now) / time.Second)
	}

	st.CanWatchAds = st.SecondsLeft < s.MaxSeconds()
	return st
}
