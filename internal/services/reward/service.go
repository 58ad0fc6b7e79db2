package reward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Test-112k/auraluxx/backend/internal/domain/model"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
)

// Session states. AD_OPEN is the only live state; everything else is
// terminal. REWARDING is terminal too: it records that the grant branch was
// taken, with Granted/FailCode telling whether the persisted write landed.
const (
	StateAdOpen    = "AD_OPEN"
	StateRewarding = "REWARDING"
	StateRejected  = "REJECTED"
	StateBlocked   = "BLOCKED"
	StateCancelled = "CANCELLED"
)

const (
	FailPopupBlocked      = "POPUP_BLOCKED"
	FailInsufficientDwell = "INSUFFICIENT_DWELL"
	FailGrantWrite        = "GRANT_WRITE_FAILED"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrSessionNotFound = errors.New("reward session not found")
)

// RateLimitError is returned by Start when reward attempts are throttled.
type RateLimitError struct {
	RetryAfterSec int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reward attempts throttled, retry after %ds", e.RetryAfterSec)
}

// Entitlements is the slice of the entitlement controller the flow needs:
// the authoritative cap check and the single grant mutation.
type Entitlements interface {
	Status(ctx context.Context, userID int64) (entsvc.Status, error)
	Grant(ctx context.Context, userID int64) (entsvc.Status, error)
}

type AttemptLimiter interface {
	AllowStart(ctx context.Context, userID int64) (int64, bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, level, code, message string)
}

type Config struct {
	MinDwell         time.Duration
	WatchTimeout     time.Duration
	PollInterval     time.Duration
	AdURL            string
	SessionRetention time.Duration
}

// session is the server-side record of one ad-watch attempt. The resolved
// flag is the reentrancy latch: whichever observer (closed report, hard
// timeout) flips it first under the mutex owns the terminal transition, so
// the grant and the user notification each happen at most once.
type session struct {
	id       string
	userID   int64
	state    string
	openedAt time.Time
	closedAt *time.Time
	resolved bool
	granted  bool
	failCode string
	doneAt   time.Time
	timer    *time.Timer
}

type Service struct {
	mu       sync.Mutex
	sessions map[string]*session

	entitlements Entitlements
	limiter      AttemptLimiter
	notifier     Notifier
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

// StartResult carries what the client needs to run its side of the flow:
// where to point the ad window and the cadence/thresholds to watch it with.
type StartResult struct {
	Session        model.RewardSession
	AdURL          string
	MinDwellSec    int64
	TimeoutSec     int64
	PollIntervalMS int64
}

func NewService(entitlements Entitlements, limiter AttemptLimiter, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.MinDwell <= 0 {
		cfg.MinDwell = 10 * time.Second
	}
	if cfg.WatchTimeout <= cfg.MinDwell {
		cfg.WatchTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		sessions:     make(map[string]*session),
		entitlements: entitlements,
		limiter:      limiter,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Start opens a new ad-watch session. It refuses before creating anything
// when the user is already at the cap (the client must not open a window)
// or when attempts are throttled.
func (s *Service) Start(ctx context.Context, userID int64) (StartResult, error) {
	if userID <= 0 {
		return StartResult{}, ErrValidation
	}
	if s.entitlements == nil {
		return StartResult{}, fmt.Errorf("entitlement service is nil")
	}

	status, err := s.entitlements.Status(ctx, userID)
	if err != nil {
		return StartResult{}, fmt.Errorf("check entitlement status: %w", err)
	}
	if !status.CanWatchAds {
		return StartResult{}, entsvc.ErrCapReached
	}

	if s.limiter != nil {
		retryAfter, ok, err := s.limiter.AllowStart(ctx, userID)
		if err != nil {
			return StartResult{}, fmt.Errorf("check reward rate limit: %w", err)
		}
		if !ok {
			return StartResult{}, &RateLimitError{RetryAfterSec: retryAfter}
		}
	}

	sess := &session{
		id:       uuid.NewString(),
		userID:   userID,
		state:    StateAdOpen,
		openedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	sess.timer = time.AfterFunc(s.cfg.WatchTimeout, func() {
		s.handleTimeout(sess.id)
	})
	view := s.viewLocked(sess)
	s.mu.Unlock()

	return StartResult{
		Session:        view,
		AdURL:          s.cfg.AdURL,
		MinDwellSec:    int64(s.cfg.MinDwell / time.Second),
		TimeoutSec:     int64(s.cfg.WatchTimeout / time.Second),
		PollIntervalMS: s.cfg.PollInterval.Milliseconds(),
	}, nil
}

// ReportClosed handles the client's "window closed or became
// cross-origin-inaccessible" signal. Under minimum dwell the attempt is
// rejected; otherwise the grant runs exactly once. Reporting an already
// resolved session is a no-op that returns the terminal view.
func (s *Service) ReportClosed(ctx context.Context, userID int64, sessionID string) (model.RewardSession, error) {
	s.mu.Lock()
	sess, err := s.lookupLocked(userID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return model.RewardSession{}, err
	}
	if sess.resolved {
		view := s.viewLocked(sess)
		s.mu.Unlock()
		return view, nil
	}

	now := s.now().UTC()
	sess.resolved = true
	sess.closedAt = &now
	sess.stopTimerLocked()

	if now.Sub(sess.openedAt) < s.cfg.MinDwell {
		sess.state = StateRejected
		sess.failCode = FailInsufficientDwell
		sess.doneAt = now
		view := s.viewLocked(sess)
		s.mu.Unlock()

		s.notify(ctx, userID, "warning", FailInsufficientDwell, "ad closed too early, no time added")
		return view, nil
	}

	sess.state = StateRewarding
	sess.doneAt = now
	s.mu.Unlock()

	return s.grant(ctx, sess)
}

// ReportBlocked records that the ad window never opened (popup blocker).
func (s *Service) ReportBlocked(ctx context.Context, userID int64, sessionID string) (model.RewardSession, error) {
	s.mu.Lock()
	sess, err := s.lookupLocked(userID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return model.RewardSession{}, err
	}
	if sess.resolved {
		view := s.viewLocked(sess)
		s.mu.Unlock()
		return view, nil
	}

	sess.resolved = true
	sess.state = StateBlocked
	sess.failCode = FailPopupBlocked
	sess.doneAt = s.now().UTC()
	sess.stopTimerLocked()
	view := s.viewLocked(sess)
	s.mu.Unlock()

	s.notify(ctx, userID, "warning", FailPopupBlocked, "popup was blocked, allow popups for this site and try again")
	return view, nil
}

// Cancel is the unmount-cleanup path: the hosting UI went away before the
// flow resolved. Timers are reaped, nothing is granted, nobody is notified.
func (s *Service) Cancel(ctx context.Context, userID int64, sessionID string) (model.RewardSession, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(userID, sessionID)
	if err != nil {
		return model.RewardSession{}, err
	}
	if sess.resolved {
		return s.viewLocked(sess), nil
	}

	sess.resolved = true
	sess.state = StateCancelled
	sess.doneAt = s.now().UTC()
	sess.stopTimerLocked()

	return s.viewLocked(sess), nil
}

// Get returns the current view of a session.
func (s *Service) Get(userID int64, sessionID string) (model.RewardSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(userID, sessionID)
	if err != nil {
		return model.RewardSession{}, err
	}
	return s.viewLocked(sess), nil
}

// Sweep drops terminal sessions older than the retention window and
// returns how many were removed. Live sessions are never touched.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.cfg.SessionRetention)
	removed := 0
	for id, sess := range s.sessions {
		if sess.resolved && sess.doneAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops all pending timers. Live sessions resolve as cancelled.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, sess := range s.sessions {
		if !sess.resolved {
			sess.resolved = true
			sess.state = StateCancelled
			sess.doneAt = now
		}
		sess.stopTimerLocked()
	}
}

// handleTimeout is the hard-timeout observer. It runs on the timer
// goroutine, so it must report failures itself instead of returning them.
func (s *Service) handleTimeout(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.resolved {
		s.mu.Unlock()
		return
	}

	now := s.now().UTC()
	sess.resolved = true
	sess.doneAt = now

	if now.Sub(sess.openedAt) < s.cfg.MinDwell {
		sess.state = StateRejected
		sess.failCode = FailInsufficientDwell
		userID := sess.userID
		s.mu.Unlock()

		s.notify(context.Background(), userID, "warning", FailInsufficientDwell, "ad closed too early, no time added")
		return
	}

	sess.state = StateRewarding
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.grant(ctx, sess); err != nil {
		s.logger.Warn("reward grant after timeout failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// grant performs the entitlement mutation for a session already latched
// into REWARDING. Exactly one notification leaves here per session.
func (s *Service) grant(ctx context.Context, sess *session) (model.RewardSession, error) {
	status, err := s.entitlements.Grant(ctx, sess.userID)

	s.mu.Lock()
	if err != nil {
		sess.failCode = FailGrantWrite
		view := s.viewLocked(sess)
		s.mu.Unlock()

		s.notify(ctx, sess.userID, "error", FailGrantWrite, "failed to add ad-free time, try again")
		return view, fmt.Errorf("grant ad-free time: %w", err)
	}

	sess.granted = true
	view := s.viewLocked(sess)
	s.mu.Unlock()

	s.notify(ctx, sess.userID, "success", "REWARD_GRANTED",
		fmt.Sprintf("ad-free time added, %d minutes remaining", status.SecondsLeft/60))
	return view, nil
}

func (s *Service) notify(ctx context.Context, userID int64, level, code, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, level, code, message)
}

func (s *Service) lookupLocked(userID int64, sessionID string) (*session, error) {
	if userID <= 0 || sessionID == "" {
		return nil, ErrValidation
	}
	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) viewLocked(sess *session) model.RewardSession {
	view := model.RewardSession{
		ID:        sess.id,
		UserID:    sess.userID,
		State:     sess.state,
		OpenedAt:  sess.openedAt,
		ClosedAt:  sess.closedAt,
		Granted:   sess.granted,
		FailCode:  sess.failCode,
		ExpiresAt: sess.openedAt.Add(s.cfg.WatchTimeout),
	}
	if sess.closedAt != nil {
		view.DwellSec = int64(sess.closedAt.Sub(sess.openedAt) / time.Second)
	}
	return view
}

func (sess *session) stopTimerLocked() {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}
