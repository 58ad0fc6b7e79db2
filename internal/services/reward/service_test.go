package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
)

type fakeEntitlements struct {
	mu       sync.Mutex
	status   entsvc.Status
	grants   int
	grantErr error
}

func (f *fakeEntitlements) Status(_ context.Context, userID int64) (entsvc.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.UserID = userID
	return st, nil
}

func (f *fakeEntitlements) Grant(_ context.Context, userID int64) (entsvc.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return entsvc.Status{}, f.grantErr
	}
	f.grants++
	return entsvc.Status{UserID: userID, AdFree: true, SecondsLeft: 1800, CanWatchAds: true}, nil
}

func (f *fakeEntitlements) grantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ int64, _, code, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
}

func (n *recordingNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.codes))
	copy(out, n.codes)
	return out
}

type allowAllLimiter struct{}

func (allowAllLimiter) AllowStart(context.Context, int64) (int64, bool, error) {
	return 0, true, nil
}

type denyLimiter struct{ retryAfter int64 }

func (l denyLimiter) AllowStart(context.Context, int64) (int64, bool, error) {
	return l.retryAfter, false, nil
}

func newFlowForTest(t *testing.T, ents *fakeEntitlements, notifier Notifier) *Service {
	t.Helper()

	svc := NewService(ents, allowAllLimiter{}, notifier, Config{
		MinDwell:     10 * time.Second,
		WatchTimeout: 60 * time.Second,
		PollInterval: 500 * time.Millisecond,
		AdURL:        "https://ads.example.com/watch",
	}, nil)
	t.Cleanup(svc.Close)
	return svc
}

func TestStartRefusedAtCap(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: false}}
	svc := newFlowForTest(t, ents, nil)

	if _, err := svc.Start(context.Background(), 1); !errors.Is(err, entsvc.ErrCapReached) {
		t.Fatalf("start at cap should fail with ErrCapReached, got %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.sessions) != 0 {
		t.Fatalf("refused start must not create a session, got %d", len(svc.sessions))
	}
}

func TestStartThrottled(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	svc := NewService(ents, denyLimiter{retryAfter: 42}, nil, Config{
		MinDwell:     10 * time.Second,
		WatchTimeout: 60 * time.Second,
	}, nil)
	t.Cleanup(svc.Close)

	_, err := svc.Start(context.Background(), 1)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("throttled start should return RateLimitError, got %v", err)
	}
	if rle.RetryAfterSec != 42 {
		t.Fatalf("unexpected retry-after: %d", rle.RetryAfterSec)
	}
}

func TestCloseBeforeMinDwellRejects(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.now = func() time.Time { return opened.Add(4 * time.Second) }
	view, err := svc.ReportClosed(context.Background(), 1, res.Session.ID)
	if err != nil {
		t.Fatalf("report closed: %v", err)
	}

	if view.State != StateRejected || view.FailCode != FailInsufficientDwell {
		t.Fatalf("early close should reject: %+v", view)
	}
	if ents.grantCount() != 0 {
		t.Fatalf("early close must not grant, got %d grants", ents.grantCount())
	}
	if codes := notifier.recorded(); len(codes) != 1 || codes[0] != FailInsufficientDwell {
		t.Fatalf("expected one dwell notification, got %v", codes)
	}
}

func TestCloseAfterMinDwellGrantsOnce(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.now = func() time.Time { return opened.Add(15 * time.Second) }
	view, err := svc.ReportClosed(context.Background(), 1, res.Session.ID)
	if err != nil {
		t.Fatalf("report closed: %v", err)
	}

	if view.State != StateRewarding || !view.Granted {
		t.Fatalf("close after dwell should grant: %+v", view)
	}
	if view.DwellSec != 15 {
		t.Fatalf("unexpected dwell seconds: %d", view.DwellSec)
	}
	if ents.grantCount() != 1 {
		t.Fatalf("expected exactly one grant, got %d", ents.grantCount())
	}
	if codes := notifier.recorded(); len(codes) != 1 || codes[0] != "REWARD_GRANTED" {
		t.Fatalf("expected one success notification, got %v", codes)
	}
}

func TestCloseAndTimeoutRaceGrantsExactlyOnce(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Both observers fire in the same instant: the latch lets exactly one
	// perform the grant, never zero, never two.
	svc.now = func() time.Time { return opened.Add(60 * time.Second) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.ReportClosed(context.Background(), 1, res.Session.ID)
	}()
	go func() {
		defer wg.Done()
		svc.handleTimeout(res.Session.ID)
	}()
	wg.Wait()

	if ents.grantCount() != 1 {
		t.Fatalf("expected exactly one grant from the race, got %d", ents.grantCount())
	}
	if codes := notifier.recorded(); len(codes) != 1 {
		t.Fatalf("expected exactly one notification from the race, got %v", codes)
	}
}

func TestTimeoutBeforeMinDwellRejects(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := NewService(ents, nil, notifier, Config{
		MinDwell:     10 * time.Second,
		WatchTimeout: 20 * time.Second,
	}, nil)
	t.Cleanup(svc.Close)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Timeout fires while dwell is still short of the minimum.
	svc.now = func() time.Time { return opened.Add(5 * time.Second) }
	svc.handleTimeout(res.Session.ID)

	view, err := svc.Get(1, res.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if view.State != StateRejected || ents.grantCount() != 0 {
		t.Fatalf("timeout under dwell must reject without grant: %+v grants=%d", view, ents.grantCount())
	}
}

func TestTimeoutAfterMinDwellGrants(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	svc := newFlowForTest(t, ents, nil)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.now = func() time.Time { return opened.Add(60 * time.Second) }
	svc.handleTimeout(res.Session.ID)

	view, err := svc.Get(1, res.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if view.State != StateRewarding || !view.Granted || ents.grantCount() != 1 {
		t.Fatalf("timeout past dwell should grant once: %+v grants=%d", view, ents.grantCount())
	}
}

func TestReportBlocked(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	view, err := svc.ReportBlocked(context.Background(), 1, res.Session.ID)
	if err != nil {
		t.Fatalf("report blocked: %v", err)
	}
	if view.State != StateBlocked || view.FailCode != FailPopupBlocked {
		t.Fatalf("unexpected blocked view: %+v", view)
	}
	if ents.grantCount() != 0 {
		t.Fatalf("blocked popup must not grant")
	}
	if codes := notifier.recorded(); len(codes) != 1 || codes[0] != FailPopupBlocked {
		t.Fatalf("expected one popup-blocked notification, got %v", codes)
	}
}

func TestCancelReapsWithoutGrantOrNotification(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Even a cancel arriving past min dwell never grants: an abandoned
	// flow produced no close signal to act on.
	svc.now = func() time.Time { return opened.Add(30 * time.Second) }
	view, err := svc.Cancel(context.Background(), 1, res.Session.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if view.State != StateCancelled || ents.grantCount() != 0 {
		t.Fatalf("cancel must not grant: %+v", view)
	}
	if len(notifier.recorded()) != 0 {
		t.Fatalf("cancel must not notify, got %v", notifier.recorded())
	}

	// Late timeout for a cancelled session is a no-op.
	svc.handleTimeout(res.Session.ID)
	if ents.grantCount() != 0 {
		t.Fatalf("timeout after cancel must not grant")
	}
}

func TestGrantWriteFailureSurfacesOnce(t *testing.T) {
	ents := &fakeEntitlements{
		status:   entsvc.Status{CanWatchAds: true},
		grantErr: errors.New("store write failed"),
	}
	notifier := &recordingNotifier{}
	svc := newFlowForTest(t, ents, notifier)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	res, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.now = func() time.Time { return opened.Add(20 * time.Second) }
	view, err := svc.ReportClosed(context.Background(), 1, res.Session.ID)
	if err == nil {
		t.Fatalf("grant write failure must propagate")
	}
	if view.Granted || view.FailCode != FailGrantWrite {
		t.Fatalf("unexpected view after write failure: %+v", view)
	}
	if codes := notifier.recorded(); len(codes) != 1 || codes[0] != FailGrantWrite {
		t.Fatalf("expected one write-failure notification, got %v", codes)
	}

	// The session stays terminal; the user retries with a fresh flow.
	if _, err := svc.ReportClosed(context.Background(), 1, res.Session.ID); err != nil {
		t.Fatalf("re-reporting a terminal session should be a no-op, got %v", err)
	}
	if len(notifier.recorded()) != 1 {
		t.Fatalf("terminal session must not notify again")
	}
}

func TestSweepRemovesOnlyStaleTerminalSessions(t *testing.T) {
	ents := &fakeEntitlements{status: entsvc.Status{CanWatchAds: true}}
	svc := NewService(ents, nil, nil, Config{
		MinDwell:         10 * time.Second,
		WatchTimeout:     60 * time.Second,
		SessionRetention: time.Hour,
	}, nil)
	t.Cleanup(svc.Close)

	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }

	done, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start terminal session: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), 1, done.Session.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	live, err := svc.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("start live session: %v", err)
	}

	if removed := svc.Sweep(opened.Add(30 * time.Minute)); removed != 0 {
		t.Fatalf("sweep inside retention removed %d", removed)
	}
	if removed := svc.Sweep(opened.Add(2 * time.Hour)); removed != 1 {
		t.Fatalf("sweep should remove the stale terminal session, removed %d", removed)
	}
	if _, err := svc.Get(1, live.Session.ID); err != nil {
		t.Fatalf("live session must survive sweep: %v", err)
	}
}
