package entitlements

import (
	"context"
	"sync"
	"time"
)

// Countdown is a display-side cache of the remaining ad-free seconds. It
// decrements once per second between authoritative recomputations so a UI
// can render a smooth timer without hitting the store every tick. It is
// never the authority: any real decision recomputes from the stored expiry
// via Service.Status, and the cache self-corrects on the next Reset.
type Countdown struct {
	mu       sync.Mutex
	active   bool
	seconds  int64
	onExpire func()
}

func NewCountdown(onExpire func()) *Countdown {
	return &Countdown{onExpire: onExpire}
}

// Reset arms or disarms the countdown from an authoritative status.
func (c *Countdown) Reset(st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st.AdFree && st.SecondsLeft > 0 {
		c.active = true
		c.seconds = st.SecondsLeft
		return
	}

	c.active = false
	c.seconds = 0
}

// Tick advances the countdown by one second. At zero the countdown flips
// inactive and stays there; the value never goes negative.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}

	c.seconds--
	if c.seconds > 0 {
		c.mu.Unlock()
		return
	}

	c.seconds = 0
	c.active = false
	expired := c.onExpire
	c.mu.Unlock()

	if expired != nil {
		expired()
	}
}

// Snapshot returns the cached (adFree, secondsLeft) pair.
func (c *Countdown) Snapshot() (bool, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.seconds
}

// Run drives Tick once per wall-clock second until the context is done.
// Interval drift is acceptable: the countdown is cosmetic and corrects on
// the next Reset.
func (c *Countdown) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
