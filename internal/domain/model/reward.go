package model

import "time"

// RewardSession is the client view of one ad-watch attempt.
type RewardSession struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	State     string     `json:"state"`
	AdURL     string     `json:"ad_url,omitempty"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	DwellSec  int64      `json:"dwell_sec"`
	Granted   bool       `json:"granted"`
	FailCode  string     `json:"fail_code,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}
