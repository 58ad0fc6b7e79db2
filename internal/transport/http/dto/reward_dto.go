package dto

import "time"

type RewardStartResponse struct {
	SessionID      string    `json:"session_id"`
	AdURL          string    `json:"ad_url"`
	MinDwellSec    int64     `json:"min_dwell_sec"`
	TimeoutSec     int64     `json:"timeout_sec"`
	PollIntervalMS int64     `json:"poll_interval_ms"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type RewardSessionResponse struct {
	SessionID string     `json:"session_id"`
	State     string     `json:"state"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	DwellSec  int64      `json:"dwell_sec"`
	Granted   bool       `json:"granted"`
	FailCode  string     `json:"fail_code,omitempty"`
}
