package dto

import "time"

type EntitlementResponse struct {
	AdFree       bool       `json:"ad_free"`
	AdFreeUntil  *time.Time `json:"ad_free_until"`
	SecondsLeft  int64      `json:"seconds_left"`
	CanWatchAds  bool       `json:"can_watch_ads"`
	MaxSeconds   int64      `json:"max_seconds"`
	GrantSeconds int64      `json:"grant_seconds"`
}
