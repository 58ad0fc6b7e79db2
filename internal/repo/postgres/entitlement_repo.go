package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementRepo owns the ad_free_entitlements table: one row per user
// carrying a single absolute expiry. A missing row and a past expiry mean
// the same thing — no active ad-free time.
type EntitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *EntitlementRepo {
	return &EntitlementRepo{pool: pool}
}

func (r *EntitlementRepo) GetAdFreeUntil(ctx context.Context, userID int64) (*time.Time, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, nil
	}

	var until *time.Time
	err := r.pool.QueryRow(ctx, `
SELECT ad_free_until
FROM ad_free_entitlements
WHERE user_id = $1
LIMIT 1
`, userID).Scan(&until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ad-free expiry: %w", err)
	}

	return until, nil
}

// ExtendAdFree adds delta on top of whichever baseline is later, the
// current expiry or now, in a single conditional upsert. Concurrent grants
// from several devices therefore stack instead of overwriting each other.
func (r *EntitlementRepo) ExtendAdFree(ctx context.Context, userID int64, delta time.Duration, now time.Time) (time.Time, error) {
	if userID <= 0 {
		return time.Time{}, fmt.Errorf("invalid user id")
	}
	if delta <= 0 {
		return time.Time{}, fmt.Errorf("invalid extension delta")
	}
	if r.pool == nil {
		return time.Time{}, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var until time.Time
	err := r.pool.QueryRow(ctx, `
INSERT INTO ad_free_entitlements (user_id, ad_free_until, updated_at)
VALUES ($1, $2::timestamptz + make_interval(secs => $3), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	ad_free_until = CASE
		WHEN ad_free_entitlements.ad_free_until IS NOT NULL
			AND ad_free_entitlements.ad_free_until > $2::timestamptz
			THEN ad_free_entitlements.ad_free_until + make_interval(secs => $3)
		ELSE $2::timestamptz + make_interval(secs => $3)
	END,
	updated_at = NOW()
RETURNING ad_free_until
`, userID, now.UTC(), delta.Seconds()).Scan(&until)
	if err != nil {
		return time.Time{}, fmt.Errorf("extend ad-free entitlement: %w", err)
	}

	return until, nil
}
