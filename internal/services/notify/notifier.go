package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notification is the payload pushed to a user's toast channel.
type Notification struct {
	UserID    int64     `json:"user_id"`
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisNotifier publishes user notifications on per-user Redis channels.
// Delivery is fire-and-forget: a failed publish is logged, never returned,
// so reward outcomes are not blocked on the toast path.
type RedisNotifier struct {
	client *goredis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisNotifier(client *goredis.Client, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisNotifier{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID int64, level, code, message string) {
	if n.client == nil || userID <= 0 {
		return
	}

	payload, err := json.Marshal(Notification{
		UserID:    userID,
		Level:     level,
		Code:      code,
		Message:   message,
		CreatedAt: n.now().UTC(),
	})
	if err != nil {
		n.logger.Warn("marshal notification", zap.Error(err))
		return
	}

	if err := n.client.Publish(ctx, ChannelFor(userID), payload).Err(); err != nil {
		n.logger.Warn("publish notification",
			zap.Int64("user_id", userID),
			zap.String("code", code),
			zap.Error(err),
		)
	}
}

// ChannelFor returns the pub/sub channel name for one user's notifications.
func ChannelFor(userID int64) string {
	return "notify:user:" + strconv.FormatInt(userID, 10)
}

// Nop discards all notifications. Used when Redis is unavailable.
type Nop struct{}

func (Nop) Notify(context.Context, int64, string, string, string) {}
