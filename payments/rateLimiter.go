package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// fixedWindowScript increments the caller's counter and starts the window on
// the first hit. A key that somehow lost its TTL gets one again.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RateLimiter struct {
	rdb    redis.Scripter
	max    int64
	window time.Duration
	logger *logrus.Logger
}

func NewRateLimiter(rdb redis.Scripter, max int64, window time.Duration, logger *logrus.Logger) *RateLimiter {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &RateLimiter{rdb: rdb, max: max, window: window, logger: logger}
}

func rateLimitKey(callerID string) string {
	return "stk_rate:" + callerID
}

// Allow counts one initiation for callerID. Redis being unavailable does not
// block payments; the failure is logged and the request goes through.
func (l *RateLimiter) Allow(ctx context.Context, callerID string) error {
	if l == nil || l.rdb == nil || l.max <= 0 {
		return nil
	}
	count, err := fixedWindowScript.Run(ctx, l.rdb, []string{rateLimitKey(callerID)}, l.window.Milliseconds()).Int64()
	if err != nil {
		config.LogError(l.logger, "payments", "RateLimiter.Allow", "rate limit script failed, allowing request", callerID, err)
		return nil
	}
	if count > l.max {
		return &utils.PaymentError{
			Kind:    utils.KindRateLimited,
			Message: "too many payment requests",
			Hint:    fmt.Sprintf("wait %d seconds before trying again", int(l.window.Seconds())),
		}
	}
	return nil
}
