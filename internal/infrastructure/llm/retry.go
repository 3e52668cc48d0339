package llm

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// retryState 单次逻辑调用的重试状态，实现 backoff.BackOff。
// 第 k 次重试前等待 delay * factor^k；服务端给出 Retry-After 时只覆盖下一次等待。
type retryState struct {
	delay    time.Duration
	factor   float64
	attempt  int
	override time.Duration
	wait     time.Duration
}

func newRetryState(delay time.Duration, factor float64) *retryState {
	return &retryState{delay: delay, factor: factor}
}

// NextBackOff 返回下一次等待时长
func (s *retryState) NextBackOff() time.Duration {
	if s.override > 0 {
		s.wait = s.override
		s.override = 0
	} else {
		s.wait = time.Duration(float64(s.delay) * math.Pow(s.factor, float64(s.attempt)))
	}
	s.attempt++
	return s.wait
}

// Reset 重置状态
func (s *retryState) Reset() {
	s.attempt = 0
	s.override = 0
	s.wait = 0
}

func (s *retryState) setOverride(d time.Duration) {
	s.override = d
}

// parseRetryAfter 只接受整数秒
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
