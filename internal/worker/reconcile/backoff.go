package reconcile

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延（5分）。
	initialBackoff = 5 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回5分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// runState は定期実行の失敗状況を保持する。
type runState struct {
	consecutiveErrors int
	nextRunAt         time.Time
}

// recordFailure は連続エラー回数をインクリメントし、指数バックオフで次回実行時刻を設定する。
func (s *runState) recordFailure(now time.Time) {
	s.consecutiveErrors++
	s.nextRunAt = now.Add(CalculateBackoff(s.consecutiveErrors - 1))
}

// recordSuccess は連続エラー回数をリセットし、次のtickで実行できるようにする。
func (s *runState) recordSuccess() {
	s.consecutiveErrors = 0
	s.nextRunAt = time.Time{}
}
