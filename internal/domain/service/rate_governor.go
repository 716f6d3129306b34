package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"HexCollector-App/internal/domain/model"
)

// RateGovernor は外部API呼び出しの間隔と同時実行数を制御する
// 複数の呼び出し元から共有されることを前提に、内部状態は全てロックで保護する
type RateGovernor struct {
	interval time.Duration
	limiter  *rate.Limiter       // 直前のタスク開始からの最小間隔（バースト1）
	slots    *semaphore.Weighted // 同時実行数の上限（取得順はFIFO）

	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	startedAt time.Time
	now       func() time.Time
}

// NewRateGovernor は新しいRateGovernorを作成する
// requestsPerSecond: 1秒あたりのリクエスト上限、maxConcurrent: 同時実行数の上限
func NewRateGovernor(requestsPerSecond float64, maxConcurrent int) *RateGovernor {
	if requestsPerSecond <= 0 {
		requestsPerSecond = model.DefaultRequestsPerSecond
	}
	if maxConcurrent <= 0 {
		maxConcurrent = model.DefaultMaxConcurrent
	}

	interval := time.Duration(float64(time.Second) / requestsPerSecond)
	return &RateGovernor{
		interval:  interval,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		slots:     semaphore.NewWeighted(int64(maxConcurrent)),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Interval はタスク開始間の最小間隔を返す
func (g *RateGovernor) Interval() time.Duration {
	return g.interval
}

// Do はレート制限を守ってタスクを実行する
// タスクのエラーは集計後にそのまま返す。リトライはしない
func (g *RateGovernor) Do(ctx context.Context, task func(ctx context.Context) error) error {
	// 同時実行数の枠を確保
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("実行枠の確保を中断: %w", err)
	}
	defer g.slots.Release(1)

	// 直前のタスク開始から最小間隔が経過するまで待機
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("リクエスト間隔の待機を中断: %w", ctxErr)
		}
		return fmt.Errorf("リクエスト間隔の待機に失敗: %w", err)
	}

	g.mu.Lock()
	g.total++
	g.mu.Unlock()

	err := task(ctx)

	g.mu.Lock()
	if err != nil {
		g.failed++
	} else {
		g.succeeded++
	}
	g.mu.Unlock()

	return err
}

// Execute は戻り値を持つタスクをRateGovernor経由で実行する
func Execute[T any](ctx context.Context, g *RateGovernor, task func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, func(ctx context.Context) error {
		var taskErr error
		result, taskErr = task(ctx)
		return taskErr
	})
	return result, err
}

// Stats は累積統計を返す
func (g *RateGovernor) Stats() model.GovernorStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := g.now().Sub(g.startedAt)
	stats := model.GovernorStats{
		TotalRequests:      g.total,
		SuccessfulRequests: g.succeeded,
		FailedRequests:     g.failed,
		Elapsed:            elapsed,
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		stats.RequestsPerSecond = float64(g.total) / seconds
	}
	return stats
}

// Reset はカウンタと経過時間の起点を初期化する
func (g *RateGovernor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.total = 0
	g.succeeded = 0
	g.failed = 0
	g.startedAt = g.now()
}
