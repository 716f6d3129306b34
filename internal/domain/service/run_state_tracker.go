package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"HexCollector-App/internal/domain/model"
)

// ErrCollectionRunning は実行中に新しいランを開始しようとした場合のエラー
var ErrCollectionRunning = errors.New("収集処理は既に実行中です")

// runStateTracker は収集ランの状態遷移を管理する
// idle → running → {completed, error} 以外の遷移は受け付けない
type runStateTracker struct {
	mu    sync.RWMutex
	state model.RunState
	now   func() time.Time
}

func newRunStateTracker() *runStateTracker {
	return &runStateTracker{
		state: model.RunState{Status: model.RunStatusIdle},
		now:   time.Now,
	}
}

// begin は新しいランを開始する。実行中の場合は状態を変更せずにエラーを返す
func (t *runStateTracker) begin(runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == model.RunStatusRunning {
		return ErrCollectionRunning
	}
	t.state = model.RunState{
		RunID:     runID,
		Status:    model.RunStatusRunning,
		StartTime: t.now(),
	}
	return nil
}

func (t *runStateTracker) setTotalCells(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.TotalCells = total
}

// cellProcessed はセル1件分の処理完了を記録する
func (t *runStateTracker) cellProcessed(totalResults int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.ProcessedCells < t.state.TotalCells {
		t.state.ProcessedCells++
	}
	t.state.TotalResults = totalResults
}

func (t *runStateTracker) complete() error {
	return t.finish(model.RunStatusCompleted, nil)
}

func (t *runStateTracker) fail(cause error) error {
	return t.finish(model.RunStatusError, cause)
}

func (t *runStateTracker) finish(status model.RunStatus, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != model.RunStatusRunning {
		return fmt.Errorf("状態遷移が不正です: %s → %s", t.state.Status, status)
	}
	t.state.Status = status
	t.state.FinishTime = t.now()
	if cause != nil {
		t.state.LastError = cause.Error()
	}
	return nil
}

func (t *runStateTracker) snapshot() model.RunState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
