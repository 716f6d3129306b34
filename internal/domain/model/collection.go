package model

import "time"

// RunStatus 収集ランの状態
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// RunState 収集ランの進捗状態（オーケストレーターのみが更新する）
type RunState struct {
	RunID          string    `json:"run_id,omitempty"`
	Status         RunStatus `json:"status"`
	StartTime      time.Time `json:"start_time,omitempty"`
	FinishTime     time.Time `json:"finish_time,omitempty"`
	TotalCells     int       `json:"total_cells"`
	ProcessedCells int       `json:"processed_cells"`
	TotalResults   int       `json:"total_results"`
	LastError      string    `json:"last_error,omitempty"`
}

// Progress 外部からポーリングされる進捗スナップショット
type Progress struct {
	RunState
	CompletionPercent float64 `json:"completion_percent"`
}

// NewProgress RunStateから完了率付きのスナップショットを作成
// TotalCellsが0の場合の完了率は0とする
func NewProgress(state RunState) Progress {
	progress := Progress{RunState: state}
	if state.TotalCells > 0 {
		progress.CompletionPercent = float64(state.ProcessedCells) / float64(state.TotalCells) * 100
	}
	return progress
}

// GovernorStats レートガバナーの累積統計
type GovernorStats struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	Elapsed            time.Duration `json:"elapsed"`
	RequestsPerSecond  float64       `json:"requests_per_second"`
}

// CollectionOptions 収集ランのオプション
type CollectionOptions struct {
	TestMode bool `json:"test_mode"` // 結果が閾値を超えた時点で打ち切る
}

// Aggregate 永続化される最終的な収集結果
type Aggregate struct {
	RunID               string        `json:"run_id"`
	RegionName          string        `json:"region_name"`
	CollectionTimestamp time.Time     `json:"collection_timestamp"`
	Resolution          int           `json:"resolution"`
	TotalCells          int           `json:"total_cells"` // 処理済みセル数
	TotalResults        int           `json:"total_results"`
	Results             []Place       `json:"results"`
	RateGovernorStats   GovernorStats `json:"rate_governor_stats"`
	Runtime             time.Duration `json:"runtime"`
}

// AggregateSummary 結果本体を含まない集計メタデータ
type AggregateSummary struct {
	RunID               string        `json:"run_id" firestore:"run_id"`
	RegionName          string        `json:"region_name" firestore:"region_name"`
	CollectionTimestamp time.Time     `json:"collection_timestamp" firestore:"collection_timestamp"`
	Resolution          int           `json:"resolution" firestore:"resolution"`
	TotalCells          int           `json:"total_cells" firestore:"total_cells"`
	TotalResults        int           `json:"total_results" firestore:"total_results"`
	RuntimeSeconds      float64       `json:"runtime_seconds" firestore:"runtime_seconds"`
	RateGovernorStats   GovernorStats `json:"rate_governor_stats" firestore:"-"`
}

// Summary 集計メタデータのみを取り出す
func (a *Aggregate) Summary() AggregateSummary {
	return AggregateSummary{
		RunID:               a.RunID,
		RegionName:          a.RegionName,
		CollectionTimestamp: a.CollectionTimestamp,
		Resolution:          a.Resolution,
		TotalCells:          a.TotalCells,
		TotalResults:        a.TotalResults,
		RuntimeSeconds:      a.Runtime.Seconds(),
		RateGovernorStats:   a.RateGovernorStats,
	}
}
