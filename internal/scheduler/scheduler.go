package scheduler

import (
	"errors"
	"fmt"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/service"
	"HexCollector-App/internal/logger"
)

// Starter はバックグラウンドで収集を開始できるもの
type Starter interface {
	StartCollectionAsync(req *model.StartCollectionRequest) (*model.StartCollectionResponse, error)
}

// Scheduler はcron式に従って定期的に収集を開始する
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	logger  *log.Logger
}

// New はcron式を検証してSchedulerを作成する。秒フィールドは任意
func New(spec string, starter Starter, l *log.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		starter: starter,
		logger:  logger.OrDefault(l),
	}
	if _, err := s.cron.AddFunc(spec, s.Trigger); err != nil {
		return nil, fmt.Errorf("cron式が不正です (%s): %w", spec, err)
	}
	return s, nil
}

// Start はスケジューラーを開始する
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("⏰ 定期収集を開始しました")
}

// Stop は新しい実行を止め、実行中のジョブ関数の終了を待つ
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger は1回分の定期実行。実行中のランがある場合はスキップする
func (s *Scheduler) Trigger() {
	resp, err := s.starter.StartCollectionAsync(&model.StartCollectionRequest{})
	switch {
	case errors.Is(err, service.ErrCollectionRunning):
		s.logger.Warn().Msg("⚠️ 前回の収集が実行中のため定期実行をスキップします")
	case err != nil:
		s.logger.Error().Err(err).Msg("❌ 定期収集の開始に失敗しました")
	default:
		s.logger.Info().Str("run_id", resp.RunID).Msg("⏰ 定期収集を開始しました")
	}
}
