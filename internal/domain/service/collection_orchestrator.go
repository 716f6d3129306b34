package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

// OrchestratorConfig は収集処理の実行パラメータ
type OrchestratorConfig struct {
	RadiusMeters      int // セル中心からの検索半径
	TestModeThreshold int // テストモードで打ち切る結果件数
	Workers           int // 同時に取得するセル数（マージは常に1つずつ）
}

// CollectionOrchestrator はセル生成から検索・重複排除・保存までを駆動する
type CollectionOrchestrator struct {
	searcher repository.PlaceSearchRepository
	governor *RateGovernor
	tiler    *RegionTiler
	sink     repository.PlaceSinkRepository
	config   OrchestratorConfig
	logger   *log.Logger
	tracker  *runStateTracker
	now      func() time.Time
}

// NewCollectionOrchestrator は新しいCollectionOrchestratorを作成する
func NewCollectionOrchestrator(
	searcher repository.PlaceSearchRepository,
	governor *RateGovernor,
	tiler *RegionTiler,
	sink repository.PlaceSinkRepository,
	config OrchestratorConfig,
	l *log.Logger,
) *CollectionOrchestrator {
	if config.RadiusMeters <= 0 {
		config.RadiusMeters = model.DefaultSearchRadius
	}
	if config.TestModeThreshold <= 0 {
		config.TestModeThreshold = model.DefaultTestModeThreshold
	}
	if config.Workers <= 0 {
		config.Workers = model.DefaultWorkers
	}
	return &CollectionOrchestrator{
		searcher: searcher,
		governor: governor,
		tiler:    tiler,
		sink:     sink,
		config:   config,
		logger:   logger.OrDefault(l),
		tracker:  newRunStateTracker(),
		now:      time.Now,
	}
}

// CollectionRun は開始済みの収集ラン
type CollectionRun struct {
	ID        string
	done      chan struct{}
	aggregate *model.Aggregate
	err       error
}

// Done はラン終了時にcloseされるチャネルを返す
func (r *CollectionRun) Done() <-chan struct{} {
	return r.done
}

// Wait はランの終了を待って結果を返す
func (r *CollectionRun) Wait() (*model.Aggregate, error) {
	<-r.done
	return r.aggregate, r.err
}

// StartCollection は収集ランを実行し、完了まで待って集計結果を返す
func (o *CollectionOrchestrator) StartCollection(ctx context.Context, region model.RegionDescriptor, resolution int, opts model.CollectionOptions) (*model.Aggregate, error) {
	run, err := o.Start(ctx, region, resolution, opts)
	if err != nil {
		return nil, err
	}
	return run.Wait()
}

// Start は収集ランをバックグラウンドで開始する
// 実行中のランがある場合や解像度が範囲外の場合は状態を変更せずにエラーを返す
func (o *CollectionOrchestrator) Start(ctx context.Context, region model.RegionDescriptor, resolution int, opts model.CollectionOptions) (*CollectionRun, error) {
	if err := validateResolution(resolution); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	if err := o.tracker.begin(runID); err != nil {
		return nil, err
	}

	run := &CollectionRun{ID: runID, done: make(chan struct{})}
	go func() {
		defer close(run.done)
		run.aggregate, run.err = o.run(ctx, runID, region, resolution, opts)
	}()
	return run, nil
}

// Progress は現在のランの進捗スナップショットを返す
func (o *CollectionOrchestrator) Progress() model.Progress {
	return model.NewProgress(o.tracker.snapshot())
}

// GovernorStats はレートガバナーの統計を返す
func (o *CollectionOrchestrator) GovernorStats() model.GovernorStats {
	return o.governor.Stats()
}

func (o *CollectionOrchestrator) run(ctx context.Context, runID string, region model.RegionDescriptor, resolution int, opts model.CollectionOptions) (*model.Aggregate, error) {
	startTime := o.tracker.snapshot().StartTime
	o.logger.Info().
		Str("run_id", runID).
		Str("region", region.Name).
		Int("resolution", resolution).
		Bool("test_mode", opts.TestMode).
		Msg("🚀 収集処理を開始")

	coverage, err := o.tiler.GenerateCoverage(region, resolution)
	if err != nil {
		return nil, o.abort(runID, fmt.Errorf("セルの生成に失敗: %w", err))
	}
	o.tracker.setTotalCells(len(coverage))

	acc := newPlaceAccumulator()
	processed, err := o.collectCells(ctx, runID, coverage, opts, acc)
	if err != nil {
		return nil, o.abort(runID, err)
	}

	finishedAt := o.now()
	aggregate := &model.Aggregate{
		RunID:               runID,
		RegionName:          region.Name,
		CollectionTimestamp: finishedAt,
		Resolution:          resolution,
		TotalCells:          processed,
		TotalResults:        acc.len(),
		Results:             acc.places,
		RateGovernorStats:   o.governor.Stats(),
		Runtime:             finishedAt.Sub(startTime),
	}

	// 保存に成功した場合のみ completed とする
	if err := o.sink.Persist(ctx, aggregate); err != nil {
		return nil, o.abort(runID, fmt.Errorf("収集結果の保存に失敗: %w", err))
	}
	if err := o.tracker.complete(); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("run_id", runID).
		Int("cells", processed).
		Int("places", aggregate.TotalResults).
		Int("duplicates", acc.duplicates).
		Dur("runtime", aggregate.Runtime).
		Msg("✅ 収集処理が完了しました")

	return aggregate, nil
}

// cellResult はセル1件分の取得結果
type cellResult struct {
	cell   model.Cell
	places []model.RawPlace
}

// collectCells は全セルを検索して結果をaccにマージし、処理したセル数を返す
// 取得はWorkers件まで並行するが、重複排除とマージはこのゴルーチンだけで行う
func (o *CollectionOrchestrator) collectCells(ctx context.Context, runID string, coverage model.Coverage, opts model.CollectionOptions, acc *placeAccumulator) (int, error) {
	if len(coverage) == 0 {
		o.logger.Warn().Str("run_id", runID).Msg("⚠️ 対象セルが0件のため検索をスキップします")
		return 0, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(fetchCtx)
	g.SetLimit(o.config.Workers)

	results := make(chan cellResult)
	waitErr := make(chan error, 1)

	go func() {
		for _, cell := range coverage {
			if gctx.Err() != nil {
				break
			}
			cell := cell
			g.Go(func() error {
				places, err := o.fetchCell(gctx, cell)
				if err != nil {
					return err
				}
				select {
				case results <- cellResult{cell: cell, places: places}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr <- g.Wait()
		close(results)
	}()

	processed := 0
	stopped := false
	for res := range results {
		if stopped {
			continue
		}

		added := acc.merge(res.places)
		processed++
		o.tracker.cellProcessed(acc.len())

		o.logger.Info().
			Str("run_id", runID).
			Str("cell", res.cell.String()).
			Int("processed", processed).
			Int("total", len(coverage)).
			Int("fetched", len(res.places)).
			Int("unique", added).
			Msg("セルの処理が完了")

		if opts.TestMode && acc.len() > o.config.TestModeThreshold {
			o.logger.Info().
				Str("run_id", runID).
				Int("places", acc.len()).
				Msg("🧪 テストモード: 十分な結果が得られたため収集を打ち切ります")
			stopped = true
			cancel()
		}
	}

	err := <-waitErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		return processed, fmt.Errorf("収集処理が中断されました: %w", ctxErr)
	}
	if err != nil && !(stopped && errors.Is(err, context.Canceled)) {
		return processed, err
	}
	return processed, nil
}

// fetchCell はセル中心を基準にレートガバナー経由で全ページを取得する
func (o *CollectionOrchestrator) fetchCell(ctx context.Context, cell model.Cell) ([]model.RawPlace, error) {
	center := CellCenter(cell)
	places, err := Execute(ctx, o.governor, func(ctx context.Context) ([]model.RawPlace, error) {
		return o.searcher.SearchAll(ctx, center, o.config.RadiusMeters)
	})
	if err != nil {
		return nil, fmt.Errorf("セル %s の検索に失敗: %w", cell, err)
	}
	return places, nil
}

// abort はランをerror状態にしてエラーを返す
func (o *CollectionOrchestrator) abort(runID string, cause error) error {
	if err := o.tracker.fail(cause); err != nil {
		o.logger.Error().Err(err).Str("run_id", runID).Msg("❌ 状態遷移に失敗")
	}
	o.logger.Error().Err(cause).Str("run_id", runID).Msg("❌ 収集処理でエラーが発生しました")
	return cause
}

// placeAccumulator はラン単位の重複排除インデックスと結果の蓄積
type placeAccumulator struct {
	seen       map[string]struct{}
	places     []model.Place
	duplicates int
}

func newPlaceAccumulator() *placeAccumulator {
	return &placeAccumulator{
		seen:   make(map[string]struct{}),
		places: []model.Place{},
	}
}

// merge は未出現のスポットだけを正規化して追加し、追加件数を返す
// IDを持たない結果は重複判定できないため捨てる
func (a *placeAccumulator) merge(raws []model.RawPlace) int {
	added := 0
	for i := range raws {
		id := raws[i].PlaceID
		if id == "" {
			continue
		}
		if _, ok := a.seen[id]; ok {
			a.duplicates++
			continue
		}
		a.seen[id] = struct{}{}
		a.places = append(a.places, raws[i].ToPlace())
		added++
	}
	return added
}

func (a *placeAccumulator) len() int {
	return len(a.places)
}
