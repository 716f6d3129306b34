package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/domain/service"
	"HexCollector-App/internal/infrastructure/region"
	"HexCollector-App/internal/logger"
)

// ErrInvalidRequest はリクエストの内容から収集条件を組み立てられない場合のエラー
var ErrInvalidRequest = errors.New("リクエストの内容が不正です")

type CollectionUseCase interface {
	// StartCollection は収集を実行し、完了まで待って集計結果を返す
	StartCollection(ctx context.Context, req *model.StartCollectionRequest) (*model.Aggregate, error)

	// StartCollectionAsync は収集をバックグラウンドで開始してすぐに返す
	StartCollectionAsync(req *model.StartCollectionRequest) (*model.StartCollectionResponse, error)

	// Progress は現在のランの進捗を返す
	Progress() model.Progress

	// Stats はレートガバナーの統計を返す
	Stats() model.GovernorStats

	// LatestAggregate は最後に完了したランの集計結果を返す
	LatestAggregate(ctx context.Context) (*model.Aggregate, error)

	// NearbyPlaces は最新の集計結果から中心点の半径内にあるスポットを近い順に返す
	NearbyPlaces(ctx context.Context, center model.LatLng, radiusMeters float64, limit int) (*model.NearbyPlacesResponse, error)

	// Wait はバックグラウンドで実行中のランの終了を待つ。ctxが先に終わった場合はctxのエラーを返す
	Wait(ctx context.Context) error
}

// collectionUseCaseImpl はCollectionUseCaseの実装
type collectionUseCaseImpl struct {
	orchestrator      *service.CollectionOrchestrator
	reader            repository.AggregateReader
	defaultRegion     model.RegionDescriptor
	defaultResolution int
	baseCtx           context.Context
	logger            *log.Logger

	mu      sync.RWMutex
	latest  *model.Aggregate
	current *service.CollectionRun // 最後に開始したバックグラウンドのラン
}

// NewCollectionUseCase は新しいCollectionUseCaseインスタンスを作成
// baseCtx はバックグラウンド実行のランに渡すコンテキストで、サーバー停止時にキャンセルされる想定
// reader がnilの場合、最新結果はこのプロセスで完了したランのみになる
func NewCollectionUseCase(
	baseCtx context.Context,
	orchestrator *service.CollectionOrchestrator,
	reader repository.AggregateReader,
	defaultRegion model.RegionDescriptor,
	defaultResolution int,
	l *log.Logger,
) CollectionUseCase {
	return &collectionUseCaseImpl{
		orchestrator:      orchestrator,
		reader:            reader,
		defaultRegion:     defaultRegion,
		defaultResolution: defaultResolution,
		baseCtx:           baseCtx,
		logger:            logger.OrDefault(l),
	}
}

func (u *collectionUseCaseImpl) StartCollection(ctx context.Context, req *model.StartCollectionRequest) (*model.Aggregate, error) {
	target, resolution, opts, err := u.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	aggregate, err := u.orchestrator.StartCollection(ctx, target, resolution, opts)
	if err != nil {
		return nil, err
	}
	u.remember(aggregate)
	return aggregate, nil
}

func (u *collectionUseCaseImpl) StartCollectionAsync(req *model.StartCollectionRequest) (*model.StartCollectionResponse, error) {
	target, resolution, opts, err := u.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	// リクエストのコンテキストはレスポンス後にキャンセルされるため使わない
	run, err := u.orchestrator.Start(u.baseCtx, target, resolution, opts)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.current = run
	u.mu.Unlock()

	go func() {
		aggregate, err := run.Wait()
		if err != nil {
			u.logger.Warn().Err(err).Str("run_id", run.ID).Msg("⚠️ バックグラウンドの収集処理が失敗しました")
			return
		}
		u.remember(aggregate)
	}()

	return &model.StartCollectionResponse{
		RunID:    run.ID,
		Status:   string(model.RunStatusRunning),
		Message:  "収集処理を開始しました",
		Progress: u.orchestrator.Progress(),
	}, nil
}

func (u *collectionUseCaseImpl) Wait(ctx context.Context) error {
	u.mu.RLock()
	run := u.current
	u.mu.RUnlock()
	if run == nil {
		return nil
	}

	select {
	case <-run.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *collectionUseCaseImpl) Progress() model.Progress {
	return u.orchestrator.Progress()
}

func (u *collectionUseCaseImpl) Stats() model.GovernorStats {
	return u.orchestrator.GovernorStats()
}

func (u *collectionUseCaseImpl) LatestAggregate(ctx context.Context) (*model.Aggregate, error) {
	u.mu.RLock()
	latest := u.latest
	u.mu.RUnlock()
	if latest != nil {
		return latest, nil
	}

	if u.reader == nil {
		return nil, repository.ErrAggregateNotFound
	}
	aggregate, err := u.reader.LatestAggregate(ctx)
	if err != nil {
		return nil, err
	}
	u.remember(aggregate)
	return aggregate, nil
}

func (u *collectionUseCaseImpl) NearbyPlaces(ctx context.Context, center model.LatLng, radiusMeters float64, limit int) (*model.NearbyPlacesResponse, error) {
	aggregate, err := u.LatestAggregate(ctx)
	if err != nil {
		return nil, err
	}

	type placeDistance struct {
		place    model.Place
		distance float64
	}

	origin := orb.Point{center.Lng, center.Lat}
	var matches []placeDistance
	for _, p := range aggregate.Results {
		d := geo.DistanceHaversine(origin, orb.Point{p.Location.Lng, p.Location.Lat})
		if d <= radiusMeters {
			matches = append(matches, placeDistance{place: p, distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	places := make([]model.Place, 0, len(matches))
	for _, m := range matches {
		places = append(places, m.place)
	}

	return &model.NearbyPlacesResponse{
		RunID:       aggregate.RunID,
		TotalPlaces: len(aggregate.Results),
		ResultCount: len(places),
		Places:      places,
	}, nil
}

// resolveRequest リクエストから収集対象の領域・解像度・オプションを決める
// reqがnilの場合や領域の指定が無い場合は設定の領域を使う
func (u *collectionUseCaseImpl) resolveRequest(req *model.StartCollectionRequest) (model.RegionDescriptor, int, model.CollectionOptions, error) {
	if req == nil {
		req = &model.StartCollectionRequest{}
	}
	opts := model.CollectionOptions{TestMode: req.TestMode}

	resolution := u.defaultResolution
	if req.Resolution != nil {
		resolution = *req.Resolution
	}

	if !req.HasRegion() {
		target := u.defaultRegion
		if req.RegionName != "" {
			target.Name = req.RegionName
		}
		return target, resolution, opts, nil
	}

	name := req.RegionName
	if name == "" {
		name = "custom"
	}
	target, err := region.Build(region.Source{
		Name:        name,
		GeoJSON:     req.GeoJSON,
		BoundingBox: req.BoundingBox,
		Cities:      req.Cities,
	})
	if err != nil {
		return model.RegionDescriptor{}, 0, model.CollectionOptions{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return target, resolution, opts, nil
}

func (u *collectionUseCaseImpl) remember(aggregate *model.Aggregate) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.latest = aggregate
}
