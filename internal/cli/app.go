package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/phuslu/log"

	"HexCollector-App/internal/config"
	"HexCollector-App/internal/database"
	"HexCollector-App/internal/domain/model"
	domainrepo "HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/domain/service"
	pgdb "HexCollector-App/internal/infrastructure/database"
	"HexCollector-App/internal/infrastructure/firestore"
	"HexCollector-App/internal/infrastructure/maps"
	"HexCollector-App/internal/infrastructure/region"
	"HexCollector-App/internal/repository"
)

// app 設定から組み立てた依存関係一式
type app struct {
	region       model.RegionDescriptor
	orchestrator *service.CollectionOrchestrator
	sink         *repository.MultiPlaceSinkRepository
	closers      []func() error
	logger       *log.Logger
}

// newApp 設定に従って収集処理の依存関係を組み立てる
func newApp(ctx context.Context, cfg *config.Config, l *log.Logger) (*app, error) {
	a := &app{logger: l}

	target, err := loadRegion(cfg)
	if err != nil {
		return nil, err
	}
	a.region = target

	if cfg.Places.APIKey == "" {
		l.Warn().Msg("⚠️ GOOGLE_MAPS_API_KEYが設定されていません")
	}
	provider := maps.NewGooglePlacesProvider(cfg.Places.APIKey,
		maps.WithBaseURL(cfg.Places.BaseURL),
		maps.WithKeywords(cfg.Places.Keywords),
		maps.WithPageDelay(cfg.Places.PageDelay),
		maps.WithMaxPages(cfg.Places.MaxPages),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Places.RequestTimeout}),
		maps.WithLogger(l),
	)

	sinks, err := a.buildSinks(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sink = repository.NewMultiPlaceSinkRepository(sinks...)

	a.orchestrator = service.NewCollectionOrchestrator(
		provider,
		service.NewRateGovernor(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.MaxConcurrent),
		service.NewRegionTiler(l),
		a.sink,
		service.OrchestratorConfig{
			RadiusMeters:      cfg.Places.RadiusMeters,
			TestModeThreshold: cfg.Collection.TestModeThreshold,
			Workers:           cfg.Collection.Workers,
		},
		l,
	)
	return a, nil
}

// Close 開いた接続を全て閉じる
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loadRegion 設定の領域（GeoJSONファイル / 境界ボックス / 都市中心）を読み込む
func loadRegion(cfg *config.Config) (model.RegionDescriptor, error) {
	target, err := region.Build(region.Source{
		Name:        cfg.Collection.RegionName,
		Path:        cfg.Collection.RegionFile,
		BoundingBox: cfg.Collection.BoundingBox,
		Cities:      cfg.Collection.Cities,
	})
	if err != nil {
		return model.RegionDescriptor{}, fmt.Errorf("収集対象領域の読み込みに失敗: %w", err)
	}
	return target, nil
}

// buildSinks 設定された種別の保存先を順番に作成する
func (a *app) buildSinks(ctx context.Context, cfg *config.Config) ([]repository.NamedSink, error) {
	sc := cfg.Sink
	sinks := make([]repository.NamedSink, 0, len(sc.Kinds))

	for _, kind := range sc.Kinds {
		if !model.IsSupportedSink(kind) {
			return nil, fmt.Errorf("未対応の保存先です: %s（%v）", kind, model.GetAllSinks())
		}

		var sink domainrepo.PlaceSinkRepository

		switch kind {
		case model.SinkFile:
			sink = repository.NewFilePlaceSinkRepository(sc.ResultsDir, a.logger)

		case model.SinkBadger:
			badgerSink, err := repository.NewBadgerPlaceSinkRepository(sc.BadgerPath, a.logger)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, badgerSink.Close)
			sink = badgerSink

		case model.SinkFirestore:
			client, err := firestore.NewFirestoreClient(ctx, sc.FirestoreProjectID, sc.FirestoreCredentials, a.logger)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, client.Close)
			sink = repository.NewFirestorePlaceSinkRepository(client.GetClient(), sc.FirestoreCollection, sc.FirestoreRunsCollection, a.logger)

		case model.SinkPostgres:
			client, err := pgdb.NewPostgreSQLClient(ctx, pgdb.ConnectionOptions{
				DSN:              sc.PostgresDSN,
				SupabaseURL:      sc.SupabaseURL,
				SupabasePassword: sc.SupabaseDBPassword,
			})
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, client.Close)
			pgSink := repository.NewPostgresPlaceSinkRepository(client, a.logger)
			if err := pgSink.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			sink = pgSink

		case model.SinkSupabase:
			client, err := database.NewSupabaseClient(sc.SupabaseURL, sc.SupabaseKey)
			if err != nil {
				return nil, err
			}
			sink = repository.NewSupabasePlaceSinkRepository(client, sc.SupabaseTable, a.logger)
		}

		a.logger.Info().Str("sink", kind).Msg("💾 保存先を初期化しました")
		sinks = append(sinks, repository.NamedSink{Kind: kind, Sink: sink})
	}
	return sinks, nil
}
