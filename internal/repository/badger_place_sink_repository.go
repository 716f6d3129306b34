package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

const (
	badgerPlacePrefix = "place:"
	badgerRunPrefix   = "run:"
	badgerLatestKey   = "meta:latest_run"
)

// BadgerPlaceSinkRepository はローカルのBadgerDBに収集結果を保存する
//
// キー構成:
//
//	place:<external_id>  正規化済みPlace（JSON）
//	run:<run_id>         集計メタデータ（JSON）
//	run:<run_id>:ids     そのランで得たExternalIDの一覧
//	meta:latest_run      最後に保存したrun_id
type BadgerPlaceSinkRepository struct {
	db     *badger.DB
	logger *log.Logger
}

var (
	_ repository.PlaceSinkRepository = (*BadgerPlaceSinkRepository)(nil)
	_ repository.AggregateReader     = (*BadgerPlaceSinkRepository)(nil)
)

// NewBadgerPlaceSinkRepository はpathにBadgerDBを開く。pathが空の場合はインメモリで動作する
func NewBadgerPlaceSinkRepository(path string, l *log.Logger) (*BadgerPlaceSinkRepository, error) {
	l = logger.OrDefault(l)

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{l})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("BadgerDBのオープンに失敗: %w", err)
	}
	return &BadgerPlaceSinkRepository{db: db, logger: l}, nil
}

// Close DBを閉じる
func (r *BadgerPlaceSinkRepository) Close() error {
	return r.db.Close()
}

// Persist 全スポットと集計メタデータを1つのWriteBatchで書き込む
func (r *BadgerPlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	ids := make([]string, 0, len(aggregate.Results))
	for i := range aggregate.Results {
		place := &aggregate.Results[i]
		data, err := json.Marshal(place)
		if err != nil {
			return fmt.Errorf("スポット %s のJSON変換に失敗: %w", place.ExternalID, err)
		}
		if err := wb.Set([]byte(badgerPlacePrefix+place.ExternalID), data); err != nil {
			return fmt.Errorf("スポット %s の書き込みに失敗: %w", place.ExternalID, err)
		}
		ids = append(ids, place.ExternalID)
	}

	summary, err := json.Marshal(aggregate.Summary())
	if err != nil {
		return fmt.Errorf("集計メタデータのJSON変換に失敗: %w", err)
	}
	idList, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("ID一覧のJSON変換に失敗: %w", err)
	}

	runKey := badgerRunPrefix + aggregate.RunID
	entries := map[string][]byte{
		runKey:          summary,
		runKey + ":ids": idList,
		badgerLatestKey: []byte(aggregate.RunID),
	}
	for key, value := range entries {
		if err := wb.Set([]byte(key), value); err != nil {
			return fmt.Errorf("%s の書き込みに失敗: %w", key, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("BadgerDBへの書き込みに失敗: %w", err)
	}

	r.logger.Info().
		Str("run_id", aggregate.RunID).
		Int("places", len(ids)).
		Msg("💾 収集結果をBadgerDBに保存しました")
	return nil
}

// LatestAggregate 最後に保存したランの集計結果を組み立てて返す
func (r *BadgerPlaceSinkRepository) LatestAggregate(ctx context.Context) (*model.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var aggregate *model.Aggregate
	err := r.db.View(func(txn *badger.Txn) error {
		runID, err := getValue(txn, badgerLatestKey)
		if err != nil {
			return err
		}

		var summary model.AggregateSummary
		if err := getJSON(txn, badgerRunPrefix+string(runID), &summary); err != nil {
			return err
		}
		var ids []string
		if err := getJSON(txn, badgerRunPrefix+string(runID)+":ids", &ids); err != nil {
			return err
		}

		places := make([]model.Place, 0, len(ids))
		for _, id := range ids {
			var place model.Place
			if err := getJSON(txn, badgerPlacePrefix+id, &place); err != nil {
				return err
			}
			places = append(places, place)
		}

		aggregate = &model.Aggregate{
			RunID:               summary.RunID,
			RegionName:          summary.RegionName,
			CollectionTimestamp: summary.CollectionTimestamp,
			Resolution:          summary.Resolution,
			TotalCells:          summary.TotalCells,
			TotalResults:        summary.TotalResults,
			Results:             places,
			RateGovernorStats:   summary.RateGovernorStats,
			Runtime:             time.Duration(summary.RuntimeSeconds * float64(time.Second)),
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("BadgerDBからの読み込みに失敗: %w", err)
	}
	return aggregate, nil
}

// CountPlaces これまでに保存されたスポットの件数を返す
func (r *BadgerPlaceSinkRepository) CountPlaces(ctx context.Context) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerPlacePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("スポット件数の取得に失敗: %w", err)
	}
	return count, nil
}

func getValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getJSON(txn *badger.Txn, key string, dst any) error {
	data, err := getValue(txn, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s のパースに失敗: %w", key, err)
	}
	return nil
}

// badgerLogger BadgerのログをアプリケーションのLoggerに流す
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace().Msgf(strings.TrimSpace(format), args...)
}
