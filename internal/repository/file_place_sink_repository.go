package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

const latestAggregateFile = "latest.json"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FilePlaceSinkRepository は集計結果をJSONファイルとして保存する
// ランごとのファイルに加えて、最新の結果を latest.json に上書きする
type FilePlaceSinkRepository struct {
	dir    string
	mu     sync.Mutex
	logger *log.Logger
}

var (
	_ repository.PlaceSinkRepository = (*FilePlaceSinkRepository)(nil)
	_ repository.AggregateReader     = (*FilePlaceSinkRepository)(nil)
)

// NewFilePlaceSinkRepository 新しいFilePlaceSinkRepositoryを作成
func NewFilePlaceSinkRepository(dir string, l *log.Logger) *FilePlaceSinkRepository {
	return &FilePlaceSinkRepository{dir: dir, logger: logger.OrDefault(l)}
}

// Persist 集計結果をファイルに書き出す
func (r *FilePlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(aggregate, "", "  ")
	if err != nil {
		return fmt.Errorf("収集結果のJSON変換に失敗: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}

	path := filepath.Join(r.dir, r.fileName(aggregate))
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(r.dir, latestAggregateFile), data); err != nil {
		return err
	}

	r.logger.Info().
		Str("run_id", aggregate.RunID).
		Str("path", path).
		Int("places", aggregate.TotalResults).
		Msg("💾 収集結果をファイルに保存しました")
	return nil
}

// LatestAggregate 最後に保存した集計結果を読み込む
func (r *FilePlaceSinkRepository) LatestAggregate(ctx context.Context) (*model.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	data, err := os.ReadFile(filepath.Join(r.dir, latestAggregateFile))
	r.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("収集結果の読み込みに失敗: %w", err)
	}

	var aggregate model.Aggregate
	if err := json.Unmarshal(data, &aggregate); err != nil {
		return nil, fmt.Errorf("収集結果のパースに失敗: %w", err)
	}
	return &aggregate, nil
}

func (r *FilePlaceSinkRepository) fileName(aggregate *model.Aggregate) string {
	region := unsafeFileChars.ReplaceAllString(aggregate.RegionName, "_")
	if region == "" {
		region = "region"
	}
	return fmt.Sprintf("%s_%s_%s.json",
		region,
		aggregate.CollectionTimestamp.UTC().Format("20060102T150405Z"),
		aggregate.RunID,
	)
}

// writeFileAtomic 一時ファイルに書いてからリネームする
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ファイルの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ファイルのクローズに失敗: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("ファイルの配置に失敗: %w", err)
	}
	return nil
}
