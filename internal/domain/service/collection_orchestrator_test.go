package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HexCollector-App/internal/domain/model"
)

// fakeSearcher は呼び出し順に応じた結果を返す検索リポジトリ
type fakeSearcher struct {
	calls   atomic.Int64
	respond func(ctx context.Context, call int) ([]model.RawPlace, error)
}

func (f *fakeSearcher) SearchPage(ctx context.Context, center model.LatLng, radiusMeters int, pageToken string) (*model.SearchPage, error) {
	places, err := f.SearchAll(ctx, center, radiusMeters)
	if err != nil {
		return nil, err
	}
	return &model.SearchPage{Results: places, Status: model.ProviderStatusOK}, nil
}

func (f *fakeSearcher) SearchAll(ctx context.Context, center model.LatLng, radiusMeters int) ([]model.RawPlace, error) {
	call := int(f.calls.Add(1)) - 1
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(ctx, call)
}

// memorySink は保存された集計結果を保持する
type memorySink struct {
	mu         sync.Mutex
	aggregates []*model.Aggregate
	err        error
}

func (s *memorySink) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.aggregates = append(s.aggregates, aggregate)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aggregates)
}

func raw(ids ...string) []model.RawPlace {
	places := make([]model.RawPlace, 0, len(ids))
	for _, id := range ids {
		places = append(places, model.RawPlace{PlaceID: id, Name: "name " + id})
	}
	return places
}

// pointRegion は1点だけの境界を持つ領域（基準1セル + 周囲6セル）
func pointRegion() model.RegionDescriptor {
	return model.RegionDescriptor{
		Name:     "point",
		Boundary: orb.MultiPolygon{{{{139.7671, 35.6812}}}},
	}
}

const pointRegionCells = 7

func newTestOrchestrator(searcher *fakeSearcher, sink *memorySink, cfg OrchestratorConfig) *CollectionOrchestrator {
	return NewCollectionOrchestrator(searcher, NewRateGovernor(1000, 4), NewRegionTiler(nil), sink, cfg, nil)
}

func placeIDs(places []model.Place) []string {
	ids := make([]string, 0, len(places))
	for _, p := range places {
		ids = append(ids, p.ExternalID)
	}
	return ids
}

func TestStartCollection_DeduplicatesAcrossCells(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		switch call {
		case 0:
			return raw("P1", "P2"), nil
		case 1:
			return raw("P1", "P3"), nil
		default:
			return nil, nil
		}
	}}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"P1", "P2", "P3"}, placeIDs(aggregate.Results))
	assert.Equal(t, 3, aggregate.TotalResults)
	assert.Equal(t, pointRegionCells, aggregate.TotalCells)
	assert.Equal(t, "point", aggregate.RegionName)
	assert.Equal(t, 7, aggregate.Resolution)
	assert.NotEmpty(t, aggregate.RunID)
	assert.Equal(t, int64(pointRegionCells), aggregate.RateGovernorStats.TotalRequests)
	assert.Greater(t, aggregate.Runtime, time.Duration(0))

	require.Equal(t, 1, sink.count())
	assert.Same(t, aggregate, sink.aggregates[0])

	progress := o.Progress()
	assert.Equal(t, model.RunStatusCompleted, progress.Status)
	assert.Equal(t, aggregate.RunID, progress.RunID)
	assert.Equal(t, pointRegionCells, progress.ProcessedCells)
	assert.Equal(t, 3, progress.TotalResults)
	assert.InDelta(t, 100.0, progress.CompletionPercent, 1e-9)
}

func TestStartCollection_DropsResultsWithoutID(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		if call == 0 {
			return raw("", "P1", ""), nil
		}
		return nil, nil
	}}
	o := newTestOrchestrator(searcher, &memorySink{}, OrchestratorConfig{})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, placeIDs(aggregate.Results))
}

func TestStartCollection_ProviderErrorFailsRun(t *testing.T) {
	boom := errors.New("REQUEST_DENIED")
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		if call == 2 {
			return nil, boom
		}
		return raw(fmt.Sprintf("P%d", call)), nil
	}}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, aggregate)
	assert.Zero(t, sink.count())

	progress := o.Progress()
	assert.Equal(t, model.RunStatusError, progress.Status)
	assert.Contains(t, progress.LastError, "REQUEST_DENIED")
	assert.Equal(t, 2, progress.ProcessedCells)
	assert.False(t, progress.FinishTime.IsZero())
}

func TestStartCollection_SinkErrorFailsRun(t *testing.T) {
	boom := errors.New("disk full")
	o := newTestOrchestrator(&fakeSearcher{}, &memorySink{err: boom}, OrchestratorConfig{})

	_, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.RunStatusError, o.Progress().Status)
}

func TestStart_RejectsConcurrentRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		once.Do(func() { close(entered) })
		<-release
		return raw(fmt.Sprintf("P%d", call)), nil
	}}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{})

	run, err := o.Start(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)
	<-entered

	progress := o.Progress()
	assert.Equal(t, model.RunStatusRunning, progress.Status)
	assert.Equal(t, pointRegionCells, progress.TotalCells)
	assert.LessOrEqual(t, progress.ProcessedCells, progress.TotalCells)

	_, err = o.Start(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	assert.ErrorIs(t, err, ErrCollectionRunning)
	assert.Equal(t, run.ID, o.Progress().RunID)

	close(release)
	aggregate, err := run.Wait()
	require.NoError(t, err)
	assert.Equal(t, pointRegionCells, aggregate.TotalResults)

	// 完了後は新しいランを開始できる
	next, err := o.Start(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)
	_, err = next.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, next.ID)
	assert.Equal(t, 2, sink.count())
}

func TestStart_CancellationFailsRun(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	run, err := o.Start(ctx, pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)

	<-entered
	cancel()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("キャンセル後にランが終了しませんでした")
	}

	_, err = run.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.count())
	assert.Equal(t, model.RunStatusError, o.Progress().Status)
}

func TestStartCollection_TestModeStopsAfterThreshold(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		ids := make([]string, 0, 25)
		for i := 0; i < 25; i++ {
			ids = append(ids, fmt.Sprintf("C%d-P%d", call, i))
		}
		return raw(ids...), nil
	}}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{TestModeThreshold: 50})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{TestMode: true})
	require.NoError(t, err)

	// 50件ちょうどでは止まらず、超えた時点で止まる
	assert.Equal(t, 3, aggregate.TotalCells)
	assert.Equal(t, 75, aggregate.TotalResults)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, model.RunStatusCompleted, o.Progress().Status)
}

func TestStartCollection_WithoutTestModeProcessesAllCells(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		ids := make([]string, 0, 25)
		for i := 0; i < 25; i++ {
			ids = append(ids, fmt.Sprintf("C%d-P%d", call, i))
		}
		return raw(ids...), nil
	}}
	o := newTestOrchestrator(searcher, &memorySink{}, OrchestratorConfig{TestModeThreshold: 50})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)
	assert.Equal(t, pointRegionCells, aggregate.TotalCells)
	assert.Equal(t, pointRegionCells*25, aggregate.TotalResults)
}

func TestStartCollection_ZeroCells(t *testing.T) {
	searcher := &fakeSearcher{}
	sink := &memorySink{}
	o := newTestOrchestrator(searcher, sink, OrchestratorConfig{})

	aggregate, err := o.StartCollection(context.Background(), model.RegionDescriptor{Name: "nowhere"}, 7, model.CollectionOptions{})
	require.NoError(t, err)

	assert.Zero(t, aggregate.TotalCells)
	assert.Zero(t, aggregate.TotalResults)
	assert.NotNil(t, aggregate.Results)
	assert.Empty(t, aggregate.Results)
	assert.Zero(t, searcher.calls.Load())
	assert.Equal(t, 1, sink.count())

	progress := o.Progress()
	assert.Equal(t, model.RunStatusCompleted, progress.Status)
	assert.Zero(t, progress.CompletionPercent)
}

func TestStartCollection_InvalidResolution(t *testing.T) {
	o := newTestOrchestrator(&fakeSearcher{}, &memorySink{}, OrchestratorConfig{})

	for _, res := range []int{-1, 16} {
		_, err := o.StartCollection(context.Background(), pointRegion(), res, model.CollectionOptions{})
		assert.ErrorIs(t, err, ErrInvalidResolution)
	}

	// ランは開始されず状態も変わらない
	progress := o.Progress()
	assert.Equal(t, model.RunStatusIdle, progress.Status)
	assert.Empty(t, progress.RunID)
}

func TestStart_InvalidResolutionKeepsPreviousRun(t *testing.T) {
	o := newTestOrchestrator(&fakeSearcher{}, &memorySink{}, OrchestratorConfig{})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)

	_, err = o.Start(context.Background(), pointRegion(), 99, model.CollectionOptions{})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	progress := o.Progress()
	assert.Equal(t, model.RunStatusCompleted, progress.Status)
	assert.Equal(t, aggregate.RunID, progress.RunID)
}

func TestStartCollection_ParallelWorkersStillDeduplicate(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, call int) ([]model.RawPlace, error) {
		time.Sleep(5 * time.Millisecond)
		return raw("SHARED", fmt.Sprintf("U%d", call)), nil
	}}
	o := newTestOrchestrator(searcher, &memorySink{}, OrchestratorConfig{Workers: 4})

	aggregate, err := o.StartCollection(context.Background(), pointRegion(), 7, model.CollectionOptions{})
	require.NoError(t, err)

	assert.Equal(t, pointRegionCells, aggregate.TotalCells)
	assert.Equal(t, pointRegionCells+1, aggregate.TotalResults)

	seen := make(map[string]bool)
	for _, id := range placeIDs(aggregate.Results) {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestPlaceAccumulator_MergeIsIdempotent(t *testing.T) {
	acc := newPlaceAccumulator()

	assert.Equal(t, 2, acc.merge(raw("A", "B")))
	assert.Equal(t, 0, acc.merge(raw("A", "B")))
	assert.Equal(t, 1, acc.merge(raw("B", "C", "C")))
	assert.Equal(t, 3, acc.len())
	assert.Equal(t, 4, acc.duplicates)
}
