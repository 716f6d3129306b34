package scheduler

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/service"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStarter) StartCollectionAsync(req *model.StartCollectionRequest) (*model.StartCollectionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.StartCollectionResponse{RunID: "run-cron"}, nil
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("not a cron spec", &fakeStarter{}, nil)
	assert.Error(t, err)
}

func TestNew_AcceptsStandardAndSecondsSpecs(t *testing.T) {
	for _, spec := range []string{"0 3 * * *", "*/30 * * * * *", "@daily"} {
		_, err := New(spec, &fakeStarter{}, nil)
		assert.NoError(t, err, spec)
	}
}

func TestTrigger_StartsCollection(t *testing.T) {
	starter := &fakeStarter{}
	s, err := New("@hourly", starter, nil)
	require.NoError(t, err)

	s.Trigger()
	assert.Equal(t, 1, starter.calls)
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	starter := &fakeStarter{err: service.ErrCollectionRunning}
	s, err := New("@hourly", starter, nil)
	require.NoError(t, err)

	// 実行中エラーはパニックもせずにスキップされる
	assert.NotPanics(t, s.Trigger)
	assert.NotPanics(t, func() {
		starter.err = errors.New("boom")
		s.Trigger()
	})
	assert.Equal(t, 2, starter.calls)
}

func TestStartStop(t *testing.T) {
	s, err := New("@hourly", &fakeStarter{}, nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
