package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWorker struct {
	name     string
	startErr error
	stopErr  error
	started  bool
	stopped  bool
}

func (w *stubWorker) Start(context.Context) error {
	w.started = true
	return w.startErr
}

func (w *stubWorker) Stop() error {
	w.stopped = true
	return w.stopErr
}

func (w *stubWorker) Name() string { return w.name }

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(zap.NewNop())
	a := &stubWorker{name: "a"}
	b := &stubWorker{name: "b", startErr: errors.New("no redis")}
	c := &stubWorker{name: "c", stopErr: errors.New("stuck")}
	m.Register(a)
	m.Register(b)
	m.Register(c)
	assert.Equal(t, 3, m.Count())

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.True(t, a.started)
	assert.True(t, c.started)
	assert.True(t, m.IsRunning())

	assert.Error(t, m.StartAll(context.Background()))

	err = m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop c")
	assert.True(t, a.stopped)
	assert.False(t, m.IsRunning())

	assert.NoError(t, m.StopAll())
}
