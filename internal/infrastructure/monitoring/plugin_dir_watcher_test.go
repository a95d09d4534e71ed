package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type changeRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *changeRecorder) handle(_ context.Context, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, names...)
}

func (r *changeRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestPluginDirWatcher_ReportsPluginChanges(t *testing.T) {
	dir := t.TempDir()
	rec := &changeRecorder{}

	w, err := NewPluginDirWatcher(dir, 50*time.Millisecond, rec.handle, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.go"), []byte("package hello\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.go"), []byte("package plugins\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"hello"}, rec.seen())
	}, 2*time.Second, 20*time.Millisecond)

	// only eligible files are reported
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, rec.seen())
}

func TestPluginDirWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &changeRecorder{}

	w, err := NewPluginDirWatcher(dir, 100*time.Millisecond, rec.handle, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "busy.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package busy\n"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"busy"}, rec.seen())
}

func TestPluginDirWatcher_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewPluginDirWatcher(t.TempDir(), 0, func(context.Context, []string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
	w.Stop()
}

func TestPluginDirWatcher_Errors(t *testing.T) {
	_, err := NewPluginDirWatcher(t.TempDir(), 0, nil, nil)
	assert.Error(t, err)

	w, err := NewPluginDirWatcher(filepath.Join(t.TempDir(), "missing"), 0, func(context.Context, []string) {}, nil)
	require.NoError(t, err)
	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch plugins directory")
	w.Stop()
}

func TestPluginDirWatcher_Settled(t *testing.T) {
	w := &PluginDirWatcher{debounce: time.Second, pending: map[string]time.Time{}}
	now := time.Now()
	w.pending["old"] = now.Add(-2 * time.Second)
	w.pending["fresh"] = now

	assert.Equal(t, []string{"old"}, w.settled(now))
	assert.Equal(t, []string{"fresh"}, w.settled(now.Add(time.Second)))
	assert.Empty(t, w.settled(now.Add(time.Hour)))
}
