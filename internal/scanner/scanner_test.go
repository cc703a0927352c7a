package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSubmitter) Submit(ctx context.Context, id ids.ID, parent ids.ID, name string, a *attrs.AttrSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

// TestScannerCompleteness is the §8 "Scanner completeness" property: a
// clean scan of a small tree submits exactly one op per entry (files and
// directories alike) and terminates.
func TestScannerCompleteness(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b", "c"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "f1"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "f2"), []byte("y"), 0644))

	sub := &recordingSubmitter{}
	sc := New(Config{Root: root, Workers: 2, ScanOpTimeout: 0}, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sc.Run(ctx))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.ElementsMatch(t, []string{"b", "c", "f1", "f2"}, sub.names)
	require.EqualValues(t, 2, sc.Stats().EntriesScanned.Load())
}

func TestNextIntervalInterpolation(t *testing.T) {
	min := 15 * time.Minute
	max := 6 * time.Hour

	require.Equal(t, min, NextInterval(min, max, 100, false, time.Minute))
	require.Equal(t, max, NextInterval(min, max, 0, false, time.Minute))
	require.Equal(t, 5*time.Minute, NextInterval(min, max, 50, true, 5*time.Minute))
}
