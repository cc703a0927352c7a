package changelog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirReaderStreamsRecords(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := NewDirReader(ctx, dir, nil)
	require.NoError(t, err)
	defer r.Close()

	rec := record{Type: string(EventUnlinkLast), ID: "0x1:0x2:0x0", Name: "foo"}
	line, err := json.Marshal(rec)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cl-0001"), append(line, '\n'), 0644))

	done := make(chan Event, 1)
	errc := make(chan error, 1)
	go func() {
		ev, err := r.Next()
		if err != nil {
			errc <- err
			return
		}
		done <- ev
	}()

	select {
	case ev := <-done:
		require.Equal(t, EventUnlinkLast, ev.Type)
		require.Equal(t, "foo", ev.Name)
	case err := <-errc:
		t.Fatalf("Next returned error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for changelog event")
	}
}
