package statusmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

func TestLifecycleNewWithoutMdUpdate(t *testing.T) {
	l := NewLifecycle("")
	got, err := l.Compute(context.Background(), ids.FidID{}, attrs.NewAttrSet())
	require.NoError(t, err)
	require.Equal(t, "new", got)
}

func TestLifecycleStaleAfterThreshold(t *testing.T) {
	l := NewLifecycle("10ms")
	a := attrs.NewAttrSet()
	a.Set(attrs.ATTR_md_update, attrs.BigintValue(time.Now().Add(-time.Hour).UnixNano()))
	got, err := l.Compute(context.Background(), ids.FidID{}, a)
	require.NoError(t, err)
	require.Equal(t, "stale", got)
}

func TestRegistryLookup(t *testing.T) {
	m, err := New("lifecycle", map[string]string{"stale_after": "1h"})
	require.NoError(t, err)
	require.Equal(t, "lifecycle", m.Name())

	_, err = New("does-not-exist", nil)
	require.Error(t, err)
}
