package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

func TestShellExecutorSubstitutesPlaceholders(t *testing.T) {
	a := attrs.NewAttrSet()
	a.Set(attrs.ATTR_fullpath, attrs.StrValue("/mnt/fs/a/b"))
	a.Set(attrs.ATTR_size, attrs.UintValue(42))

	e := NewShellExecutor()
	id := ids.FidID{Seq: 1, Oid: 2, Ver: 0}

	st, fb, err := e.Execute(context.Background(), id, a, Params{
		Command: "echo {fspath} {fid} {extra}",
		Args:    map[string]string{"extra": "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	require.EqualValues(t, 42, fb.Volume)
}

func TestNoopExecutorAlwaysSucceeds(t *testing.T) {
	st, _, err := NoopExecutor{}.Execute(context.Background(), ids.FidID{}, attrs.NewAttrSet(), Params{Command: "anything"})
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
}
