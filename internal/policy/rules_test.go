package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRulesParsesTriggers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	body := `
triggers:
  - name: purge_fs
    target: fs
    names: ["/mnt/fs"]
    high_watermark:
      percent: 90
    low_watermark:
      percent: 80
    check_interval: 5m
    command: "rm {fspath}"
    sort_attr: last_access
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	triggers, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	trig := triggers[0]
	require.Equal(t, "purge_fs", trig.Name)
	require.Equal(t, TargetFS, trig.Target)
	require.Equal(t, []string{"/mnt/fs"}, trig.Names)
	require.Equal(t, 5*time.Minute, trig.CheckInterval)
	require.NotNil(t, trig.HW.Percent)
	require.InDelta(t, 90.0, *trig.HW.Percent, 1e-9)
	require.Equal(t, "rm {fspath}", trig.Action.Command)
}

func TestLoadRulesRejectsUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triggers:\n  - name: bad\n    target: nope\n"), 0644))

	_, err := LoadRules(path)
	require.Error(t, err)
}
