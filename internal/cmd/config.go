package cmd

import (
	"fmt"

	"github.com/robinhood-fs/rbh/internal/config"
	"github.com/robinhood-fs/rbh/internal/ids"
)

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadPath(cfgFile)
	}
	return config.Load()
}

// idParser resolves fs.id_kind to the matching textual-id parser, so
// the scanner and the store agree on one EntryId realization: ids read
// back from the database decode to the same type the producer built.
func idParser(cfg *config.Config) (func(string) (ids.ID, error), error) {
	switch cfg.FS.IDKind {
	case "", "devino":
		return ids.ParseDevIno, nil
	case "fid":
		return ids.ParseFid, nil
	default:
		return nil, fmt.Errorf("unknown fs.id_kind %q (want devino or fid)", cfg.FS.IDKind)
	}
}
