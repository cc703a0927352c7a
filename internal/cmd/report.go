package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

var reportGroupBy string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a per-user or per-group accounting report as CSV",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportGroupBy, "group-by", "uid", "attribute to group by (uid, gid)")
}

func runReport(cmd *cobra.Command, args []string) error {
	var attr attrs.AttrIndex
	switch reportGroupBy {
	case "uid":
		attr = attrs.ATTR_uid
	case "gid":
		attr = attrs.ATTR_gid
	default:
		return fmt.Errorf("unsupported --group-by %q (want uid or gid)", reportGroupBy)
	}

	ctx := context.Background()
	store, err := openStoreForPolicy(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fields := []listmgr.ReportField{
		{Attr: attr, Op: listmgr.AggGroupBy},
		{Attr: attrs.ATTR_size, Op: listmgr.AggSum},
		{Attr: attrs.ATTR_blocks, Op: listmgr.AggSum},
	}
	it, err := store.Report(ctx, fields, nil, listmgr.Filter{}, listmgr.ReportOpts{})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer it.Close()

	fmt.Fprintf(os.Stdout, "%s,size,blocks\n", reportGroupBy)
	for {
		row, err := it.GetNext(ctx)
		if err != nil {
			break
		}
		if len(row.Values) < 3 {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s,%d,%d\n", valueString(row.Values[0]), row.Values[1].Uint, row.Values[2].Uint)
	}
	return nil
}

func valueString(v attrs.Value) string {
	switch v.Kind {
	case attrs.KindUint, attrs.KindBiguint:
		return fmt.Sprint(v.Uint)
	case attrs.KindInt, attrs.KindBigint:
		return fmt.Sprint(v.Int)
	default:
		return v.Str
	}
}
