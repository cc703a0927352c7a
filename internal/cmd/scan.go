package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/changelog"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/pipeline"
	"github.com/robinhood-fs/rbh/internal/scanner"
)

var (
	scanRoot     string
	changelogDir string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk the managed filesystem into the database",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "partial scan root (default: fs.path)")
	scanCmd.Flags().StringVar(&changelogDir, "changelog-dir", "", "also stream changelog spool files from this directory")
}

// feedChangelog submits one op per changelog event straight to
// GET_INFO_DB, skipping GET_ID since the event already carries an
// EntryId; unlink and unlink_last events go straight to REPORT_RM.
func feedChangelog(ctx context.Context, pipe *pipeline.Pipeline, reader changelog.Reader) {
	for {
		ev, err := reader.Next()
		if err != nil {
			return
		}
		op := pipe.NewOp()
		op.ID = ev.ID
		op.Parent = ev.Parent
		op.Name = ev.Name
		op.Source = pipeline.SourceChangelog
		op.Stage = pipeline.GetInfoDB
		op.FSAttrs = ev.Attrs
		if ev.Type == changelog.EventUnlinkLast {
			op.GCEntries = true
			op.Stage = pipeline.ReportRM
		} else if ev.Type == changelog.EventUnlink {
			op.GCNames = true
			op.Stage = pipeline.ReportRM
		}
		if err := pipe.Submit(ctx, op); err != nil {
			return
		}
	}
}

// pipelineSubmitter adapts a pipeline.Pipeline to scanner.Submitter: the
// scanner knows nothing about Op pooling, it just hands over a freshly
// stat'd entry.
type pipelineSubmitter struct {
	pipe *pipeline.Pipeline
}

func (s *pipelineSubmitter) Submit(ctx context.Context, id ids.ID, parent ids.ID, name string, fsAttrs *attrs.AttrSet) error {
	op := s.pipe.NewOp()
	op.ID = id
	op.Parent = parent
	op.Name = name
	op.Source = pipeline.SourceScan
	op.Stage = pipeline.GetInfoDB
	op.FSAttrs = fsAttrs
	return s.pipe.Submit(ctx, op)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root := cfg.FS.Path
	if scanRoot != "" {
		if err := cfg.ValidateScanRoot(scanRoot); err != nil {
			return err
		}
		root = scanRoot
	}
	if root == "" {
		return fmt.Errorf("fs.path must be configured")
	}

	parser, err := idParser(cfg)
	if err != nil {
		return err
	}
	if cfg.FS.IDKind == "fid" {
		// the walking scanner only manufactures (device, inode) ids; fid
		// ids come from a Lustre path2fid resolver (internal/lustre),
		// which this build does not carry.
		return fmt.Errorf("fs.id_kind=fid is not supported by the scan command on this build")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := listmgr.Open(ctx, listmgr.Config{
		Driver:         cfg.ListMgr.Driver,
		DSN:            cfg.ListMgr.DSN,
		CommitBehavior: listmgr.CommitBatch,
		BatchSize:      cfg.ListMgr.BatchSize,
		RetryMin:       cfg.ListMgr.RetryMin,
		RetryMax:       cfg.ListMgr.RetryMax,
		IDFactory:      parser,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	fb := pipeline.NewFeedback(nil)
	stages := pipeline.DefaultStages(store, pipeline.Resolvers{}, cfg.Pipeline.StageQueueDepth, cfg.Pipeline.BatchSize, cfg.Scan.Workers)
	pipe := pipeline.New(pipeline.Config{
		StageQueueDepth: cfg.Pipeline.StageQueueDepth,
		BatchSize:       cfg.Pipeline.BatchSize,
		DryRun:          cfg.Pipeline.DryRun,
	}, stages, fb)

	scn := scanner.New(scanner.Config{
		Root:             root,
		Workers:          cfg.Scan.Workers,
		StayInFS:         cfg.FS.StayInFS,
		UseMDSDirectStat: cfg.FS.UseMDSDirectStat,
		ScanOpTimeout:    cfg.Scan.ScanOpTimeout,
		ExitOnTimeout:    cfg.Scan.ExitOnTimeout,
		CheckInterval:    cfg.Scan.CheckInterval,
	}, &pipelineSubmitter{pipe: pipe})

	pipeCtx, pipeCancel := context.WithCancel(ctx)
	defer pipeCancel()

	pipeDone := make(chan error, 1)
	go func() { pipeDone <- pipe.Run(pipeCtx) }()

	scanStart := time.Now()
	if err := scanner.RecordScanStart(ctx, store, scanStart, cfg.Scan.Workers); err != nil {
		log.Warn().Err(err).Msg("scan: could not persist start bookkeeping")
	}

	if changelogDir != "" {
		reader, err := changelog.NewDirReader(pipeCtx, changelogDir, parser)
		if err != nil {
			return fmt.Errorf("changelog: %w", err)
		}
		defer reader.Close()
		go feedChangelog(pipeCtx, pipe, reader)
	}

	scanErr := scn.Run(ctx)

	// Let in-flight ops finish draining through the pipeline before
	// tearing it down; the walk itself is done, only Apply/ReportRM work
	// may still be outstanding.
	for pipe.InFlight() > 0 && ctx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
	pipeCancel()
	<-pipeDone

	status := "complete"
	if scanErr != nil || ctx.Err() != nil || pipe.Aborted() {
		status = "incomplete"
	}
	partial := scanRoot != "" && scanRoot != cfg.FS.Path
	// bookkeeping must land even when the run context was cancelled by a
	// signal, so it gets its own short deadline.
	endCtx, endCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer endCancel()
	if err := scanner.RecordScanEnd(endCtx, store, scanStart, status, partial, nil); err != nil {
		log.Warn().Err(err).Msg("scan: end-of-scan bookkeeping failed")
	}

	if scanErr != nil {
		return fmt.Errorf("scan: %w", scanErr)
	}
	log.Info().Interface("stats", fb.Snapshot()).Msg("scan: complete")
	return nil
}
