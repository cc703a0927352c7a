package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/adminfs"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/policy"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the read-only admin view",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().StringVar(&rulesFile, "rules", "", "policy rules YAML file (admin view only, no scheduler runs)")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	parser, err := idParser(cfg)
	if err != nil {
		return err
	}

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

	var sched *policy.Scheduler
	if rulesFile != "" {
		triggers, err := policy.LoadRules(rulesFile)
		if err != nil {
			return err
		}
		sched = policy.NewScheduler(store, action.NewShellExecutor(), triggers, cfg.Policy.Workers, cfg.Policy.ActionRateLimit)
	}

	root := adminfs.NewRoot(sched, nil, store)
	server, err := root.Mount(mountpoint)
	if err != nil {
		return fmt.Errorf("mount admin view: %w", err)
	}

	fmt.Printf("admin view mounted at %s, press Ctrl+C to unmount\n", mountpoint)
	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()
	server.Wait()
	return nil
}
