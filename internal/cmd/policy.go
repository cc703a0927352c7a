package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/alert"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/policy"
)

var rulesFile string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Run or inspect the policy scheduler",
}

var policyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the policy scheduler until interrupted",
	RunE:  runPolicyRun,
}

var policyStatusCmd = &cobra.Command{
	Use:   "status [trigger]",
	Short: "Print a trigger's last known status",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyStatus,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyRunCmd)
	policyCmd.AddCommand(policyStatusCmd)
	policyCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "policy rules YAML file")
}

func openStoreForPolicy(ctx context.Context) (*listmgr.SQLStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	parser, err := idParser(cfg)
	if err != nil {
		return nil, err
	}
	return listmgr.Open(ctx, listmgr.Config{
		Driver:         cfg.ListMgr.Driver,
		DSN:            cfg.ListMgr.DSN,
		CommitBehavior: listmgr.CommitBatch,
		BatchSize:      cfg.ListMgr.BatchSize,
		RetryMin:       cfg.ListMgr.RetryMin,
		RetryMax:       cfg.ListMgr.RetryMax,
		IDFactory:      parser,
	})
}

func runPolicyRun(cmd *cobra.Command, args []string) error {
	if rulesFile == "" {
		return fmt.Errorf("--rules is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStoreForPolicy(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	triggers, err := policy.LoadRules(rulesFile)
	if err != nil {
		return err
	}

	sched := policy.NewScheduler(store, action.NewShellExecutor(), triggers, cfg.Policy.Workers, cfg.Policy.ActionRateLimit)
	sched.CheckActionStatusDelay = cfg.Policy.CheckActionStatusDelay
	sched.Alerter = alert.NewDefault()
	sched.PreMaintWindow = cfg.Policy.PreMaintenanceWindow
	sched.MaintMinApplyDelay = cfg.Policy.MaintMinApplyDelay

	log.Info().Int("triggers", len(triggers)).Msg("policy: starting scheduler")
	err = sched.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func runPolicyStatus(cmd *cobra.Command, args []string) error {
	// status is read against the persisted vars table, not a live
	// scheduler: this subcommand is meant to be run against an instance
	// whose `policy run` process is elsewhere (or was).
	ctx := context.Background()
	store, err := openStoreForPolicy(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	name := args[0]
	status, _ := store.GetVar(ctx, "trigger."+name+".status")
	lastCtr, _ := store.GetVar(ctx, "trigger."+name+".last_ctr")
	totalCtr, _ := store.GetVar(ctx, "trigger."+name+".total_ctr")

	fmt.Printf("trigger: %s\nstatus: %s\nlast_ctr: %s\ntotal_ctr: %s\n", name, status, lastCtr, totalCtr)
	return nil
}
