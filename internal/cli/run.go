package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OddsClaw/OddsClaw/internal/admin"
	"github.com/OddsClaw/OddsClaw/internal/agent"
	"github.com/OddsClaw/OddsClaw/internal/betting"
	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/callback"
	"github.com/OddsClaw/OddsClaw/internal/config"
	"github.com/OddsClaw/OddsClaw/internal/inference"
	"github.com/OddsClaw/OddsClaw/internal/journal"
	"github.com/OddsClaw/OddsClaw/internal/market"
	"github.com/OddsClaw/OddsClaw/internal/notify"
	"github.com/OddsClaw/OddsClaw/internal/positions"
	"github.com/OddsClaw/OddsClaw/internal/registry"
	"github.com/OddsClaw/OddsClaw/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the betting agent daemon",
	Run:   runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) {
	printHeader("🎲 OddsClaw Agent")
	fmt.Println("Starting OddsClaw...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Owner.AdminToken == "" {
		fmt.Println("No admin token configured. Set owner.adminToken in the config file")
		fmt.Println("or export ODDSCLAW_OWNER_ADMIN_TOKEN before starting the agent.")
		os.Exit(1)
	}

	home, err := config.HomeDir()
	if err != nil {
		fmt.Printf("Cannot resolve home directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		fmt.Printf("Cannot create %s: %v\n", home, err)
		os.Exit(1)
	}

	journalPath := cfg.Agent.JournalPath
	if journalPath == "" {
		journalPath = filepath.Join(home, "journal.db")
	}
	jrnl, err := journal.Open(journalPath)
	if err != nil {
		fmt.Printf("Failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer jrnl.Close()

	b := bus.New()

	schedCfg := cfg.Scheduler
	if schedCfg.LockPath == "" {
		schedCfg.LockPath = filepath.Join(home, "scheduler.lock")
	}
	sched := scheduler.New(schedCfg, b, jrnl)

	provider := inference.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	gateway := inference.NewGateway(provider, b, cfg.Provider.Timeout())
	reg := registry.New(jrnl)

	book := positions.New(cfg.Betting.MaxActivePositions, jrnl)
	if err := book.Rehydrate(); err != nil {
		fmt.Printf("Failed to rehydrate positions: %v\n", err)
		os.Exit(1)
	}

	var data betting.DataSource
	if cfg.Markets.URL != "" {
		data = market.NewDataClient(cfg.Markets.URL, cfg.Markets.Token)
	}
	var ledger betting.Ledger
	if cfg.Ledger.URL != "" {
		account := cfg.Ledger.Account
		if account == "" {
			account = cfg.Owner.Name
		}
		ledger = market.NewLedgerClient(cfg.Ledger.URL, cfg.Ledger.Token, account)
	}

	engine := betting.NewEngine(cfg.Betting, cfg.Provider.Model, data, ledger, book, jrnl, b)
	loop := agent.NewLoop(agent.LoopOptions{
		Bus:       b,
		Strategy:  engine,
		Gateway:   gateway,
		Registry:  reg,
		Scheduler: sched,
		Journal:   jrnl,
		Owner:     cfg.Owner.Name,
	})

	adminSrv := admin.New(cfg.Admin.Addr, cfg.Owner.AdminToken, loop, b, book, jrnl)

	if notifier := notify.NewSlackNotifier(cfg.Notify); notifier != nil {
		notifier.Attach(b)
		fmt.Println("Slack notifications enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go b.DispatchNotifications(ctx)
	go func() {
		if err := sched.Run(ctx); err != nil {
			fmt.Printf("Scheduler stopped: %v\n", err)
		}
	}()
	go func() {
		if err := adminSrv.ListenAndServe(ctx); err != nil {
			fmt.Printf("Admin server stopped: %v\n", err)
			stop()
		}
	}()
	if cfg.Callback.Enabled {
		consumer := callback.NewKafkaConsumer(cfg.Callback.Brokers, cfg.Callback.GroupID, cfg.Callback.Topic)
		feed := callback.NewFeed(consumer, b)
		go func() {
			if err := feed.Run(ctx); err != nil {
				fmt.Printf("Answer feed stopped: %v\n", err)
			}
		}()
		fmt.Printf("Answer feed consuming %s\n", cfg.Callback.Topic)
	}

	if cfg.Agent.AutoStart {
		go autoStart(b, cfg)
	}

	fmt.Printf("Admin API on %s\n", cfg.Admin.Addr)
	fmt.Println("Agent running. Ctrl+C to stop.")

	if err := loop.Run(ctx); err != nil {
		fmt.Printf("Agent loop error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Shutdown complete.")
}

// autoStart activates the agent and registers its schedule once the loop is
// consuming. Failures are printed, not fatal: the owner can still drive the
// agent through the admin API.
func autoStart(b *bus.Bus, cfg *config.Config) {
	if res := sendControl(b, agent.CmdActivate, nil); res.Err != nil {
		fmt.Printf("Auto-activation refused: %v\n", res.Err)
		return
	}
	payload, _ := json.Marshal(agent.SchedulePayload{
		StartDelay:    cfg.Agent.StartDelay,
		Interval:      cfg.Agent.Interval,
		MaxExecutions: cfg.Agent.MaxExecutions,
	})
	if res := sendControl(b, agent.CmdSchedule, payload); res.Err != nil {
		fmt.Printf("Auto-scheduling failed: %v\n", res.Err)
		return
	}
	fmt.Printf("Agent active, running every %s\n", cfg.Agent.Interval)
}

func sendControl(b *bus.Bus, command string, payload []byte) bus.ControlResult {
	reply := make(chan bus.ControlResult, 1)
	b.Publish(&bus.Signal{
		Kind:   bus.KindControl,
		Source: bus.SourceAdmin,
		Control: &bus.Control{
			Command: command,
			Payload: payload,
			Reply:   reply,
		},
	})
	select {
	case res := <-reply:
		return res
	case <-time.After(15 * time.Second):
		return bus.ControlResult{Err: fmt.Errorf("agent loop did not reply")}
	}
}
