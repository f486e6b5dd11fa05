package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OddsClaw/OddsClaw/internal/agent"
)

var (
	scheduleStartDelay string
	scheduleInterval   string
	scheduleMax        int
	scheduleCancel     bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Control the running agent",
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the agent so scheduled ticks place bets",
	Run: func(cmd *cobra.Command, args []string) {
		runCommand("/api/v1/activate", nil, "Agent activated.")
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the agent; the schedule keeps running but ticks are skipped",
	Run: func(cmd *cobra.Command, args []string) {
		runCommand("/api/v1/deactivate", nil, "Agent deactivated.")
	},
}

var emergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Deactivate the agent and cancel its schedule",
	Run: func(cmd *cobra.Command, args []string) {
		runCommand("/api/v1/emergency-stop", nil, "Emergency stop issued.")
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Trigger a single tick outside the schedule",
	Run: func(cmd *cobra.Command, args []string) {
		runCommand("/api/v1/run-once", nil, "Tick triggered.")
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Register or cancel the periodic betting schedule",
	Run: func(cmd *cobra.Command, args []string) {
		payload := agent.SchedulePayload{
			StartDelay:    scheduleStartDelay,
			Interval:      scheduleInterval,
			MaxExecutions: scheduleMax,
			Cancel:        scheduleCancel,
		}
		if scheduleCancel {
			runCommand("/api/v1/schedule", payload, "Schedule cancelled.")
			return
		}
		runCommand("/api/v1/schedule", payload, fmt.Sprintf("Scheduled every %s.", scheduleInterval))
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the most recent journal events",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📜 OddsClaw Events")
		_, client := loadForClient()
		events, err := client.Events()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return
		}
		for _, ev := range events {
			line := fmt.Sprintf("%s  %-18s", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Type)
			if ev.MarketID != "" {
				line += "  market=" + ev.MarketID
			}
			if ev.Amount != "" {
				line += "  amount=" + ev.Amount
			}
			if ev.Reason != "" {
				line += "  reason=" + ev.Reason
			}
			fmt.Println(line)
		}
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleStartDelay, "start-delay", "0s", "Delay before the first tick")
	scheduleCmd.Flags().StringVar(&scheduleInterval, "interval", "1h", "Interval between ticks")
	scheduleCmd.Flags().IntVar(&scheduleMax, "max", 0, "Maximum tick count, 0 for unlimited")
	scheduleCmd.Flags().BoolVar(&scheduleCancel, "cancel", false, "Cancel the current schedule")
	agentCmd.AddCommand(activateCmd, deactivateCmd, emergencyStopCmd, runOnceCmd, scheduleCmd, eventsCmd)
}

// runCommand forwards one admin command and prints the outcome.
func runCommand(path string, body any, ok string) {
	_, client := loadForClient()
	detail, err := client.Command(path, body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(ok)
	if detail != "" {
		fmt.Println(detail)
	}
}
