package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OddsClaw/OddsClaw/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ OddsClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 OddsClaw Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:   ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:   ✗ Not found (" + configPath + ")")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:   ? Unable to load:", err)
			return
		}
		if cfg.Provider.APIKey != "" {
			fmt.Println("API Key:  ✓ Found")
		} else {
			fmt.Println("API Key:  ✗ Not found")
		}
		if cfg.Markets.URL != "" {
			fmt.Println("Markets:  ✓ " + cfg.Markets.URL)
		} else {
			fmt.Println("Markets:  ✗ No market data URL configured")
		}
		if cfg.Ledger.URL != "" {
			fmt.Println("Ledger:   ✓ " + cfg.Ledger.URL)
		} else {
			fmt.Println("Ledger:   ✗ No ledger URL configured")
		}
		if cfg.Callback.Enabled {
			fmt.Println("Answers:  ✓ Kafka feed (" + cfg.Callback.Topic + ")")
		} else {
			fmt.Println("Answers:  In-process delivery")
		}

		// A running daemon answers on the admin API; fall through quietly
		// when it is not up.
		client := newAdminClient(cfg)
		st, err := client.Status()
		if err != nil {
			fmt.Println("Agent:    ✗ Not reachable on " + cfg.Admin.Addr)
			return
		}
		if st.State.Active {
			fmt.Println("Agent:    ✓ Active")
		} else {
			fmt.Println("Agent:    ✓ Running (inactive)")
		}
		fmt.Printf("Ticks:    %d completed\n", st.State.TicksCompleted)
		fmt.Printf("Requests: %d sent, %d answered\n", st.State.RequestsSent, st.State.ResponsesReceived)
		if st.State.RequestInFlight {
			fmt.Println("In-flight: ✓ Awaiting an answer")
		}
		fmt.Printf("Positions: %d open, %s claimed\n", len(st.Positions), st.TotalClaimed)
	},
}
