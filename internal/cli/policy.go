package cli

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/OddsClaw/OddsClaw/internal/betting"
	"github.com/OddsClaw/OddsClaw/internal/config"
)

var (
	policyMaxBet        string
	policyMinConfidence int
	policyRiskThreshold int
	policyMaxPositions  int
	policyHighRisk      bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show or update the betting policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured betting policy",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("⚖️ Betting Policy")
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			os.Exit(1)
		}
		printPolicy(cfg.Betting)
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Push a policy update to the running agent and save it",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("⚖️ Betting Policy")
		cfg, client := loadForClient()

		next := cfg.Betting
		if cmd.Flags().Changed("max-bet") {
			amount, err := decimal.NewFromString(policyMaxBet)
			if err != nil {
				fmt.Printf("Invalid --max-bet: %v\n", err)
				os.Exit(1)
			}
			next.MaxBetSize = amount
		}
		if cmd.Flags().Changed("min-confidence") {
			next.MinConfidence = policyMinConfidence
		}
		if cmd.Flags().Changed("risk-threshold") {
			next.RiskThreshold = policyRiskThreshold
		}
		if cmd.Flags().Changed("max-positions") {
			next.MaxActivePositions = policyMaxPositions
		}
		if cmd.Flags().Changed("high-risk") {
			next.HighRiskEnabled = policyHighRisk
		}
		if err := next.Validate(); err != nil {
			fmt.Printf("Invalid policy: %v\n", err)
			os.Exit(1)
		}

		if _, err := client.Command("/api/v1/policy", next); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		cfg.Betting = next
		if err := config.Save(cfg); err != nil {
			fmt.Printf("Policy applied but not saved: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Policy updated.")
		printPolicy(next)
	},
}

func init() {
	policySetCmd.Flags().StringVar(&policyMaxBet, "max-bet", "", "Maximum bet size per position")
	policySetCmd.Flags().IntVar(&policyMinConfidence, "min-confidence", 0, "Minimum confidence to place a bet")
	policySetCmd.Flags().IntVar(&policyRiskThreshold, "risk-threshold", 0, "Confidence above which a bet counts as high risk")
	policySetCmd.Flags().IntVar(&policyMaxPositions, "max-positions", 0, "Maximum concurrently open positions")
	policySetCmd.Flags().BoolVar(&policyHighRisk, "high-risk", false, "Allow bets above the risk threshold")
	policyCmd.AddCommand(policyShowCmd, policySetCmd)
}

func printPolicy(p betting.Config) {
	fmt.Printf("Max bet size:    %s\n", p.MaxBetSize)
	fmt.Printf("Min confidence:  %d\n", p.MinConfidence)
	fmt.Printf("Risk threshold:  %d\n", p.RiskThreshold)
	fmt.Printf("Max positions:   %d\n", p.MaxActivePositions)
	fmt.Printf("High risk bets:  %t\n", p.HighRiskEnabled)
}
