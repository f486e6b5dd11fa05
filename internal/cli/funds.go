package cli

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/OddsClaw/OddsClaw/internal/agent"
)

var fundsCmd = &cobra.Command{
	Use:   "funds",
	Short: "Move funds between the owner and the agent's betting account",
}

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit funds into the betting account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		moveFunds("/api/v1/deposit", args[0], "Deposited")
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Withdraw funds from the betting account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		moveFunds("/api/v1/withdraw", args[0], "Withdrew")
	},
}

func init() {
	fundsCmd.AddCommand(depositCmd, withdrawCmd)
}

func moveFunds(path, raw, verb string) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		fmt.Printf("Invalid amount %q: %v\n", raw, err)
		os.Exit(1)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		fmt.Println("Amount must be positive.")
		os.Exit(1)
	}

	_, client := loadForClient()
	detail, err := client.Command(path, agent.FundsPayload{Amount: amount.String()})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s.\n", verb, amount)
	if detail != "" {
		fmt.Println(detail)
	}
}
