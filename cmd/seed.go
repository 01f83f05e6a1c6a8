package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crowsnest-systems/crowsnest/internal/seeder"
)

var (
	seedURL        string
	seedToken      string
	seedCount      int
	seedTimeSpread string
	seedAttacks    string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic events against a running engine",
	Long: `Generate benign traffic plus optional attack scenarios and send
them to the ingest endpoint of a running engine.

Examples:
  # 500 benign events spread over the last hour
  crowsnest seed --count 500 --spread 1h

  # Mix in attack scenarios
  crowsnest seed --count 200 --attack brute_force,sql_injection`,
	RunE: runSeed,
}

var seedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available attack scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range seeder.ListScenarios() {
			fmt.Println(name)
		}
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedURL, "url", "http://localhost:8097", "engine API base URL")
	seedCmd.Flags().StringVar(&seedToken, "token", "", "bearer token for the API")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of benign events to generate")
	seedCmd.Flags().StringVar(&seedTimeSpread, "spread", "30m", "time range to spread events over")
	seedCmd.Flags().StringVar(&seedAttacks, "attack", "", "comma-separated attack scenarios to mix in")
	seedCmd.AddCommand(seedListCmd)
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	spread, err := time.ParseDuration(seedTimeSpread)
	if err != nil {
		return fmt.Errorf("invalid spread: %w", err)
	}

	var attacks []string
	if seedAttacks != "" {
		attacks = strings.Split(seedAttacks, ",")
	}

	events, err := seeder.Generate(seeder.Options{
		Count:      seedCount,
		TimeSpread: spread,
		Attacks:    attacks,
	})
	if err != nil {
		return err
	}

	sender := seeder.NewSender(seedURL, seedToken)
	if err := sender.Send(cmd.Context(), events); err != nil {
		return err
	}

	fmt.Printf("Sent %d events to %s\n", len(events), seedURL)
	return nil
}
