// Package main provides the settle operator CLI for market settlement and
// ledger maintenance.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidepot/sidepot/internal/config"
	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/ledger"
	"github.com/sidepot/sidepot/internal/repository"
	"github.com/sidepot/sidepot/internal/tracker"
)

var (
	configFile string
	appLog     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	repos      *repository.Repositories
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(settleCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(resumeLedgerCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(markPaidCmd)
	rootCmd.AddCommand(markReceivedCmd)
}

var rootCmd = &cobra.Command{
	Use:   "settle",
	Short: "Operator tooling for market settlement and ledger maintenance",
	Long:  `Settles or cancels markets, re-runs the settlement ledger handoff, prunes odds history, and inspects outstanding balances.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		appLog = logrus.New()
		appLog.SetLevel(logrus.WarnLevel)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err = database.NewDB(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		repos, err = repository.NewRepositories(db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

var settleCmd = &cobra.Command{
	Use:   "settle <market-id> <winner-option>",
	Short: "Settle a market on the given winning option",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		marketID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid market id: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		settlement := engine.NewSettlementEngine(repos.Store, appLog)
		result, err := settlement.Settle(ctx, marketID, args[1])
		if err != nil {
			return err
		}

		if result.Voided {
			fmt.Printf("Market %s voided: stakes on fewer than two options, %d stakes refunded\n",
				marketID, len(result.Participations))
			return nil
		}

		fmt.Printf("Market %s settled on %q\n", marketID, args[1])
		for _, p := range result.Participations {
			outcome := "lost"
			if p.IsWinner != nil && *p.IsWinner {
				outcome = "won"
			}
			fmt.Printf("  %s staked %d on %q: %s, payout %s\n",
				p.UserID, p.Stake, p.Option, outcome, p.FinalPayout)
		}
		fmt.Printf("%d ledger entries recorded\n", len(result.LedgerEntries))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <market-id>",
	Short: "Cancel an open market with no participants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		marketID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid market id: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		settlement := engine.NewSettlementEngine(repos.Store, appLog)
		if err := settlement.Cancel(ctx, marketID); err != nil {
			return err
		}
		fmt.Printf("Market %s cancelled\n", marketID)
		return nil
	},
}

var resumeLedgerCmd = &cobra.Command{
	Use:   "resume-ledger <market-id>",
	Short: "Re-run the settlement ledger handoff for a settled market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		marketID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid market id: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		settlement := engine.NewSettlementEngine(repos.Store, appLog)
		entries, err := settlement.ResumeLedger(ctx, marketID)
		if err != nil {
			return err
		}
		fmt.Printf("%d ledger entries present for market %s\n", len(entries), marketID)
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune odds history entries past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		trk := tracker.NewTracker(repos.OddsHistory, tracker.Config{
			PoolDeltaThreshold: cfg.Tracker.PoolDeltaThreshold,
			ProbDeltaThreshold: cfg.Tracker.ProbDeltaThreshold,
			Retention:          cfg.Retention(),
			PruneBatchSize:     cfg.Tracker.PruneBatchSize,
		}, appLog)

		pruned, err := trk.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d odds history entries older than %d days\n", pruned, cfg.Tracker.RetentionDays)
		return nil
	},
}

var balancesCmd = &cobra.Command{
	Use:   "balances <user-id>",
	Short: "Show a user's net positions against every counterparty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := ledger.NewService(repos.Balance, appLog)
		positions, err := svc.NetPositions(ctx, userID)
		if err != nil {
			return err
		}

		if len(positions) == 0 {
			fmt.Println("No outstanding balances")
			return nil
		}
		for _, p := range positions {
			switch {
			case p.Amount.IsPositive():
				fmt.Printf("  %s owes %s across %d entries\n", p.CounterpartyID, p.Amount, p.EntryCount)
			case p.Amount.IsNegative():
				fmt.Printf("  owes %s %s across %d entries\n", p.CounterpartyID, p.Amount.Neg(), p.EntryCount)
			default:
				fmt.Printf("  even with %s across %d entries\n", p.CounterpartyID, p.EntryCount)
			}
		}
		return nil
	},
}

var markPaidCmd = &cobra.Command{
	Use:   "mark-paid <payer-id> <payee-id>",
	Short: "Mark every pending balance from payer to payee as paid",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveBalances(args[0], args[1], false)
	},
}

var markReceivedCmd = &cobra.Command{
	Use:   "mark-received <payer-id> <payee-id>",
	Short: "Resolve every balance from payer to payee as received",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveBalances(args[0], args[1], true)
	},
}

func resolveBalances(payerArg, payeeArg string, received bool) error {
	payerID, err := uuid.Parse(payerArg)
	if err != nil {
		return fmt.Errorf("invalid payer id: %w", err)
	}
	payeeID, err := uuid.Parse(payeeArg)
	if err != nil {
		return fmt.Errorf("invalid payee id: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := ledger.NewService(repos.Balance, appLog)
	var n int
	if received {
		n, err = svc.MarkReceived(ctx, payerID, payeeID)
	} else {
		n, err = svc.MarkPaid(ctx, payerID, payeeID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d balances transitioned\n", n)
	return nil
}
