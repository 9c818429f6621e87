package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/updown/internal/adapters/notify"
	"github.com/alejandrodnm/updown/internal/adapters/storage"
	"github.com/alejandrodnm/updown/internal/domain"
)

var (
	reportTrades      int
	reportRedemptions int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the performance summary from the local store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		n := reportTrades
		if n <= 0 {
			n = cfg.Engine.SummaryTrades
		}
		recent, err := store.RecentClosed(cmd.Context(), n)
		if err != nil {
			return err
		}

		console := notify.NewConsoleWriter(cmd.OutOrStdout())
		if err := console.Report(cmd.Context(), domain.Summarize(recent), recent); err != nil {
			return err
		}

		if cfg.IsLive() && reportRedemptions > 0 {
			recs, err := store.RecentRedemptions(cmd.Context(), reportRedemptions)
			if err != nil {
				return err
			}
			console.PrintRedemptions(recs)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportTrades, "trades", 0, "closed trades to include (default: engine.summary_trades)")
	reportCmd.Flags().IntVar(&reportRedemptions, "redemptions", 10, "recent redemptions to list in live mode")
}
