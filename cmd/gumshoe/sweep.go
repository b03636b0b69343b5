package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gumshoe/internal/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one cleanup pass over the store",
	Long: `Archives and deletes expired cases, deletes expired sessions, and removes
orphaned ledger rows. The chat process runs this periodically on its own;
sweep exists for cron jobs and for forcing a pass by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.NewLocalStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()

		var archive *store.ArchiveStore
		if cfg.Store.ArchivePath != "" {
			archive, err = store.NewArchiveStore(cfg.Store.ArchivePath)
			if err != nil {
				logger.Warn("archive store unavailable, sweeping without archival", zap.Error(err))
			} else {
				defer archive.Close()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		sw := store.NewSweeper(s, archive, 0)
		result, err := sw.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("swept: %d cases deleted (%d archived), %d sessions deleted, %d orphaned rows removed\n",
			result.CasesDeleted, result.CasesArchived, result.SessionsDeleted, result.OrphansDeleted)
		return nil
	},
}
